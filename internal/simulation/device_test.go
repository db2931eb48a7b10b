package simulation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/device-orchestra/internal/device"
)

func newTestDevice(t *testing.T, typeName string, params device.Params) device.Device {
	t.Helper()
	f := device.NewFactory(device.Deps{})
	Register(f)

	if params == nil {
		params = device.Params{}
	}
	if _, ok := params["base_delay"]; !ok {
		params["base_delay"] = 0
	}
	dev, err := f.Create(typeName, "sim1", params)
	if err != nil {
		t.Fatalf("Create(%s) error = %v", typeName, err)
	}
	if err := dev.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	return dev
}

func TestDevice_NeverFaultsAtZeroProbability(t *testing.T) {
	for _, mode := range []Mode{ModeNormal, ModeFast, ModeError} {
		t.Run(string(mode), func(t *testing.T) {
			dev := newTestDevice(t, TypeGeneric, device.Params{
				"error_probability": 0.0,
				"simulation_mode":   string(mode),
			})
			ctx := context.Background()
			for i := 0; i < 10000; i++ {
				if _, err := dev.SendCommand(ctx, device.Command{Name: "ping"}); err != nil {
					t.Fatalf("call %d: SendCommand() error = %v", i, err)
				}
			}
		})
	}
}

func TestDevice_AlwaysFaultsAtFullProbability(t *testing.T) {
	dev := newTestDevice(t, TypeMotor, device.Params{"error_probability": 1.0})
	ctx := context.Background()

	for i := 0; i < 1000; i++ {
		_, err := dev.SendCommand(ctx, device.Command{Name: "move", Args: device.Args{"steps": 1}})
		var fe *FaultError
		if !errors.As(err, &fe) {
			t.Fatalf("call %d: error = %v, want *FaultError", i, err)
		}
		if fe.Command != "move" || !errors.Is(err, ErrSimulatedFault) {
			t.Fatalf("call %d: fault = %+v", i, fe)
		}
	}
	// Faulted commands have no side effects.
	if pos := dev.(*Device).Position(); pos != 0 {
		t.Errorf("position = %d after faulted moves, want 0", pos)
	}
}

func TestDevice_ErrorModeRaisesFaultRate(t *testing.T) {
	dev := newTestDevice(t, TypeGeneric, device.Params{
		"error_probability": 0.4,
		"simulation_mode":   "error",
	})
	// 0.4 × 3 caps at 1.
	for i := 0; i < 200; i++ {
		if _, err := dev.SendCommand(context.Background(), device.Command{Name: "ping"}); !errors.Is(err, ErrSimulatedFault) {
			t.Fatalf("call %d: error = %v, want ErrSimulatedFault", i, err)
		}
	}
}

func TestDevice_SeedIsReproducible(t *testing.T) {
	run := func() []bool {
		dev := newTestDevice(t, TypeGeneric, device.Params{"error_probability": 0.5, "seed": 7})
		out := make([]bool, 50)
		for i := range out {
			_, err := dev.SendCommand(context.Background(), device.Command{Name: "ping"})
			out[i] = err != nil
		}
		return out
	}

	a, b := run(), run()
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("fault sequence diverged at call %d", i)
		}
	}
}

func TestDevice_MotorPosition(t *testing.T) {
	dev := newTestDevice(t, TypeMotor, nil)
	ctx := context.Background()

	steps := []struct {
		cmd  device.Command
		want int
	}{
		{device.Command{Name: "home"}, 0},
		{device.Command{Name: "move", Args: device.Args{"steps": 200}}, 200},
		{device.Command{Name: "move", Args: device.Args{"steps": -50.0}}, 150},
		{device.Command{Name: "set_position", Args: device.Args{"position": 10}}, 10},
		{device.Command{Name: "stop"}, 10},
		{device.Command{Name: "get_position"}, 10},
	}
	for _, s := range steps {
		r, err := dev.SendCommand(ctx, s.cmd)
		if err != nil {
			t.Fatalf("%s error = %v", s.cmd.Name, err)
		}
		if r["position"] != s.want {
			t.Errorf("%s position = %v, want %d", s.cmd.Name, r["position"], s.want)
		}
	}

	if got := dev.Status().Fields["position"]; got != 10 {
		t.Errorf("status position = %v, want 10", got)
	}

	_, err := dev.SendCommand(ctx, device.Command{Name: "move", Args: device.Args{"steps": 1e30}})
	if !errors.Is(err, device.ErrInvalidArgument) {
		t.Errorf("move(1e30) error = %v, want ErrInvalidArgument", err)
	}
	if got := dev.Status().Fields["position"]; got != 10 {
		t.Errorf("position after rejected move = %v, want 10", got)
	}
}

func TestDevice_KindCommandTables(t *testing.T) {
	tests := []struct {
		typeName string
		accepted []string
		rejected string
	}{
		{TypeCamera, []string{"capture", "get_frame", "ping"}, "move"},
		{TypeMotor, []string{"home", "move", "stop", "ping"}, "capture"},
		{TypeSensor, []string{"read", "ping"}, "home"},
		{TypeGeneric, []string{"execute", "reset", "ping"}, "read"},
	}

	for _, tt := range tests {
		t.Run(tt.typeName, func(t *testing.T) {
			dev := newTestDevice(t, tt.typeName, nil)
			ctx := context.Background()
			for _, name := range tt.accepted {
				if _, err := dev.SendCommand(ctx, device.Command{Name: name}); err != nil {
					t.Errorf("%s error = %v", name, err)
				}
			}
			if _, err := dev.SendCommand(ctx, device.Command{Name: tt.rejected}); !errors.Is(err, device.ErrUnknownCommand) {
				t.Errorf("%s error = %v, want ErrUnknownCommand", tt.rejected, err)
			}
		})
	}
}

func TestDevice_CaptureResponse(t *testing.T) {
	dev := newTestDevice(t, TypeCamera, nil)
	r, err := dev.SendCommand(context.Background(), device.Command{Name: "capture"})
	if err != nil {
		t.Fatalf("capture error = %v", err)
	}
	if r["image_id"] != "fake_img_1" || r["format"] != "jpg" {
		t.Errorf("capture result = %v", r)
	}
}

func TestDevice_ExtraCommands(t *testing.T) {
	dev := newTestDevice(t, TypeSimulated, device.Params{"commands": []any{"calibrate"}})
	r, err := dev.SendCommand(context.Background(), device.Command{Name: "calibrate", Args: device.Args{"gain": 2}})
	if err != nil {
		t.Fatalf("calibrate error = %v", err)
	}
	if r["result"] != "Executed calibrate" {
		t.Errorf("result = %v", r["result"])
	}
}

func TestDevice_InvalidParams(t *testing.T) {
	f := device.NewFactory(device.Deps{})
	Register(f)

	tests := []struct {
		name   string
		params device.Params
	}{
		{"probability above one", device.Params{"error_probability": 1.5}},
		{"unknown mode", device.Params{"simulation_mode": "turbo"}},
		{"unknown kind", device.Params{"device_type": "laser"}},
		{"negative delay", device.Params{"base_delay": -1}},
		{"commands not a list", device.Params{"commands": "calibrate"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.Create(TypeSimulated, "x", tt.params)
			if !errors.Is(err, device.ErrConfiguration) {
				t.Errorf("Create() error = %v, want ErrConfiguration", err)
			}
		})
	}
}

func TestDevice_DelayHonoursContext(t *testing.T) {
	dev := newTestDevice(t, TypeGeneric, device.Params{"base_delay": 10})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := dev.SendCommand(ctx, device.Command{Name: "ping"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("error = %v, want context.DeadlineExceeded", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Error("command did not return promptly after cancellation")
	}
}

func TestDevice_StartCancelled(t *testing.T) {
	tests := []struct {
		name      string
		baseDelay float64
		wantErr   bool
		wantState device.State
	}{
		{"zero delay starts", 0, false, device.StateStarted},
		{"pending delay stays uninitialized", 5, true, device.StateUninitialized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := device.NewFactory(device.Deps{})
			Register(f)
			dev, err := f.Create(TypeMotor, "m1", device.Params{"base_delay": tt.baseDelay})
			if err != nil {
				t.Fatalf("Create() error = %v", err)
			}

			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			err = dev.Start(ctx)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Start() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, context.Canceled) {
				t.Errorf("Start() error = %v, want context.Canceled", err)
			}
			if got := dev.Status().State; got != tt.wantState {
				t.Errorf("state = %s, want %s", got, tt.wantState)
			}
		})
	}
}

func TestDevice_StartAfterCancelledStart(t *testing.T) {
	f := device.NewFactory(device.Deps{})
	Register(f)
	dev, err := f.Create(TypeMotor, "m1", device.Params{"base_delay": 0.05})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	if err := dev.Start(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Start() error = %v, want context.DeadlineExceeded", err)
	}

	if err := dev.Start(context.Background()); err != nil {
		t.Fatalf("Start() retry error = %v", err)
	}
	if got := dev.Status().State; got != device.StateStarted {
		t.Errorf("state = %s, want started", got)
	}
}

func TestDevice_NotStarted(t *testing.T) {
	f := device.NewFactory(device.Deps{})
	Register(f)
	dev, err := f.Create(TypeCamera, "cam", device.Params{"base_delay": 0})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := dev.SendCommand(context.Background(), device.Command{Name: "capture"}); !errors.Is(err, device.ErrDeviceState) {
		t.Errorf("error = %v, want ErrDeviceState", err)
	}
}
