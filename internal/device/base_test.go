package device

import (
	"context"
	"errors"
	"math"
	"testing"
)

func TestBase_Lifecycle(t *testing.T) {
	ctx := context.Background()
	dev, _ := newStubDevice("d1", nil, Deps{})
	d := dev.(*stubDevice)

	if got := d.Status().State; got != StateUninitialized {
		t.Fatalf("initial state = %s, want uninitialized", got)
	}

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := d.Start(ctx); err != nil {
		t.Fatalf("second Start() error = %v, want nil (no-op)", err)
	}
	if d.acquired != 1 {
		t.Errorf("acquired = %d, want 1", d.acquired)
	}

	d.Stop(ctx)
	d.Stop(ctx)
	if got := d.Status().State; got != StateStopped {
		t.Errorf("state after Stop = %s, want stopped", got)
	}
	if d.released != 1 {
		t.Errorf("released = %d, want 1", d.released)
	}

	err := d.Start(ctx)
	if !errors.Is(err, ErrDeviceState) {
		t.Errorf("Start() after Stop error = %v, want ErrDeviceState", err)
	}
}

func TestBase_StartCancelledStaysUninitialized(t *testing.T) {
	b := NewBase("cam", "stub", nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := b.StartWith(ctx, func(ctx context.Context) error { return ctx.Err() })
	var se *StateError
	if !errors.As(err, &se) {
		t.Fatalf("StartWith() error = %v, want *StateError", err)
	}
	if se.State != StateUninitialized || !errors.Is(err, context.Canceled) {
		t.Errorf("StateError = %+v, want uninitialized with context.Canceled", se)
	}
	if got := b.State(); got != StateUninitialized {
		t.Fatalf("state = %s, want uninitialized", got)
	}

	if err := b.StartWith(context.Background(), func(context.Context) error { return nil }); err != nil {
		t.Fatalf("StartWith() retry error = %v", err)
	}
	if got := b.State(); got != StateStarted {
		t.Errorf("state = %s, want started", got)
	}
}

func TestBase_StartFaultWithLiveContext(t *testing.T) {
	b := NewBase("cam", "stub", nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// A cause that merely wraps context.Canceled is still a device fault
	// while the caller's context is live.
	cause := errors.Join(errors.New("driver gave up"), context.Canceled)
	_ = b.StartWith(ctx, func(context.Context) error { return cause })
	if got := b.State(); got != StateFaulted {
		t.Errorf("state = %s, want error", got)
	}
}

func TestBase_StopFromUninitialized(t *testing.T) {
	dev, _ := newStubDevice("d1", nil, Deps{})
	dev.Stop(context.Background())

	if got := dev.Status().State; got != StateStopped {
		t.Errorf("state = %s, want stopped", got)
	}
	if dev.(*stubDevice).released != 0 {
		t.Error("release hook ran for a device that never started")
	}
}

func TestBase_StartFailureMovesToError(t *testing.T) {
	ctx := context.Background()
	dev, _ := newStubDevice("cam", Params{"fail_start": true}, Deps{})

	err := dev.Start(ctx)
	var se *StateError
	if !errors.As(err, &se) {
		t.Fatalf("Start() error = %v, want *StateError", err)
	}
	if se.State != StateFaulted || se.Err == nil {
		t.Errorf("StateError = %+v, want state error with cause", se)
	}

	st := dev.Status()
	if st.State != StateFaulted {
		t.Errorf("state = %s, want error", st.State)
	}
	if st.Fields["last_error"] == nil {
		t.Error("status missing last_error")
	}

	if err := dev.Start(ctx); !errors.Is(err, ErrDeviceState) {
		t.Errorf("Start() from error = %v, want ErrDeviceState", err)
	}

	dev.Stop(ctx)
	if got := dev.Status().State; got != StateStopped {
		t.Errorf("state after Stop = %s, want stopped", got)
	}
}

func TestBase_ParamsCopied(t *testing.T) {
	params := Params{"nested": map[string]any{"k": "v"}}
	b := NewBase("d1", "stub", params, nil)

	params["nested"].(map[string]any)["k"] = "changed"
	params["added"] = true

	got := b.Params()
	if got["nested"].(map[string]any)["k"] != "v" {
		t.Error("nested param mutated through caller's map")
	}
	if _, ok := got["added"]; ok {
		t.Error("param added through caller's map")
	}
}

func TestCommandTable_Dispatch(t *testing.T) {
	ctx := context.Background()
	dev, _ := newStubDevice("d1", nil, Deps{})

	tests := []struct {
		name    string
		started bool
		cmd     Command
		wantErr error
		check   func(t *testing.T, r Result)
	}{
		{
			name:    "unknown command",
			started: true,
			cmd:     Command{Name: "launch"},
			wantErr: ErrUnknownCommand,
		},
		{
			name:    "not started",
			started: false,
			cmd:     Command{Name: "ping"},
			wantErr: ErrDeviceState,
		},
		{
			name:    "any-state command while not started",
			started: false,
			cmd:     Command{Name: "describe"},
			check: func(t *testing.T, r Result) {
				if r["id"] != "d1" {
					t.Errorf("id = %v, want d1", r["id"])
				}
			},
		},
		{
			name:    "argument type mismatch",
			started: true,
			cmd:     Command{Name: "echo", Args: Args{"msg": 42}},
			wantErr: ErrInvalidArgument,
		},
		{
			name:    "success",
			started: true,
			cmd:     Command{Name: "echo", Args: Args{"msg": "hi"}},
			check: func(t *testing.T, r Result) {
				if r["msg"] != "hi" {
					t.Errorf("msg = %v, want hi", r["msg"])
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.started {
				if err := dev.Start(ctx); err != nil {
					t.Fatalf("Start() error = %v", err)
				}
			}
			r, err := dev.SendCommand(ctx, tt.cmd)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("SendCommand() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("SendCommand() error = %v", err)
			}
			tt.check(t, r)
		})
		// Fresh device per case so "not started" really is not started.
		dev, _ = newStubDevice("d1", nil, Deps{})
	}
}

func TestArgs_Accessors(t *testing.T) {
	args := Args{"steps": 100.0, "ratio": 3, "name": "x", "flag": true, "frac": 1.5}

	if n, err := args.Int("steps", 0); err != nil || n != 100 {
		t.Errorf("Int(steps) = %d, %v", n, err)
	}
	if _, err := args.Int("frac", 0); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("Int(frac) error = %v, want ErrInvalidArgument", err)
	}
	if f, err := args.Float("ratio", 0); err != nil || f != 3 {
		t.Errorf("Float(ratio) = %v, %v", f, err)
	}
	if s, err := args.String("missing", "def"); err != nil || s != "def" {
		t.Errorf("String(missing) = %q, %v", s, err)
	}
	if _, err := args.Bool("name", false); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("Bool(name) error = %v, want ErrInvalidArgument", err)
	}
	if d, err := args.Seconds("frac", 0); err != nil || d.Seconds() != 1.5 {
		t.Errorf("Seconds(frac) = %v, %v", d, err)
	}
}

func TestArgs_OutOfRange(t *testing.T) {
	args := Args{"huge": 1e30, "tiny": -1e30, "inf": math.Inf(1), "nan": math.NaN(), "max": math.MaxInt}

	for _, key := range []string{"huge", "tiny", "inf", "nan"} {
		if n, err := args.Int(key, 7); !errors.Is(err, ErrInvalidArgument) || n != 7 {
			t.Errorf("Int(%s) = %d, %v, want default and ErrInvalidArgument", key, n, err)
		}
	}
	if n, err := args.Int("max", 0); err != nil || n != math.MaxInt {
		t.Errorf("Int(max) = %d, %v", n, err)
	}

	for _, key := range []string{"huge", "inf", "nan"} {
		if _, err := args.Seconds(key, 0); !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("Seconds(%s) error = %v, want ErrInvalidArgument", key, err)
		}
	}
}
