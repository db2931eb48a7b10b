package simulation

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/nerrad567/device-orchestra/internal/device"
	"github.com/nerrad567/device-orchestra/internal/events"
)

// Device is a simulated camera, motor, sensor or generic instrument.
type Device struct {
	*device.Base
	opts  Options
	src   *source
	bus   events.Publisher
	table *device.CommandTable

	mu       sync.Mutex // protects counter, position
	counter  int
	position int
}

// NewConstructor returns a device.Constructor producing simulated devices
// whose device_type defaults to kind.
func NewConstructor(typeName string, kind Kind) device.Constructor {
	return func(id string, params device.Params, deps device.Deps) (device.Device, error) {
		d, err := New(typeName, id, params, kind, deps)
		if err != nil {
			return nil, err
		}
		return d, nil
	}
}

// New builds a simulated device in the Uninitialized state.
func New(typeName, id string, params device.Params, defaultKind Kind, deps device.Deps) (*Device, error) {
	opts, err := parseOptions(params, defaultKind)
	if err != nil {
		return nil, err
	}

	d := &Device{
		Base: device.NewBase(id, typeName, params, deps.Logger),
		opts: opts,
		src:  newSource(opts.Seed),
		bus:  deps.Bus,
	}
	d.table = d.buildTable()
	return d, nil
}

// Options returns the parsed simulation parameters.
func (d *Device) Options() Options { return d.opts }

// Start moves the device to Started after one simulated latency period.
func (d *Device) Start(ctx context.Context) error {
	return d.StartWith(ctx, func(ctx context.Context) error {
		return sleepCtx(ctx, d.opts.effectiveDelay(d.src))
	})
}

// Stop moves the device to Stopped.
func (d *Device) Stop(ctx context.Context) {
	d.StopWith(ctx, nil)
}

// Status reports the simulation settings and, for motors, the position.
func (d *Device) Status() device.Status {
	d.mu.Lock()
	fields := map[string]any{
		"device_type":     string(d.opts.Kind),
		"simulation_mode": string(d.opts.Mode),
		"data_counter":    d.counter,
	}
	if d.opts.Kind == KindMotor {
		fields["position"] = d.position
	}
	d.mu.Unlock()
	return d.StatusWith(fields)
}

// Position returns the motor position. It is zero for other kinds.
func (d *Device) Position() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.position
}

// Commands returns the names this device accepts.
func (d *Device) Commands() []string { return d.table.Names() }

// SendCommand dispatches cmd through the device's command table.
func (d *Device) SendCommand(ctx context.Context, cmd device.Command) (device.Result, error) {
	return d.table.Dispatch(ctx, d.Base, cmd)
}

// simulate wraps a handler with latency and fault injection.
// The handler runs only when no fault was drawn.
func (d *Device) simulate(name string, h device.CommandHandler) device.CommandHandler {
	return func(ctx context.Context, args device.Args) (device.Result, error) {
		if err := sleepCtx(ctx, d.opts.effectiveDelay(d.src)); err != nil {
			return nil, fmt.Errorf("device %q: %s interrupted: %w", d.ID(), name, err)
		}
		if d.src.Float64() < d.opts.faultProbability() {
			return nil, &FaultError{DeviceID: d.ID(), Command: name}
		}
		return h(ctx, args)
	}
}

func (d *Device) buildTable() *device.CommandTable {
	t := device.NewCommandTable()
	add := func(name string, h device.CommandHandler) {
		t.Handle(name, d.simulate(name, h))
	}

	add("ping", d.ping)
	for _, name := range d.opts.ExtraCommands {
		add(name, d.echo(name))
	}

	switch d.opts.Kind {
	case KindCamera:
		add("capture", d.capture)
		add("get_frame", d.getFrame)
	case KindSensor:
		add("read", d.read)
	case KindMotor:
		add("home", d.home)
		add("move", d.move)
		add("stop", d.halt)
		add("set_position", d.setPosition)
		add("get_position", d.getPosition)
	case KindGeneric:
		add("execute", d.echo("execute"))
		add("reset", d.reset)
	}
	return t
}

func (d *Device) next() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.counter++
	return d.counter
}

func (d *Device) ping(context.Context, device.Args) (device.Result, error) {
	d.next()
	return device.Result{"pong": true, "device_id": d.ID()}, nil
}

func (d *Device) echo(name string) device.CommandHandler {
	return func(_ context.Context, args device.Args) (device.Result, error) {
		n := d.next()
		return device.Result{
			"command":      name,
			"params":       map[string]any(args),
			"result":       "Executed " + name,
			"execution_id": n,
			"timestamp":    time.Now().UTC(),
		}, nil
	}
}

func (d *Device) reset(context.Context, device.Args) (device.Result, error) {
	d.mu.Lock()
	d.counter = 0
	d.mu.Unlock()
	return device.Result{"status": "reset"}, nil
}

func (d *Device) capture(_ context.Context, args device.Args) (device.Result, error) {
	format, err := args.String("format", "jpg")
	if err != nil {
		return nil, err
	}
	n := d.next()

	resolution := []any{640, 480}
	if v, ok := args["resolution"]; ok {
		resolution, ok = v.([]any)
		if !ok || len(resolution) != 2 {
			return nil, fmt.Errorf("%w: resolution must be [width, height]", device.ErrInvalidArgument)
		}
	}

	return device.Result{
		"image_id":   fmt.Sprintf("fake_img_%d", n),
		"resolution": resolution,
		"format":     format,
		"timestamp":  time.Now().UTC(),
	}, nil
}

func (d *Device) getFrame(context.Context, device.Args) (device.Result, error) {
	n := d.next()
	return device.Result{
		"frame_id": n,
		"data":     fmt.Sprintf("fake_frame_data_%d", n),
	}, nil
}

func (d *Device) read(ctx context.Context, _ device.Args) (device.Result, error) {
	n := d.next()
	value := math.Round(d.src.Uniform(18.0, 25.0)*100) / 100

	if d.bus != nil {
		d.bus.Publish(ctx, events.Event{
			Type:   events.TypeDeviceData,
			Source: d.ID(),
			Payload: map[string]any{
				"value":      value,
				"unit":       "°C",
				"reading_id": n,
			},
		})
	}
	return device.Result{
		"value":      value,
		"unit":       "°C",
		"reading_id": n,
		"timestamp":  time.Now().UTC(),
	}, nil
}

func (d *Device) home(context.Context, device.Args) (device.Result, error) {
	d.mu.Lock()
	d.counter++
	d.position = 0
	d.mu.Unlock()
	return device.Result{"status": "homed", "position": 0}, nil
}

func (d *Device) move(_ context.Context, args device.Args) (device.Result, error) {
	steps, err := args.Int("steps", 100)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.counter++
	d.position += steps
	pos := d.position
	d.mu.Unlock()
	return device.Result{"steps_moved": steps, "position": pos}, nil
}

func (d *Device) halt(context.Context, device.Args) (device.Result, error) {
	d.mu.Lock()
	d.counter++
	pos := d.position
	d.mu.Unlock()
	return device.Result{"status": "stopped", "position": pos}, nil
}

func (d *Device) setPosition(_ context.Context, args device.Args) (device.Result, error) {
	if !args.Has("position") {
		return nil, fmt.Errorf("%w: position is required", device.ErrInvalidArgument)
	}
	pos, err := args.Int("position", 0)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.counter++
	d.position = pos
	d.mu.Unlock()
	return device.Result{"position": pos}, nil
}

func (d *Device) getPosition(context.Context, device.Args) (device.Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return device.Result{"position": d.position}, nil
}
