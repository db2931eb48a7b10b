package simulation

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nerrad567/device-orchestra/internal/device"
	"github.com/nerrad567/device-orchestra/internal/events"
)

// eventLog records events delivered by a real bus.
type eventLog struct {
	mu     sync.Mutex
	events []events.Event
}

func (l *eventLog) HandleEvent(_ context.Context, ev events.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
	return nil
}

func (l *eventLog) count(eventType string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, ev := range l.events {
		if ev.Type == eventType {
			n++
		}
	}
	return n
}

func (l *eventLog) total() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

func newTestThermometer(t *testing.T, params device.Params) (*Thermometer, *eventLog) {
	t.Helper()
	bus := events.NewBus()
	log := &eventLog{}
	bus.Subscribe("log", log)

	dev, err := NewThermometer("thermo1", params, device.Deps{Bus: bus})
	if err != nil {
		t.Fatalf("NewThermometer() error = %v", err)
	}
	return dev.(*Thermometer), log
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within 2s")
}

func TestThermometer_EmitsWhileStarted(t *testing.T) {
	th, log := newTestThermometer(t, device.Params{
		"interval_min":       0.005,
		"interval_max":       0.01,
		"initial_temp":       29.0,
		"temperature_drift":  0.0,
		"overheat_threshold": 21.0,
		"seed":               3,
	})
	ctx := context.Background()

	if err := th.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitFor(t, func() bool { return log.count(events.TypeDeviceData) >= 3 })

	th.Stop(ctx)
	if got := th.Status().State; got != device.StateStopped {
		t.Errorf("state = %s, want stopped", got)
	}

	if log.count(events.TypeThermometerOverheat) == 0 {
		t.Error("no overheat events above threshold")
	}

	after := log.total()
	time.Sleep(50 * time.Millisecond)
	if log.total() != after {
		t.Errorf("events after Stop: %d, want %d", log.total(), after)
	}
}

func TestThermometer_NoEventsBeforeStart(t *testing.T) {
	_, log := newTestThermometer(t, device.Params{"interval_min": 0.005, "interval_max": 0.005})
	time.Sleep(30 * time.Millisecond)
	if log.total() != 0 {
		t.Errorf("events before Start = %d, want 0", log.total())
	}
}

func TestThermometer_StopIdempotent(t *testing.T) {
	th, _ := newTestThermometer(t, device.Params{"interval_min": 0.005, "interval_max": 0.005})
	ctx := context.Background()

	th.Stop(ctx)
	if err := th.Start(ctx); !errors.Is(err, device.ErrDeviceState) {
		t.Errorf("Start() after Stop error = %v, want ErrDeviceState", err)
	}
	th.Stop(ctx)
	if got := th.Status().State; got != device.StateStopped {
		t.Errorf("state = %s, want stopped", got)
	}
}

func TestThermometer_StopWaitsForEmitter(t *testing.T) {
	bus := events.NewBus()
	entered := make(chan struct{}, 1)
	var stopped atomic.Bool
	var late atomic.Int32
	bus.SubscribeFunc("slow", func(_ context.Context, ev events.Event) error {
		if stopped.Load() {
			late.Add(1)
		}
		if ev.Type == events.TypeDeviceData {
			select {
			case entered <- struct{}{}:
			default:
			}
			time.Sleep(20 * time.Millisecond)
		}
		return nil
	})

	dev, err := NewThermometer("thermo1", device.Params{
		"interval_min":       0.001,
		"interval_max":       0.001,
		"overheat_threshold": 0,
	}, device.Deps{Bus: bus})
	if err != nil {
		t.Fatalf("NewThermometer() error = %v", err)
	}
	if err := dev.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("no device.data delivered")
	}

	// An already-cancelled ctx must not cut the acknowledgement wait short.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	dev.Stop(ctx)
	stopped.Store(true)

	time.Sleep(50 * time.Millisecond)
	if n := late.Load(); n != 0 {
		t.Errorf("handler invocations after Stop returned = %d, want 0", n)
	}
	if got := dev.Status().State; got != device.StateStopped {
		t.Errorf("state = %s, want stopped", got)
	}
}

func TestThermometer_Commands(t *testing.T) {
	th, _ := newTestThermometer(t, device.Params{
		"interval_min": 60,
		"interval_max": 60,
		"initial_temp": 25.0,
	})
	ctx := context.Background()

	// Readable while stopped.
	r, err := th.SendCommand(ctx, device.Command{Name: "get_temperature"})
	if err != nil {
		t.Fatalf("get_temperature error = %v", err)
	}
	if r["temperature"] != 25.0 {
		t.Errorf("temperature = %v, want 25", r["temperature"])
	}
	if _, err := th.SendCommand(ctx, device.Command{Name: "cooling_activate"}); !errors.Is(err, device.ErrDeviceState) {
		t.Errorf("cooling_activate before Start error = %v, want ErrDeviceState", err)
	}

	if err := th.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer th.Stop(ctx)

	r, err = th.SendCommand(ctx, device.Command{Name: "cooling_activate", Args: device.Args{"power": 3.0}})
	if err != nil {
		t.Fatalf("cooling_activate error = %v", err)
	}
	if r["temperature_after"] != 22.0 {
		t.Errorf("temperature_after = %v, want 22", r["temperature_after"])
	}

	if _, err := th.SendCommand(ctx, device.Command{Name: "set_temperature", Args: device.Args{"temperature": 99.0}}); err != nil {
		t.Fatalf("set_temperature error = %v", err)
	}
	if th.Temperature() != 30.0 {
		t.Errorf("temperature = %v, want clamp to 30", th.Temperature())
	}

	r, err = th.SendCommand(ctx, device.Command{Name: "get_logs"})
	if err != nil {
		t.Fatalf("get_logs error = %v", err)
	}
	if n := len(r["cooling_commands"].([]any)); n != 1 {
		t.Errorf("cooling_commands = %d, want 1", n)
	}

	if _, err := th.SendCommand(ctx, device.Command{Name: "explode"}); !errors.Is(err, device.ErrUnknownCommand) {
		t.Errorf("explode error = %v, want ErrUnknownCommand", err)
	}
}

func TestThermometer_InvalidParams(t *testing.T) {
	tests := []device.Params{
		{"min_temp": 30.0, "max_temp": 20.0},
		{"interval_min": 2, "interval_max": 1},
		{"interval_min": 0},
		{"temperature_drift": -1},
	}
	for _, params := range tests {
		if _, err := NewThermometer("t", params, device.Deps{}); err == nil {
			t.Errorf("NewThermometer(%v) error = nil", params)
		}
	}
}
