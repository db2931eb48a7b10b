package device

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/device-orchestra/internal/events"
)

func TestManager_Load(t *testing.T) {
	m := NewManager(newStubFactory())

	err := m.Load([]Config{
		{ID: "a", Type: "stub"},
		{ID: "b", Type: "stub", Params: Params{"level": 1}},
	})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !equalStrings(m.IDs(), []string{"a", "b"}) {
		t.Errorf("IDs() = %v", m.IDs())
	}

	dev, err := m.Get("b")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if dev.Status().State != StateUninitialized {
		t.Error("loaded device not uninitialized")
	}

	if _, err := m.Get("zzz"); !errors.Is(err, ErrUnknownDevice) {
		t.Errorf("Get(zzz) error = %v, want ErrUnknownDevice", err)
	}
}

func TestManager_LoadAggregatesFaults(t *testing.T) {
	m := NewManager(newStubFactory())

	err := m.Load([]Config{
		{ID: "a", Type: "stub"},
		{ID: "", Type: "stub"},
		{ID: "a", Type: "stub"},
		{ID: "c", Type: "laser"},
		{ID: "d"},
	})

	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("Load() error = %v, want *ConfigError", err)
	}
	if !errors.Is(err, ErrConfiguration) {
		t.Error("ConfigError does not unwrap to ErrConfiguration")
	}
	if len(cfgErr.Faults) != 4 {
		t.Errorf("faults = %d (%v), want 4", len(cfgErr.Faults), cfgErr.Faults)
	}
	if m.Len() != 0 {
		t.Errorf("Len() = %d after failed load, want 0", m.Len())
	}
}

func TestManager_LoadRejectsBadParams(t *testing.T) {
	m := NewManager(newStubFactory())

	err := m.Load([]Config{
		{ID: "a", Type: "stub"},
		{ID: "b", Type: "stub", Params: Params{"level": "max"}},
	})
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("Load() error = %v, want ErrConfiguration", err)
	}
	if m.Len() != 0 {
		t.Errorf("Len() = %d, want 0 (no partial load)", m.Len())
	}
}

func TestManager_Add(t *testing.T) {
	m := NewManager(newStubFactory())
	dev, _ := newStubDevice("x", nil, Deps{})

	if err := m.Add(dev); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if err := m.Add(dev); !errors.Is(err, ErrDuplicateDevice) {
		t.Errorf("second Add() error = %v, want ErrDuplicateDevice", err)
	}
	if err := m.Load([]Config{{ID: "x", Type: "stub"}}); !errors.Is(err, ErrConfiguration) {
		t.Errorf("Load() of managed id error = %v, want ErrConfiguration", err)
	}
}

func TestManager_StartAllCollectsFailures(t *testing.T) {
	ctx := context.Background()
	bus := &capturingBus{}
	m := NewManager(newStubFactory())
	m.SetPublisher(bus)

	err := m.Load([]Config{
		{ID: "ok1", Type: "stub"},
		{ID: "broken", Type: "stub", Params: Params{"fail_start": true}},
		{ID: "crashy", Type: "stub", Params: Params{"panic_start": true}},
		{ID: "ok2", Type: "stub"},
	})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	res := m.StartAll(ctx)
	if !equalStrings(res.Succeeded, []string{"ok1", "ok2"}) {
		t.Errorf("Succeeded = %v", res.Succeeded)
	}
	if !equalStrings(res.FailedIDs(), []string{"broken", "crashy"}) {
		t.Errorf("FailedIDs() = %v", res.FailedIDs())
	}
	if !errors.Is(res.Failed["broken"], ErrDeviceState) {
		t.Errorf("broken error = %v, want ErrDeviceState", res.Failed["broken"])
	}
	if res.Err() == nil || !strings.Contains(res.Err().Error(), "crashy") {
		t.Errorf("Err() = %v", res.Err())
	}

	st := m.Status()
	if st["ok1"].State != StateStarted || st["broken"].State != StateFaulted {
		t.Errorf("states = %s / %s", st["ok1"].State, st["broken"].State)
	}

	want := []string{
		"device.started:ok1",
		"device.error:broken",
		"device.error:crashy",
		"device.started:ok2",
	}
	if got := bus.types(); !equalStrings(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
}

func TestManager_StopAllReverseOrder(t *testing.T) {
	ctx := context.Background()
	bus := &capturingBus{}
	m := NewManager(newStubFactory())

	if err := m.Load([]Config{{ID: "a", Type: "stub"}, {ID: "b", Type: "stub"}}); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	m.StartAll(ctx)
	m.SetPublisher(bus)

	res := m.StopAll(ctx)
	if !res.OK() {
		t.Fatalf("StopAll() failed: %v", res.Err())
	}
	if !equalStrings(res.Succeeded, []string{"b", "a"}) {
		t.Errorf("Succeeded = %v, want reverse order", res.Succeeded)
	}
	if got := bus.types(); !equalStrings(got, []string{"device.stopped:b", "device.stopped:a"}) {
		t.Errorf("events = %v", got)
	}

	// Stopping again is harmless.
	if res := m.StopAll(ctx); !res.OK() {
		t.Errorf("second StopAll() failed: %v", res.Err())
	}
	for id, st := range m.Status() {
		if st.State != StateStopped {
			t.Errorf("%s state = %s, want stopped", id, st.State)
		}
	}
}

func TestManager_SingleStartStop(t *testing.T) {
	ctx := context.Background()
	m := NewManager(newStubFactory())
	if err := m.Load([]Config{{ID: "a", Type: "stub"}}); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if err := m.Start(ctx, "a"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := m.Start(ctx, "nope"); !errors.Is(err, ErrUnknownDevice) {
		t.Errorf("Start(nope) error = %v, want ErrUnknownDevice", err)
	}
	if err := m.Stop(ctx, "a"); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if got := m.StatusList()[0].State; got != StateStopped {
		t.Errorf("state = %s, want stopped", got)
	}
}

type commandRecord struct {
	deviceType, command string
	err                 error
}

type recordingObserver struct {
	calls []commandRecord
}

func (o *recordingObserver) CommandFinished(deviceType, command string, err error, _ time.Duration) {
	o.calls = append(o.calls, commandRecord{deviceType, command, err})
}

func TestManager_SendCommand(t *testing.T) {
	ctx := context.Background()
	m := NewManager(newStubFactory())
	obs := &recordingObserver{}
	m.SetCommandObserver(obs)

	if err := m.Load([]Config{{ID: "a", Type: "stub"}}); err != nil {
		t.Fatal(err)
	}
	if err := m.Start(ctx, "a"); err != nil {
		t.Fatal(err)
	}

	res, err := m.SendCommand(ctx, "a", Command{Name: "echo", Args: Args{"msg": "hi"}})
	if err != nil {
		t.Fatalf("SendCommand(echo) error = %v", err)
	}
	if res["msg"] != "hi" {
		t.Errorf("result = %v", res)
	}

	_, err = m.SendCommand(ctx, "a", Command{Name: "warp"})
	if !errors.Is(err, ErrUnknownCommand) {
		t.Errorf("SendCommand(warp) error = %v, want ErrUnknownCommand", err)
	}

	_, err = m.SendCommand(ctx, "a", Command{Name: "boom"})
	if !errors.Is(err, ErrDeviceState) {
		t.Errorf("SendCommand(boom) error = %v, want ErrDeviceState", err)
	}

	// Unknown devices are rejected before any observation.
	if _, err := m.SendCommand(ctx, "ghost", Command{Name: "ping"}); !errors.Is(err, ErrUnknownDevice) {
		t.Errorf("SendCommand(ghost) error = %v, want ErrUnknownDevice", err)
	}

	if len(obs.calls) != 3 {
		t.Fatalf("observed %d commands, want 3", len(obs.calls))
	}
	if obs.calls[0].deviceType != "stub" || obs.calls[0].command != "echo" || obs.calls[0].err != nil {
		t.Errorf("first observation = %+v", obs.calls[0])
	}
	if obs.calls[1].err == nil || obs.calls[2].err == nil {
		t.Error("failed commands observed without error")
	}
}

func TestManager_StopFromEventHandler(t *testing.T) {
	bus := events.NewBus()
	m := NewManager(newStubFactory())
	m.SetPublisher(bus)
	if err := m.Load([]Config{{ID: "a", Type: "stub"}}); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	var mu sync.Mutex
	var seen []string
	bus.SubscribeFunc("watch", func(ctx context.Context, ev events.Event) error {
		mu.Lock()
		seen = append(seen, ev.Type)
		mu.Unlock()
		if ev.Type == events.TypeDeviceStarted {
			// The handler ctx marks the nested publish as re-entrant.
			return m.Stop(ctx, ev.Source)
		}
		return nil
	})

	done := make(chan error, 1)
	go func() { done <- m.Start(context.Background(), "a") }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Start() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start() deadlocked on a nested lifecycle publish")
	}

	mu.Lock()
	defer mu.Unlock()
	if !equalStrings(seen, []string{events.TypeDeviceStarted, events.TypeDeviceStopped}) {
		t.Errorf("events = %v, want started then stopped", seen)
	}
	if st := m.Status()["a"].State; st != StateStopped {
		t.Errorf("state = %s, want stopped", st)
	}
}
