package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// ─── Test Helpers ───────────────────────────────────────────────────────────

// recorder collects the order in which handlers observed events.
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) handler(name string) Handler {
	return HandlerFunc(func(_ context.Context, ev Event) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.calls = append(r.calls, name+":"+ev.Type)
		return nil
	})
}

func (r *recorder) get() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	cpy := make([]string, len(r.calls))
	copy(cpy, r.calls)
	return cpy
}

type countingObserver struct {
	mu        sync.Mutex
	published int
	failed    map[string]int
}

func (o *countingObserver) EventPublished(string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.published++
}

func (o *countingObserver) HandlerFailed(subscriber, _ string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.failed == nil {
		o.failed = make(map[string]int)
	}
	o.failed[subscriber]++
}

func equalSlices(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ─── Tests ──────────────────────────────────────────────────────────────────

func TestBus_PublishOrder(t *testing.T) {
	bus := NewBus()
	rec := &recorder{}

	bus.Subscribe("a", rec.handler("a"))
	bus.Subscribe("b", rec.handler("b"))
	bus.Subscribe("c", rec.handler("c"))

	bus.Publish(context.Background(), Event{Type: TypeDeviceData, Source: "s1"})

	want := []string{"a:device.data", "b:device.data", "c:device.data"}
	if got := rec.get(); !equalSlices(got, want) {
		t.Errorf("calls = %v, want %v", got, want)
	}
}

func TestBus_HandlerFailureIsolated(t *testing.T) {
	tests := []struct {
		name    string
		failing Handler
	}{
		{
			name: "error",
			failing: HandlerFunc(func(context.Context, Event) error {
				return errors.New("boom")
			}),
		},
		{
			name: "panic",
			failing: HandlerFunc(func(context.Context, Event) error {
				panic("boom")
			}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := NewBus()
			obs := &countingObserver{}
			bus.SetObserver(obs)
			rec := &recorder{}

			bus.Subscribe("first", rec.handler("first"))
			bus.Subscribe("bad", tt.failing)
			bus.Subscribe("last", rec.handler("last"))

			bus.Publish(context.Background(), Event{Type: TypeDeviceStarted})

			want := []string{"first:device.started", "last:device.started"}
			if got := rec.get(); !equalSlices(got, want) {
				t.Errorf("calls = %v, want %v", got, want)
			}
			if obs.failed["bad"] != 1 {
				t.Errorf("failed[bad] = %d, want 1", obs.failed["bad"])
			}
		})
	}
}

func TestBus_FillsIDAndTimestamp(t *testing.T) {
	bus := NewBus()
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	bus.now = func() time.Time { return fixed }

	var got Event
	bus.SubscribeFunc("capture", func(_ context.Context, ev Event) error {
		got = ev
		return nil
	})

	bus.Publish(context.Background(), Event{Type: TypeDeviceData})
	if got.ID == "" {
		t.Error("ID was not filled in")
	}
	if !got.Timestamp.Equal(fixed) {
		t.Errorf("Timestamp = %v, want %v", got.Timestamp, fixed)
	}

	bus.Publish(context.Background(), Event{ID: "keep", Type: TypeDeviceData})
	if got.ID != "keep" {
		t.Errorf("ID = %q, want keep", got.ID)
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus()
	rec := &recorder{}

	id := bus.Subscribe("a", rec.handler("a"))
	bus.Subscribe("b", rec.handler("b"))

	if !bus.Unsubscribe(id) {
		t.Fatal("Unsubscribe() = false, want true")
	}
	if bus.Unsubscribe(id) {
		t.Error("second Unsubscribe() = true, want false")
	}
	if bus.Len() != 1 {
		t.Errorf("Len() = %d, want 1", bus.Len())
	}

	bus.Publish(context.Background(), Event{Type: TypeDeviceStopped})
	want := []string{"b:device.stopped"}
	if got := rec.get(); !equalSlices(got, want) {
		t.Errorf("calls = %v, want %v", got, want)
	}
}

func TestBus_ReentrantPublish(t *testing.T) {
	bus := NewBus()
	rec := &recorder{}

	bus.SubscribeFunc("relay", func(ctx context.Context, ev Event) error {
		if ev.Type == TypeThermometerOverheat {
			bus.Publish(ctx, Event{Type: TypeDeviceStatusChanged})
		}
		return nil
	})
	bus.Subscribe("rec", rec.handler("rec"))

	done := make(chan struct{})
	go func() {
		bus.Publish(context.Background(), Event{Type: TypeThermometerOverheat})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("re-entrant publish deadlocked")
	}

	// The nested event is delivered after the outer one reached every handler.
	want := []string{"rec:thermometer.overheat", "rec:device.status_changed"}
	if got := rec.get(); !equalSlices(got, want) {
		t.Errorf("calls = %v, want %v", got, want)
	}
}

func TestBus_ConcurrentPublishSerialised(t *testing.T) {
	bus := NewBus()

	var mu sync.Mutex
	inFlight, maxInFlight := 0, 0
	bus.SubscribeFunc("probe", func(context.Context, Event) error {
		mu.Lock()
		inFlight++
		if inFlight > maxInFlight {
			maxInFlight = inFlight
		}
		mu.Unlock()

		time.Sleep(time.Millisecond)

		mu.Lock()
		inFlight--
		mu.Unlock()
		return nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bus.Publish(context.Background(), Event{Type: TypeDeviceData})
		}()
	}
	wg.Wait()

	if maxInFlight != 1 {
		t.Errorf("max concurrent handler invocations = %d, want 1", maxInFlight)
	}
}

func TestForTypes(t *testing.T) {
	rec := &recorder{}
	h := ForTypes(rec.handler("f"), TypeThermometerOverheat)

	ctx := context.Background()
	_ = h.HandleEvent(ctx, Event{Type: TypeDeviceData})
	_ = h.HandleEvent(ctx, Event{Type: TypeThermometerOverheat})

	want := []string{"f:thermometer.overheat"}
	if got := rec.get(); !equalSlices(got, want) {
		t.Errorf("calls = %v, want %v", got, want)
	}
}
