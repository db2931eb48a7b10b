package device

import (
	"context"
	"errors"
	"sync"

	"github.com/nerrad567/device-orchestra/internal/events"
)

// ─── Test Doubles ───────────────────────────────────────────────────────────

// stubDevice is a minimal Base-backed device with configurable faults.
type stubDevice struct {
	*Base
	table *CommandTable

	mu       sync.Mutex
	acquired int
	released int
}

func newStubDevice(id string, params Params, deps Deps) (Device, error) {
	if _, err := params.Int("level", 0); err != nil {
		return nil, err
	}
	d := &stubDevice{Base: NewBase(id, "stub", params, deps.Logger)}
	d.table = NewCommandTable().
		Handle("ping", func(context.Context, Args) (Result, error) {
			return Result{"pong": true}, nil
		}).
		Handle("echo", func(_ context.Context, args Args) (Result, error) {
			msg, err := args.String("msg", "")
			if err != nil {
				return nil, err
			}
			return Result{"msg": msg}, nil
		}).
		Handle("boom", func(context.Context, Args) (Result, error) {
			panic("firmware fault")
		}).
		HandleAnyState("describe", func(context.Context, Args) (Result, error) {
			return Result{"id": id}, nil
		})
	return d, nil
}

func (d *stubDevice) Start(ctx context.Context) error {
	return d.StartWith(ctx, func(context.Context) error {
		if fail, _ := d.params.Bool("fail_start", false); fail {
			return errors.New("hardware missing")
		}
		if p, _ := d.params.Bool("panic_start", false); p {
			panic("driver crashed")
		}
		d.mu.Lock()
		d.acquired++
		d.mu.Unlock()
		return nil
	})
}

func (d *stubDevice) Stop(ctx context.Context) {
	d.StopWith(ctx, func(context.Context) error {
		d.mu.Lock()
		d.released++
		d.mu.Unlock()
		return nil
	})
}

func (d *stubDevice) Status() Status { return d.StatusWith(nil) }

func (d *stubDevice) SendCommand(ctx context.Context, cmd Command) (Result, error) {
	return d.table.Dispatch(ctx, d.Base, cmd)
}

func newStubFactory() *Factory {
	f := NewFactory(Deps{})
	f.Register("stub", newStubDevice)
	return f
}

// capturingBus records published events.
type capturingBus struct {
	mu     sync.Mutex
	events []events.Event
}

func (b *capturingBus) Publish(_ context.Context, ev events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, ev)
}

func (b *capturingBus) types() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.events))
	for _, ev := range b.events {
		out = append(out, ev.Type+":"+ev.Source)
	}
	return out
}

func equalStrings(a, b []string) bool {
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
