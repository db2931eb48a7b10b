package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Logger defines the logging interface used by the Bus.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Observer receives dispatch statistics. internal/metrics implements it.
type Observer interface {
	EventPublished(eventType string)
	HandlerFailed(subscriber, eventType string)
}

type noopObserver struct{}

func (noopObserver) EventPublished(string)        {}
func (noopObserver) HandlerFailed(string, string) {}

// SubscriptionID identifies a subscription for Unsubscribe.
type SubscriptionID uint64

type subscription struct {
	id      SubscriptionID
	name    string
	handler Handler
}

// dispatchKey marks contexts handed to handlers so a publish from inside a
// handler is recognised as re-entrant.
type dispatchKey struct{}

// Bus is a synchronous publish/subscribe hub.
//
// All public methods are safe for concurrent use.
type Bus struct {
	mu          sync.Mutex // protects subs, nextID, dispatching, pending
	subs        []subscription
	nextID      SubscriptionID
	dispatching bool
	pending     []Event

	dispatchMu sync.Mutex // held for the whole dispatch of one publish

	logger   Logger
	observer Observer
	now      func() time.Time
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{
		logger:   noopLogger{},
		observer: noopObserver{},
		now:      time.Now,
	}
}

// SetLogger sets the logger for the bus.
func (b *Bus) SetLogger(logger Logger) {
	b.logger = logger
}

// SetObserver sets the dispatch statistics observer.
func (b *Bus) SetObserver(o Observer) {
	b.observer = o
}

// Subscribe registers h and returns its subscription ID.
// The name is used in logs and metrics only.
func (b *Bus) Subscribe(name string, h Handler) SubscriptionID {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	b.subs = append(b.subs, subscription{id: b.nextID, name: name, handler: h})
	b.logger.Debug("event subscriber added", "subscriber", name, "subscription_id", uint64(b.nextID))
	return b.nextID
}

// SubscribeFunc is Subscribe for a plain function.
func (b *Bus) SubscribeFunc(name string, fn func(ctx context.Context, ev Event) error) SubscriptionID {
	return b.Subscribe(name, HandlerFunc(fn))
}

// Unsubscribe removes a subscription. It reports whether the ID was known.
//
// A publish already in flight still delivers to the handler it snapshotted.
func (b *Bus) Unsubscribe(id SubscriptionID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return true
		}
	}
	return false
}

// Len returns the number of active subscriptions.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Publish delivers ev to every current subscriber before returning.
//
// Empty ID and Timestamp fields are filled in. Handler failures are
// contained. When called from inside a handler with the handler's ctx (or
// one derived from it), the event is queued and delivered after the event
// being dispatched. See Handler.
func (b *Bus) Publish(ctx context.Context, ev Event) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = b.now().UTC()
	}

	if ctx.Value(dispatchKey{}) == b {
		b.mu.Lock()
		if b.dispatching {
			b.pending = append(b.pending, ev)
			b.mu.Unlock()
			return
		}
		b.mu.Unlock()
	}

	b.dispatchMu.Lock()
	defer b.dispatchMu.Unlock()

	b.mu.Lock()
	b.dispatching = true
	b.mu.Unlock()

	hctx := context.WithValue(ctx, dispatchKey{}, b)
	next := ev
	for {
		b.dispatch(hctx, next)

		b.mu.Lock()
		if len(b.pending) == 0 {
			b.dispatching = false
			b.mu.Unlock()
			return
		}
		next = b.pending[0]
		b.pending = b.pending[1:]
		b.mu.Unlock()
	}
}

// dispatch runs every subscriber for one event, in subscription order.
func (b *Bus) dispatch(ctx context.Context, ev Event) {
	b.mu.Lock()
	subs := make([]subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.Unlock()

	b.observer.EventPublished(ev.Type)

	for _, s := range subs {
		if err := b.invoke(ctx, s, ev); err != nil {
			b.observer.HandlerFailed(s.name, ev.Type)
			b.logger.Warn("event handler failed",
				"subscriber", s.name,
				"event_type", ev.Type,
				"event_id", ev.ID,
				"error", err,
			)
		}
	}
}

// invoke calls one handler, converting a panic into an error.
func (b *Bus) invoke(ctx context.Context, s subscription, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()
	return s.handler.HandleEvent(ctx, ev)
}
