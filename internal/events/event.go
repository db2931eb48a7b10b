package events

import (
	"context"
	"time"
)

// Event types emitted by the core packages.
const (
	TypeDeviceStarted       = "device.started"
	TypeDeviceStopped       = "device.stopped"
	TypeDeviceError         = "device.error"
	TypeDeviceData          = "device.data"
	TypeDeviceStatusChanged = "device.status_changed"
	TypeThermometerOverheat = "thermometer.overheat"

	TypePipelineStarted       = "pipeline.started"
	TypePipelineStepCompleted = "pipeline.step_completed"
	TypePipelineCompleted     = "pipeline.completed"
	TypePipelineFailed        = "pipeline.failed"
)

// Event is a transient notification. The bus never stores it.
type Event struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Source    string         `json:"source"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Handler reacts to a published event.
//
// Returned errors are logged by the bus and never reach the publisher.
//
// A handler that publishes, directly or through a device.Manager call, must
// pass on the ctx it was given. The bus recognises re-entrant publishes by
// that ctx; a publish from inside a handler with an unrelated context (for
// example context.Background()) blocks until the current dispatch ends,
// which is never.
type Handler interface {
	HandleEvent(ctx context.Context, ev Event) error
}

// HandlerFunc adapts an ordinary function to the Handler interface.
type HandlerFunc func(ctx context.Context, ev Event) error

// HandleEvent calls f(ctx, ev).
func (f HandlerFunc) HandleEvent(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}

// Publisher is the narrow view of the bus handed to event producers.
type Publisher interface {
	Publish(ctx context.Context, ev Event)
}

// ForTypes wraps h so it only sees events of the given types.
func ForTypes(h Handler, types ...string) Handler {
	allowed := make(map[string]struct{}, len(types))
	for _, t := range types {
		allowed[t] = struct{}{}
	}
	return HandlerFunc(func(ctx context.Context, ev Event) error {
		if _, ok := allowed[ev.Type]; !ok {
			return nil
		}
		return h.HandleEvent(ctx, ev)
	})
}

// LogHandler returns a handler that logs every event at debug level.
func LogHandler(logger Logger) Handler {
	return HandlerFunc(func(_ context.Context, ev Event) error {
		logger.Debug("event",
			"type", ev.Type,
			"source", ev.Source,
			"id", ev.ID,
			"payload", ev.Payload,
		)
		return nil
	})
}
