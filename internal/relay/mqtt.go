package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/nerrad567/device-orchestra/internal/events"
	"github.com/nerrad567/device-orchestra/internal/infrastructure/mqtt"
)

// DefaultQueueSize bounds the events waiting for the MQTT worker.
const DefaultQueueSize = 256

// Publisher is the part of *mqtt.Client the relay needs.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// MQTTRelay mirrors every bus event to {root}/event/{source}/{type} and
// keeps a retained {root}/device/{id}/state for lifecycle events.
type MQTTRelay struct {
	pub     Publisher
	topics  mqtt.Topics
	qos     byte
	limiter *rate.Limiter

	queue chan events.Event

	mu      sync.Mutex
	running bool
	closed  bool

	logger Logger
	drops  DropObserver
}

// MQTTOptions configures an MQTTRelay.
type MQTTOptions struct {
	Topics mqtt.Topics
	QoS    byte

	// RatePerSec and Burst shape publishing; RatePerSec 0 means unlimited.
	RatePerSec float64
	Burst      int

	// QueueSize defaults to DefaultQueueSize.
	QueueSize int
}

// NewMQTTRelay creates a relay publishing through pub.
func NewMQTTRelay(pub Publisher, opts MQTTOptions) *MQTTRelay {
	limit := rate.Inf
	if opts.RatePerSec > 0 {
		limit = rate.Limit(opts.RatePerSec)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}
	size := opts.QueueSize
	if size <= 0 {
		size = DefaultQueueSize
	}

	return &MQTTRelay{
		pub:     pub,
		topics:  opts.Topics,
		qos:     opts.QoS,
		limiter: rate.NewLimiter(limit, burst),
		queue:   make(chan events.Event, size),
		logger:  noopLogger{},
		drops:   noopDrops{},
	}
}

// SetLogger sets the logger for the relay.
func (r *MQTTRelay) SetLogger(logger Logger) { r.logger = logger }

// SetDropObserver sets where dropped events are counted.
func (r *MQTTRelay) SetDropObserver(o DropObserver) { r.drops = o }

// HandleEvent implements events.Handler. It only enqueues.
func (r *MQTTRelay) HandleEvent(_ context.Context, ev events.Event) error {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		r.drops.RelayDropped(NameMQTT, DropClosed)
		return nil
	}

	select {
	case r.queue <- ev:
	default:
		r.drops.RelayDropped(NameMQTT, DropQueueFull)
		r.logger.Warn("mqtt relay queue full, event dropped", "type", ev.Type, "source", ev.Source)
	}
	return nil
}

// Pending returns the number of queued events.
func (r *MQTTRelay) Pending() int {
	return len(r.queue)
}

// Run publishes queued events until ctx is cancelled, then drains what is
// already queued without waiting on the limiter. A relay runs once.
func (r *MQTTRelay) Run(ctx context.Context) error {
	r.mu.Lock()
	if r.running || r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	r.running = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.closed = true
		r.mu.Unlock()
		r.drain()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-r.queue:
			if err := r.limiter.Wait(ctx); err != nil {
				// Cancelled while waiting: the event goes out in drain.
				r.forward(ev)
				return nil
			}
			r.forward(ev)
		}
	}
}

func (r *MQTTRelay) drain() {
	for {
		select {
		case ev := <-r.queue:
			r.forward(ev)
		default:
			return
		}
	}
}

func (r *MQTTRelay) forward(ev events.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		r.drops.RelayDropped(NameMQTT, DropEncodeFailed)
		r.logger.Error("mqtt relay encode failed", "type", ev.Type, "error", err)
		return
	}

	if err := r.pub.Publish(r.topics.Event(ev.Source, ev.Type), payload, r.qos, false); err != nil {
		r.drops.RelayDropped(NameMQTT, DropPublishFailed)
		r.logger.Warn("mqtt relay publish failed", "type", ev.Type, "source", ev.Source, "error", err)
		return
	}

	if state, ok := lifecycleState(ev.Type); ok {
		body, _ := json.Marshal(map[string]any{ //nolint:errcheck // Strings and a time always marshal
			"device_id": ev.Source,
			"state":     state,
			"timestamp": ev.Timestamp.UTC().Format(time.RFC3339Nano),
		})
		if err := r.pub.Publish(r.topics.DeviceState(ev.Source), body, r.qos, true); err != nil {
			r.drops.RelayDropped(NameMQTT, DropPublishFailed)
			r.logger.Warn("mqtt relay state publish failed", "device_id", ev.Source, "error", fmt.Errorf("%s: %w", state, err))
		}
	}
}

// lifecycleState maps lifecycle events to the state they leave the device in.
func lifecycleState(eventType string) (string, bool) {
	switch eventType {
	case events.TypeDeviceStarted:
		return "started", true
	case events.TypeDeviceStopped:
		return "stopped", true
	case events.TypeDeviceError:
		return "error", true
	}
	return "", false
}
