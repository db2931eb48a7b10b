package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/device-orchestra/internal/device"
	"github.com/nerrad567/device-orchestra/internal/events"
	"github.com/nerrad567/device-orchestra/internal/pipeline"
)

const namespace = "orchestra"

// Command outcome label values.
const (
	OutcomeOK          = "ok"
	OutcomeFault       = "fault"
	OutcomeUnknown     = "unknown_command"
	OutcomeBadArgument = "invalid_argument"
	OutcomeState       = "state"
	OutcomeCancelled   = "cancelled"
)

// Metrics contains every orchestra collector.
type Metrics struct {
	registry *prometheus.Registry

	EventsPublished *prometheus.CounterVec
	HandlerFailures *prometheus.CounterVec
	CommandsTotal   *prometheus.CounterVec
	CommandDuration *prometheus.HistogramVec
	StepsTotal      *prometheus.CounterVec
	StepDuration    *prometheus.HistogramVec
	RunsTotal       *prometheus.CounterVec
	RelayDrops      *prometheus.CounterVec
}

// New creates the collectors and registers them, plus the Go runtime and
// process collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		EventsPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "events",
				Name:      "published_total",
				Help:      "Events dispatched by the bus",
			},
			[]string{"type"},
		),

		HandlerFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "events",
				Name:      "handler_failures_total",
				Help:      "Subscriber errors and recovered panics",
			},
			[]string{"subscriber", "type"},
		),

		CommandsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "device",
				Name:      "commands_total",
				Help:      "Device commands by outcome",
			},
			[]string{"device_type", "command", "outcome"},
		),

		CommandDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "device",
				Name:      "command_duration_seconds",
				Help:      "Device command latency in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"device_type", "command"},
		),

		StepsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "steps_total",
				Help:      "Executed pipeline steps by status",
			},
			[]string{"action", "status"},
		),

		StepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "step_duration_seconds",
				Help:      "Pipeline step duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"action"},
		),

		RunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "runs_total",
				Help:      "Finished pipeline runs by status",
			},
			[]string{"status", "dry_run"},
		),

		RelayDrops: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "relay",
				Name:      "dropped_total",
				Help:      "Events a relay could not forward",
			},
			[]string{"relay", "reason"},
		),
	}

	m.registry.MustRegister(
		m.EventsPublished,
		m.HandlerFailures,
		m.CommandsTotal,
		m.CommandDuration,
		m.StepsTotal,
		m.StepDuration,
		m.RunsTotal,
		m.RelayDrops,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// EventPublished implements events.Observer.
func (m *Metrics) EventPublished(eventType string) {
	m.EventsPublished.WithLabelValues(eventType).Inc()
}

// HandlerFailed implements events.Observer.
func (m *Metrics) HandlerFailed(subscriber, eventType string) {
	m.HandlerFailures.WithLabelValues(subscriber, eventType).Inc()
}

// CommandFinished implements device.CommandObserver.
func (m *Metrics) CommandFinished(deviceType, command string, err error, d time.Duration) {
	m.CommandsTotal.WithLabelValues(deviceType, command, Outcome(err)).Inc()
	m.CommandDuration.WithLabelValues(deviceType, command).Observe(d.Seconds())
}

// StepFinished implements pipeline.Observer.
func (m *Metrics) StepFinished(action string, status pipeline.StepStatus, d time.Duration) {
	m.StepsTotal.WithLabelValues(action, string(status)).Inc()
	m.StepDuration.WithLabelValues(action).Observe(d.Seconds())
}

// RunFinished implements pipeline.Observer.
func (m *Metrics) RunFinished(status pipeline.RunStatus, dryRun bool) {
	m.RunsTotal.WithLabelValues(string(status), strconv.FormatBool(dryRun)).Inc()
}

// RelayDropped counts an event a relay gave up on.
func (m *Metrics) RelayDropped(relay, reason string) {
	m.RelayDrops.WithLabelValues(relay, reason).Inc()
}

// Outcome classifies a command error into a bounded label value.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, device.ErrUnknownCommand):
		return OutcomeUnknown
	case errors.Is(err, device.ErrInvalidArgument):
		return OutcomeBadArgument
	case errors.Is(err, device.ErrDeviceState):
		return OutcomeState
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return OutcomeCancelled
	default:
		return OutcomeFault
	}
}

// Compile-time interface checks.
var (
	_ events.Observer        = (*Metrics)(nil)
	_ device.CommandObserver = (*Metrics)(nil)
	_ pipeline.Observer      = (*Metrics)(nil)
)
