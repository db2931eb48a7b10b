package relay

import "errors"

// Relay names used in logs and drop metrics.
const (
	NameMQTT   = "mqtt"
	NameInflux = "influxdb"
)

// Drop reasons.
const (
	DropQueueFull     = "queue_full"
	DropRateLimited   = "rate_limited"
	DropPublishFailed = "publish_failed"
	DropEncodeFailed  = "encode_failed"
	DropClosed        = "closed"
)

// ErrClosed is returned by Run when called on a relay that already ran.
var ErrClosed = errors.New("relay: closed")

// Logger is the logging interface used by relays.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// DropObserver is told about every event a relay gives up on.
// *metrics.Metrics satisfies it.
type DropObserver interface {
	RelayDropped(relay, reason string)
}

type noopDrops struct{}

func (noopDrops) RelayDropped(string, string) {}
