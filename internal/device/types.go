package device

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/nerrad567/device-orchestra/internal/events"
)

// Device is the uniform lifecycle and command contract every device obeys.
type Device interface {
	// ID returns the device's unique identifier.
	ID() string

	// Type returns the factory type name the device was built from.
	Type() string

	// Start acquires the device's resources.
	// Returns a *StateError when the device cannot start.
	Start(ctx context.Context) error

	// Stop releases the device's resources. It is idempotent and never fails.
	Stop(ctx context.Context)

	// Status returns a snapshot of the device. Valid in any state.
	Status() Status

	// SendCommand executes a named command from the device's command table.
	SendCommand(ctx context.Context, cmd Command) (Result, error)
}

// State is a device lifecycle state.
type State string

// Lifecycle states.
const (
	StateUninitialized State = "uninitialized"
	StateStarted       State = "started"
	StateStopped       State = "stopped"
	StateFaulted       State = "error"
)

func (s State) String() string { return string(s) }

// Status is a point-in-time view of a device.
type Status struct {
	ID     string         `json:"id"`
	Type   string         `json:"type"`
	State  State          `json:"state"`
	Fields map[string]any `json:"fields,omitempty"`
}

// Command is a named operation with loosely-typed arguments.
type Command struct {
	Name string `json:"name"`
	Args Args   `json:"args,omitempty"`
}

// Result is the map a successful command returns.
type Result map[string]any

// Config is a device configuration record.
type Config struct {
	ID     string `json:"id" yaml:"id"`
	Type   string `json:"type" yaml:"type"`
	Params Params `json:"params,omitempty" yaml:"params,omitempty"`
}

// Deps are the shared collaborators handed to every constructor.
type Deps struct {
	Bus    events.Publisher
	Logger Logger
}

// Constructor builds a device in the Uninitialized state.
// It must not perform I/O.
type Constructor func(id string, params Params, deps Deps) (Device, error)

// Logger defines the logging interface used by the device package.
// This allows different logging implementations to be used.
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

// NoopLogger returns a Logger that discards everything.
func NoopLogger() Logger { return noopLogger{} }

// Params holds a device's construction parameters.
type Params map[string]any

// Copy returns a deep copy of p.
func (p Params) Copy() Params {
	return deepCopyMap(p)
}

// String returns the string at key, or def when absent.
func (p Params) String(key, def string) (string, error) { return stringValue(p, key, def) }

// Float returns the number at key, or def when absent.
func (p Params) Float(key string, def float64) (float64, error) { return floatValue(p, key, def) }

// Int returns the integer at key, or def when absent.
func (p Params) Int(key string, def int) (int, error) { return intValue(p, key, def) }

// Bool returns the boolean at key, or def when absent.
func (p Params) Bool(key string, def bool) (bool, error) { return boolValue(p, key, def) }

// Seconds returns the number of seconds at key as a Duration, or def when absent.
func (p Params) Seconds(key string, def time.Duration) (time.Duration, error) {
	return secondsValue(p, key, def)
}

// Args holds a command's arguments.
type Args map[string]any

// String returns the string at key, or def when absent.
func (a Args) String(key, def string) (string, error) { return stringValue(a, key, def) }

// Float returns the number at key, or def when absent.
func (a Args) Float(key string, def float64) (float64, error) { return floatValue(a, key, def) }

// Int returns the integer at key, or def when absent.
func (a Args) Int(key string, def int) (int, error) { return intValue(a, key, def) }

// Bool returns the boolean at key, or def when absent.
func (a Args) Bool(key string, def bool) (bool, error) { return boolValue(a, key, def) }

// Seconds returns the number of seconds at key as a Duration, or def when absent.
func (a Args) Seconds(key string, def time.Duration) (time.Duration, error) {
	return secondsValue(a, key, def)
}

// Has reports whether key is present.
func (a Args) Has(key string) bool {
	_, ok := a[key]
	return ok
}

func stringValue(m map[string]any, key, def string) (string, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return def, fmt.Errorf("%w: %s must be a string, got %T", ErrInvalidArgument, key, v)
	}
	return s, nil
}

func floatValue(m map[string]any, key string, def float64) (float64, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return def, nil
	}
	f, ok := toFloat(v)
	if !ok {
		return def, fmt.Errorf("%w: %s must be a number, got %T", ErrInvalidArgument, key, v)
	}
	return f, nil
}

func intValue(m map[string]any, key string, def int) (int, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return def, nil
	}
	if i, ok := v.(int); ok {
		return i, nil
	}
	f, ok := toFloat(v)
	if !ok || f != math.Trunc(f) {
		return def, fmt.Errorf("%w: %s must be an integer, got %v", ErrInvalidArgument, key, v)
	}
	// float64(math.MaxInt) rounds up to 2^63, so the upper bound is exclusive.
	if f < math.MinInt || f >= math.MaxInt {
		return def, fmt.Errorf("%w: %s out of range: %v", ErrInvalidArgument, key, v)
	}
	return int(f), nil
}

func boolValue(m map[string]any, key string, def bool) (bool, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return def, nil
	}
	b, ok := v.(bool)
	if !ok {
		return def, fmt.Errorf("%w: %s must be a boolean, got %T", ErrInvalidArgument, key, v)
	}
	return b, nil
}

func secondsValue(m map[string]any, key string, def time.Duration) (time.Duration, error) {
	f, err := floatValue(m, key, def.Seconds())
	if err != nil {
		return def, err
	}
	if f < 0 {
		return def, fmt.Errorf("%w: %s must not be negative", ErrInvalidArgument, key)
	}
	ns := f * float64(time.Second)
	if math.IsNaN(ns) || ns >= math.MaxInt64 {
		return def, fmt.Errorf("%w: %s out of range: %v", ErrInvalidArgument, key, f)
	}
	return time.Duration(ns), nil
}

// toFloat accepts the numeric shapes produced by the JSON and YAML decoders.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// deepCopyMap creates a deep copy of a map[string]any.
func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cpy := make(map[string]any, len(m))
	for k, v := range m {
		cpy[k] = deepCopyValue(v)
	}
	return cpy
}

// deepCopyValue recursively copies a value, handling nested maps and slices.
func deepCopyValue(v any) any {
	if v == nil {
		return nil
	}
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case Params:
		return Params(deepCopyMap(val))
	case []any:
		cpy := make([]any, len(val))
		for i, elem := range val {
			cpy[i] = deepCopyValue(elem)
		}
		return cpy
	default:
		// Primitives (string, bool, int, float64, etc.) are safe to copy by value
		return v
	}
}

// CopyResult returns a deep copy of r.
func CopyResult(r Result) Result {
	return Result(deepCopyMap(r))
}
