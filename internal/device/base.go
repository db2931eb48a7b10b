package device

import (
	"context"
	"errors"
	"sync"
)

// Base implements the lifecycle rules shared by every device type.
// Concrete devices embed *Base and supply acquire/release hooks.
type Base struct {
	id       string
	typeName string
	params   Params
	logger   Logger

	lifecycleMu sync.Mutex // serialises Start and Stop

	mu      sync.RWMutex // protects state, lastErr
	state   State
	lastErr error
}

// NewBase creates a Base in the Uninitialized state.
// params is deep-copied; later changes by the caller are not observed.
func NewBase(id, typeName string, params Params, logger Logger) *Base {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Base{
		id:       id,
		typeName: typeName,
		params:   params.Copy(),
		logger:   logger,
		state:    StateUninitialized,
	}
}

// ID returns the device ID.
func (b *Base) ID() string { return b.id }

// Type returns the device type name.
func (b *Base) Type() string { return b.typeName }

// Params returns a copy of the construction parameters.
func (b *Base) Params() Params { return b.params.Copy() }

// Logger returns the device's logger.
func (b *Base) Logger() Logger { return b.logger }

// State returns the current lifecycle state.
func (b *Base) State() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// LastError returns the fault that moved the device into StateFaulted, if any.
func (b *Base) LastError() error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastErr
}

// StartWith runs the Start transition, calling acquire only from Uninitialized.
//
// A Started device returns nil without calling acquire. A failed acquire
// moves the device to StateFaulted, except when the failure is the caller's
// own cancellation: the device then stays Uninitialized and may be started
// again.
func (b *Base) StartWith(ctx context.Context, acquire func(ctx context.Context) error) error {
	b.lifecycleMu.Lock()
	defer b.lifecycleMu.Unlock()

	switch st := b.State(); st {
	case StateStarted:
		return nil
	case StateUninitialized:
	default:
		return &StateError{DeviceID: b.id, Op: "start", State: st}
	}

	if acquire != nil {
		if err := acquire(ctx); err != nil {
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				b.logger.Warn("device start cancelled", "device_id", b.id, "type", b.typeName, "error", err)
				return &StateError{DeviceID: b.id, Op: "start", State: StateUninitialized, Err: err}
			}
			b.setState(StateFaulted, err)
			b.logger.Error("device start failed", "device_id", b.id, "type", b.typeName, "error", err)
			return &StateError{DeviceID: b.id, Op: "start", State: StateFaulted, Err: err}
		}
	}

	b.setState(StateStarted, nil)
	b.logger.Debug("device started", "device_id", b.id, "type", b.typeName)
	return nil
}

// StopWith runs the Stop transition. release is called only for a Started
// device; its error is logged and the device still ends Stopped.
func (b *Base) StopWith(ctx context.Context, release func(ctx context.Context) error) {
	b.lifecycleMu.Lock()
	defer b.lifecycleMu.Unlock()

	st := b.State()
	if st == StateStopped {
		return
	}
	if st == StateStarted && release != nil {
		if err := release(ctx); err != nil {
			b.logger.Warn("device release failed", "device_id", b.id, "type", b.typeName, "error", err)
		}
	}

	b.setState(StateStopped, b.LastError())
	b.logger.Debug("device stopped", "device_id", b.id, "type", b.typeName)
}

// Fail moves a Started device into StateFaulted after an unrecoverable fault.
func (b *Base) Fail(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != StateStarted {
		return
	}
	b.state = StateFaulted
	b.lastErr = err
	b.logger.Error("device faulted", "device_id", b.id, "type", b.typeName, "error", err)
}

// RequireStarted returns a *StateError unless the device is Started.
func (b *Base) RequireStarted(op string) error {
	if st := b.State(); st != StateStarted {
		return &StateError{DeviceID: b.id, Op: op, State: st}
	}
	return nil
}

// StatusWith builds a Status carrying the given type-specific fields.
func (b *Base) StatusWith(fields map[string]any) Status {
	b.mu.RLock()
	st, lastErr := b.state, b.lastErr
	b.mu.RUnlock()

	if lastErr != nil {
		if fields == nil {
			fields = make(map[string]any, 1)
		}
		fields["last_error"] = lastErr.Error()
	}
	return Status{ID: b.id, Type: b.typeName, State: st, Fields: fields}
}

func (b *Base) setState(st State, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = st
	b.lastErr = err
}
