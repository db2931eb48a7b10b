package device

import (
	"errors"
	"fmt"
	"strings"
)

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrUnknownDevice) {
//	    // handle not found case
//	}
var (
	// ErrConfiguration is returned when device configuration is malformed.
	ErrConfiguration = errors.New("device: invalid configuration")

	// ErrUnknownDeviceType is returned when no constructor is registered for a type.
	ErrUnknownDeviceType = errors.New("device: unknown type")

	// ErrUnknownDevice is returned when a device ID is not managed.
	ErrUnknownDevice = errors.New("device: unknown device")

	// ErrDuplicateDevice is returned when adding a device whose ID is already managed.
	ErrDuplicateDevice = errors.New("device: duplicate id")

	// ErrDeviceState is returned when an operation is not valid in the device's state.
	ErrDeviceState = errors.New("device: invalid state for operation")

	// ErrUnknownCommand is returned when a command is not in the device's command table.
	ErrUnknownCommand = errors.New("device: unknown command")

	// ErrInvalidArgument is returned when a command argument or parameter has the wrong type.
	ErrInvalidArgument = errors.New("device: invalid argument")
)

// StateError reports a lifecycle precondition violation or a failed start.
type StateError struct {
	DeviceID string
	Op       string
	State    State
	Err      error // underlying cause, nil for plain precondition violations
}

func (e *StateError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("device %q: %s failed in state %s: %v", e.DeviceID, e.Op, e.State, e.Err)
	}
	return fmt.Sprintf("device %q: %s not allowed in state %s", e.DeviceID, e.Op, e.State)
}

// Unwrap exposes both ErrDeviceState and the underlying cause.
func (e *StateError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrDeviceState}
	}
	return []error{ErrDeviceState, e.Err}
}

// CommandError reports a command name outside the device's command table.
type CommandError struct {
	DeviceID  string
	Command   string
	Supported []string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("device %q: unknown command %q (supported: %s)",
		e.DeviceID, e.Command, strings.Join(e.Supported, ", "))
}

func (e *CommandError) Unwrap() error { return ErrUnknownCommand }

// ConfigError aggregates every fault found in a set of configuration records.
type ConfigError struct {
	Faults []string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("device configuration errors: %s", strings.Join(e.Faults, "; "))
}

func (e *ConfigError) Unwrap() error { return ErrConfiguration }
