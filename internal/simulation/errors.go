package simulation

import (
	"errors"
	"fmt"
)

// Domain errors for the simulation package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, simulation.ErrSimulatedFault) {
//	    // synthetic failure, not a real hardware problem
//	}
var (
	// ErrSimulatedFault is returned when the harness injects a synthetic fault.
	ErrSimulatedFault = errors.New("simulation: injected fault")

	// ErrInvalidParams is returned when simulation parameters are out of range.
	ErrInvalidParams = errors.New("simulation: invalid parameters")

	// ErrEmitterStuck is returned when a background emitter does not
	// acknowledge a stop request in time.
	ErrEmitterStuck = errors.New("simulation: emitter did not stop in time")
)

// FaultError is a synthetic command failure.
type FaultError struct {
	DeviceID string
	Command  string
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("device %q: simulated fault during %q", e.DeviceID, e.Command)
}

func (e *FaultError) Unwrap() error { return ErrSimulatedFault }
