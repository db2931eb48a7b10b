package events

import "errors"

// Domain errors for the events package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, events.ErrHandlerPanic) {
//	    // a subscriber panicked
//	}
var (
	// ErrHandlerPanic wraps a panic recovered from an event handler.
	ErrHandlerPanic = errors.New("events: handler panicked")
)
