package diagnostics

import "errors"

var (
	// ErrCheckFailed is returned by Report.Err when any check failed.
	ErrCheckFailed = errors.New("diagnostics: check failed")

	// ErrUnexpectedState is recorded when a device is not in the expected state.
	ErrUnexpectedState = errors.New("diagnostics: unexpected device state")
)
