package policy

import "errors"

// ErrCoolingFailed wraps a cooling_activate command that did not succeed.
var ErrCoolingFailed = errors.New("policy: cooling command failed")
