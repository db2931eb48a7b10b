// Package diagnostics runs a quick self-test against a managed device.
//
// A test walks the device through its lifecycle and records one Check per
// stage:
//
//	start → status → probe command(s) → stop
//
// The probe is picked from the commands the device advertises (capture for
// cameras, home+move for motors, read or get_temperature for sensors, ping
// otherwise). Every stage runs even after an earlier one failed, and stop
// always runs, so the device is left stopped. Stopped is terminal: a tested
// device cannot be started again in the same process.
package diagnostics
