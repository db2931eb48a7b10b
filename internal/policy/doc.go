// Package policy holds automatic reactions to device events.
//
// A policy is a bus subscriber that answers an event by sending a command
// back through the device manager. Policies never touch devices directly,
// so every command they issue is observed and logged like any other.
//
// CoolingPolicy answers thermometer.overheat with cooling_activate on the
// device that raised it, at most once per device per cooldown window.
package policy
