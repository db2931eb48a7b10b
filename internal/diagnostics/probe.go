package diagnostics

import (
	"slices"

	"github.com/nerrad567/device-orchestra/internal/device"
)

// Probe is a short command sequence that exercises a device.
type Probe struct {
	Name     string
	Commands []device.Command
}

// DefaultProbes is the probe preference order. The first probe whose
// commands the device advertises is used.
var DefaultProbes = []Probe{
	{Name: "capture", Commands: []device.Command{{Name: "capture"}}},
	{Name: "motion", Commands: []device.Command{
		{Name: "home"},
		{Name: "move", Args: device.Args{"steps": 10}},
	}},
	{Name: "read", Commands: []device.Command{{Name: "read"}}},
	{Name: "temperature", Commands: []device.Command{{Name: "get_temperature"}}},
	{Name: "ping", Commands: []device.Command{{Name: "ping"}}},
}

type commandLister interface {
	Commands() []string
}

// selectProbe picks the first probe dev supports. Devices that do not list
// their commands get the last probe.
func selectProbe(dev device.Device, probes []Probe) (Probe, bool) {
	if len(probes) == 0 {
		return Probe{}, false
	}
	lister, ok := dev.(commandLister)
	if !ok {
		return probes[len(probes)-1], true
	}
	have := lister.Commands()
	for _, p := range probes {
		if supports(have, p) {
			return p, true
		}
	}
	return Probe{}, false
}

func supports(have []string, p Probe) bool {
	for _, c := range p.Commands {
		if !slices.Contains(have, c.Name) {
			return false
		}
	}
	return true
}
