package pipeline

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/nerrad567/device-orchestra/internal/device"
)

// DeviceLookup is the view of the device manager the runner needs.
// *device.Manager satisfies it.
type DeviceLookup interface {
	Get(id string) (device.Device, error)
}

// CommandSender is optionally implemented by a DeviceLookup that wants to
// dispatch commands itself. *device.Manager implements it.
type CommandSender interface {
	SendCommand(ctx context.Context, id string, cmd device.Command) (device.Result, error)
}

// commandLister is implemented by devices that can enumerate their commands.
type commandLister interface {
	Commands() []string
}

// Validate checks every step and returns every fault found.
// An empty result means the pipeline may run.
func Validate(p Pipeline, devices DeviceLookup) []Fault {
	var faults []Fault
	if len(p.Steps) == 0 {
		faults = append(faults, Fault{Index: -1, Message: "pipeline has no steps"})
	}

	for i, s := range p.Steps {
		add := func(field, format string, args ...any) {
			faults = append(faults, Fault{Index: i, Step: s.Step, Field: field, Message: fmt.Sprintf(format, args...)})
		}

		if strings.TrimSpace(s.Action) == "" {
			add("action", "is required")
		}

		if s.Device == "" {
			switch s.Action {
			case ActionWait:
				if !s.Args.Has("duration") {
					add("args.duration", "is required for %s", ActionWait)
				} else if _, err := s.Args.Seconds("duration", 0); err != nil {
					add("args.duration", "must be a non-negative number of seconds")
				}
			case ActionSave:
				if s.SaveTo == "" {
					add("save_to", "is required for %s", ActionSave)
				}
			case "":
				add("device", "is required")
			default:
				add("device", "is required for action %q", s.Action)
			}
			continue
		}

		dev, err := devices.Get(s.Device)
		if err != nil {
			add("device", "unknown device %q", s.Device)
			continue
		}
		if lister, ok := dev.(commandLister); ok && s.Action != "" {
			if !slices.Contains(lister.Commands(), s.Action) {
				add("action", "device %q does not support %q", s.Device, s.Action)
			}
		}
	}
	return faults
}
