package diagnostics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/device-orchestra/internal/device"
)

// Check names.
const (
	CheckStart  = "start"
	CheckStatus = "status"
	CheckProbe  = "probe"
	CheckStop   = "stop"
)

// Logger is the logging interface used by the tester.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Manager is the part of *device.Manager the tester drives.
type Manager interface {
	Get(id string) (device.Device, error)
	IDs() []string
	Start(ctx context.Context, id string) error
	Stop(ctx context.Context, id string) error
	SendCommand(ctx context.Context, id string, cmd device.Command) (device.Result, error)
}

// Check is the outcome of one test stage.
type Check struct {
	Name       string         `json:"name"`
	Passed     bool           `json:"passed"`
	Error      string         `json:"error,omitempty"`
	DurationMS int64          `json:"duration_ms"`
	Details    map[string]any `json:"details,omitempty"`
}

// Report collects the checks run against one device.
type Report struct {
	DeviceID string    `json:"device_id"`
	Type     string    `json:"type"`
	Checks   []Check   `json:"checks"`
	Started  time.Time `json:"started_at"`
}

// Passed reports whether every check passed.
func (r Report) Passed() bool {
	for _, c := range r.Checks {
		if !c.Passed {
			return false
		}
	}
	return len(r.Checks) > 0
}

// PassCount returns the number of passed checks.
func (r Report) PassCount() int {
	n := 0
	for _, c := range r.Checks {
		if c.Passed {
			n++
		}
	}
	return n
}

// Err returns nil when every check passed, otherwise an error naming the
// failed checks.
func (r Report) Err() error {
	var errs []error
	for _, c := range r.Checks {
		if !c.Passed {
			errs = append(errs, fmt.Errorf("%s: %s", c.Name, c.Error))
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: device %q: %w", ErrCheckFailed, r.DeviceID, errors.Join(errs...))
}

// Tester runs diagnostics against devices held by a Manager.
type Tester struct {
	mgr    Manager
	probes []Probe
	logger Logger
}

// NewTester creates a tester using DefaultProbes.
func NewTester(mgr Manager) *Tester {
	return &Tester{mgr: mgr, probes: DefaultProbes, logger: noopLogger{}}
}

// SetLogger sets the logger for the tester.
func (t *Tester) SetLogger(logger Logger) { t.logger = logger }

// SetProbes replaces the probe preference order.
func (t *Tester) SetProbes(probes []Probe) { t.probes = probes }

// Test runs every stage against the device.
//
// Returns device.ErrUnknownDevice when id is not managed. Check failures are
// reported in the Report, not as an error.
func (t *Tester) Test(ctx context.Context, id string) (Report, error) {
	dev, err := t.mgr.Get(id)
	if err != nil {
		return Report{}, err
	}

	report := Report{DeviceID: id, Type: dev.Type(), Started: time.Now().UTC()}
	t.logger.Info("testing device", "device_id", id, "type", dev.Type())

	report.Checks = append(report.Checks,
		t.check(CheckStart, func() (map[string]any, error) {
			return nil, t.mgr.Start(ctx, id)
		}),
		t.check(CheckStatus, func() (map[string]any, error) {
			return checkState(dev, device.StateStarted)
		}),
		t.check(CheckProbe, func() (map[string]any, error) {
			return t.probe(ctx, dev)
		}),
		t.check(CheckStop, func() (map[string]any, error) {
			if err := t.mgr.Stop(ctx, id); err != nil {
				return nil, err
			}
			return checkState(dev, device.StateStopped)
		}),
	)

	t.logger.Info("device test finished",
		"device_id", id,
		"passed", report.PassCount(),
		"total", len(report.Checks),
	)
	return report, nil
}

// TestAll tests every managed device in load order.
func (t *Tester) TestAll(ctx context.Context) []Report {
	ids := t.mgr.IDs()
	reports := make([]Report, 0, len(ids))
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		r, err := t.Test(ctx, id)
		if err != nil {
			// Removed between IDs and Test.
			continue
		}
		reports = append(reports, r)
	}
	return reports
}

func (t *Tester) check(name string, fn func() (map[string]any, error)) Check {
	start := time.Now()
	details, err := fn()
	c := Check{
		Name:       name,
		Passed:     err == nil,
		DurationMS: time.Since(start).Milliseconds(),
		Details:    details,
	}
	if err != nil {
		c.Error = err.Error()
		t.logger.Warn("device check failed", "check", name, "error", err)
	}
	return c
}

func (t *Tester) probe(ctx context.Context, dev device.Device) (map[string]any, error) {
	p, ok := selectProbe(dev, t.probes)
	if !ok {
		return nil, fmt.Errorf("%w: no probe matches the commands of %q", device.ErrUnknownCommand, dev.ID())
	}

	details := map[string]any{"probe": p.Name}
	for _, cmd := range p.Commands {
		res, err := t.mgr.SendCommand(ctx, dev.ID(), cmd)
		if err != nil {
			return details, err
		}
		details[cmd.Name] = map[string]any(res)
	}
	return details, nil
}

func checkState(dev device.Device, want device.State) (map[string]any, error) {
	st := dev.Status()
	details := map[string]any{"state": st.State.String()}
	if st.ID != dev.ID() {
		return details, fmt.Errorf("%w: status reports id %q", ErrUnexpectedState, st.ID)
	}
	if st.State != want {
		return details, fmt.Errorf("%w: %s, want %s", ErrUnexpectedState, st.State, want)
	}
	return details, nil
}
