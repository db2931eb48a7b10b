package policy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/device-orchestra/internal/device"
	"github.com/nerrad567/device-orchestra/internal/events"
)

// CommandCooling is the command sent to an overheating device.
const CommandCooling = "cooling_activate"

// Logger is the logging interface used by policies.
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

// CommandSender dispatches a command to a managed device.
// *device.Manager satisfies it.
type CommandSender interface {
	SendCommand(ctx context.Context, id string, cmd device.Command) (device.Result, error)
}

// CoolingPolicy reacts to thermometer.overheat events.
type CoolingPolicy struct {
	sender   CommandSender
	power    float64
	cooldown time.Duration

	mu   sync.Mutex
	last map[string]time.Time

	now    func() time.Time
	logger Logger
}

// NewCoolingPolicy creates a policy that sends cooling_activate{power}.
//
// Parameters:
//   - sender: where commands go, normally the device manager
//   - power: degrees removed per activation
//   - cooldown: minimum gap between activations for one device; 0 disables it
func NewCoolingPolicy(sender CommandSender, power float64, cooldown time.Duration) *CoolingPolicy {
	return &CoolingPolicy{
		sender:   sender,
		power:    power,
		cooldown: cooldown,
		last:     make(map[string]time.Time),
		now:      time.Now,
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the policy.
func (p *CoolingPolicy) SetLogger(logger Logger) { p.logger = logger }

// Types lists the event types the policy consumes, for events.ForTypes.
func (p *CoolingPolicy) Types() []string {
	return []string{events.TypeThermometerOverheat}
}

// HandleEvent implements events.Handler.
//
// Returns an error wrapping ErrCoolingFailed when the command fails; the
// bus logs it and carries on.
func (p *CoolingPolicy) HandleEvent(ctx context.Context, ev events.Event) error {
	if ev.Type != events.TypeThermometerOverheat || ev.Source == "" {
		return nil
	}
	if !p.claim(ev.Source) {
		p.logger.Debug("cooling suppressed by cooldown", "device_id", ev.Source)
		return nil
	}

	cmd := device.Command{Name: CommandCooling, Args: device.Args{"power": p.power}}
	result, err := p.sender.SendCommand(ctx, ev.Source, cmd)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrCoolingFailed, ev.Source, err)
	}

	p.logger.Info("cooling activated",
		"device_id", ev.Source,
		"power", p.power,
		"temperature_before", result["temperature_before"],
		"temperature_after", result["temperature_after"],
	)
	return nil
}

// claim reports whether id may be cooled now and records the attempt.
func (p *CoolingPolicy) claim(id string) bool {
	now := p.now()

	p.mu.Lock()
	defer p.mu.Unlock()

	if last, ok := p.last[id]; ok && p.cooldown > 0 && now.Sub(last) < p.cooldown {
		return false
	}
	p.last[id] = now
	return true
}

// Reset forgets every cooldown window.
func (p *CoolingPolicy) Reset() {
	p.mu.Lock()
	p.last = make(map[string]time.Time)
	p.mu.Unlock()
}
