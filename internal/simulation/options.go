package simulation

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/nerrad567/device-orchestra/internal/device"
)

// Kind selects the canned behaviour of a simulated device.
type Kind string

// Simulated device kinds.
const (
	KindCamera  Kind = "camera"
	KindMotor   Kind = "motor"
	KindSensor  Kind = "sensor"
	KindGeneric Kind = "generic"
)

// Mode scales latency and fault rate.
type Mode string

// Simulation modes.
const (
	ModeNormal   Mode = "normal"
	ModeFast     Mode = "fast"
	ModeSlow     Mode = "slow"
	ModeUnstable Mode = "unstable"
	ModeError    Mode = "error"
)

const (
	defaultBaseDelay = 100 * time.Millisecond

	fastFactor       = 0.1
	slowFactor       = 3.0
	errorDelayFactor = 2.0
	errorFaultFactor = 3.0
)

// Options are the parsed simulation parameters.
type Options struct {
	Kind             Kind
	Mode             Mode
	BaseDelay        time.Duration
	ErrorProbability float64
	Seed             uint64
	ExtraCommands    []string
}

func parseOptions(params device.Params, defaultKind Kind) (Options, error) {
	opts := Options{Kind: defaultKind, Mode: ModeNormal}

	kind, err := params.String("device_type", string(defaultKind))
	if err != nil {
		return opts, err
	}
	switch Kind(kind) {
	case KindCamera, KindMotor, KindSensor, KindGeneric:
		opts.Kind = Kind(kind)
	default:
		return opts, fmt.Errorf("%w: unknown device_type %q", ErrInvalidParams, kind)
	}

	mode, err := params.String("simulation_mode", string(ModeNormal))
	if err != nil {
		return opts, err
	}
	switch Mode(mode) {
	case ModeNormal, ModeFast, ModeSlow, ModeUnstable, ModeError:
		opts.Mode = Mode(mode)
	default:
		return opts, fmt.Errorf("%w: unknown simulation_mode %q", ErrInvalidParams, mode)
	}

	if opts.BaseDelay, err = params.Seconds("base_delay", defaultBaseDelay); err != nil {
		return opts, err
	}

	if opts.ErrorProbability, err = params.Float("error_probability", 0); err != nil {
		return opts, err
	}
	if opts.ErrorProbability < 0 || opts.ErrorProbability > 1 {
		return opts, fmt.Errorf("%w: error_probability %v outside [0, 1]", ErrInvalidParams, opts.ErrorProbability)
	}

	seed, err := params.Int("seed", 0)
	if err != nil {
		return opts, err
	}
	if seed != 0 {
		opts.Seed = uint64(seed)
	} else {
		opts.Seed = uint64(time.Now().UnixNano())
	}

	if raw, ok := params["commands"]; ok && raw != nil {
		var list []any
		switch v := raw.(type) {
		case []any:
			list = v
		case []string:
			for _, name := range v {
				list = append(list, name)
			}
		default:
			return opts, fmt.Errorf("%w: commands must be a list of names", ErrInvalidParams)
		}
		for _, v := range list {
			name, ok := v.(string)
			if !ok || name == "" {
				return opts, fmt.Errorf("%w: commands entries must be non-empty strings", ErrInvalidParams)
			}
			opts.ExtraCommands = append(opts.ExtraCommands, name)
		}
	}

	return opts, nil
}

// source is a mutex-guarded random source seeded from Options.Seed.
type source struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func newSource(seed uint64) *source {
	return &source{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Float64 returns a uniform value in [0, 1).
func (s *source) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64()
}

// Uniform returns a uniform value in [lo, hi).
func (s *source) Uniform(lo, hi float64) float64 {
	return lo + (hi-lo)*s.Float64()
}

// effectiveDelay applies the mode's latency scaling.
func (o Options) effectiveDelay(src *source) time.Duration {
	d := float64(o.BaseDelay)
	switch o.Mode {
	case ModeFast:
		d *= fastFactor
	case ModeSlow:
		d *= slowFactor
	case ModeUnstable:
		d *= src.Uniform(0.5, 2.0)
	case ModeError:
		d *= errorDelayFactor
	}
	return time.Duration(d)
}

// faultProbability applies the mode's fault scaling.
func (o Options) faultProbability() float64 {
	p := o.ErrorProbability
	if o.Mode == ModeError {
		p *= errorFaultFactor
	}
	if p > 1 {
		p = 1
	}
	return p
}

// sleepCtx suspends for d or until ctx is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
