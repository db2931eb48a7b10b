package simulation

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/nerrad567/device-orchestra/internal/device"
	"github.com/nerrad567/device-orchestra/internal/events"
)

const (
	defaultStopTimeout = 2 * time.Second
	defaultLogLimit    = 100
	spikeProbability   = 0.1
)

type thermometerConfig struct {
	minTemp     float64
	maxTemp     float64
	threshold   float64
	drift       float64
	intervalMin time.Duration
	intervalMax time.Duration
	stopTimeout time.Duration
	logLimit    int
	seed        uint64
}

func parseThermometerConfig(params device.Params) (thermometerConfig, error) {
	var (
		cfg thermometerConfig
		err error
	)
	if cfg.minTemp, err = params.Float("min_temp", 20.0); err != nil {
		return cfg, err
	}
	if cfg.maxTemp, err = params.Float("max_temp", 30.0); err != nil {
		return cfg, err
	}
	if cfg.threshold, err = params.Float("overheat_threshold", 28.0); err != nil {
		return cfg, err
	}
	if cfg.drift, err = params.Float("temperature_drift", 0.5); err != nil {
		return cfg, err
	}

	interval, err := params.Seconds("measurement_interval", time.Second)
	if err != nil {
		return cfg, err
	}
	if cfg.intervalMin, err = params.Seconds("interval_min", interval); err != nil {
		return cfg, err
	}
	if cfg.intervalMax, err = params.Seconds("interval_max", interval); err != nil {
		return cfg, err
	}
	if cfg.stopTimeout, err = params.Seconds("stop_timeout", defaultStopTimeout); err != nil {
		return cfg, err
	}
	if cfg.logLimit, err = params.Int("log_limit", defaultLogLimit); err != nil {
		return cfg, err
	}
	seed, err := params.Int("seed", 0)
	if err != nil {
		return cfg, err
	}
	cfg.seed = uint64(seed)
	if seed == 0 {
		cfg.seed = uint64(time.Now().UnixNano())
	}

	switch {
	case cfg.minTemp >= cfg.maxTemp:
		return cfg, fmt.Errorf("%w: min_temp must be below max_temp", ErrInvalidParams)
	case cfg.intervalMin <= 0 || cfg.intervalMax < cfg.intervalMin:
		return cfg, fmt.Errorf("%w: need 0 < interval_min <= interval_max", ErrInvalidParams)
	case cfg.drift < 0:
		return cfg, fmt.Errorf("%w: temperature_drift must not be negative", ErrInvalidParams)
	case cfg.logLimit < 1:
		return cfg, fmt.Errorf("%w: log_limit must be positive", ErrInvalidParams)
	}
	return cfg, nil
}

// Thermometer is a virtual temperature probe with a background emitter.
//
// While Started it publishes device.data readings at a random interval in
// [interval_min, interval_max], plus thermometer.overheat whenever a
// reading exceeds overheat_threshold. Stop cancels the emitter and waits
// for it to exit, bounded by stop_timeout.
type Thermometer struct {
	*device.Base
	cfg   thermometerConfig
	src   *source
	bus   events.Publisher
	table *device.CommandTable

	mu           sync.Mutex // protects everything below
	temperature  float64
	measurements int
	readings     []map[string]any
	overheats    []map[string]any
	coolings     []map[string]any

	loopMu sync.Mutex // protects cancel, done
	cancel context.CancelFunc
	done   chan struct{}
}

// NewThermometer is the device.Constructor for virtual-thermometer.
func NewThermometer(id string, params device.Params, deps device.Deps) (device.Device, error) {
	cfg, err := parseThermometerConfig(params)
	if err != nil {
		return nil, err
	}
	initial, err := params.Float("initial_temp", (cfg.minTemp+cfg.maxTemp)/2)
	if err != nil {
		return nil, err
	}

	t := &Thermometer{
		Base:        device.NewBase(id, TypeThermometer, params, deps.Logger),
		cfg:         cfg,
		src:         newSource(cfg.seed),
		bus:         deps.Bus,
		temperature: clamp(initial, cfg.minTemp, cfg.maxTemp),
	}
	t.table = device.NewCommandTable().
		HandleAnyState("get_temperature", t.getTemperature).
		HandleAnyState("get_logs", t.getLogs).
		Handle("set_temperature", t.setTemperature).
		Handle("cooling_activate", t.coolingActivate).
		Handle("clear_logs", t.clearLogs)
	return t, nil
}

// Start launches the background emitter.
func (t *Thermometer) Start(ctx context.Context) error {
	return t.StartWith(ctx, func(context.Context) error {
		loopCtx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})

		t.loopMu.Lock()
		t.cancel, t.done = cancel, done
		t.loopMu.Unlock()

		go t.run(loopCtx, done)
		return nil
	})
}

// Stop cancels the emitter and waits for it to acknowledge, bounded by
// stop_timeout. The caller's ctx does not shorten the wait. Once Stop
// returns, the thermometer publishes nothing further unless the bounded
// wait expired, which is logged.
func (t *Thermometer) Stop(ctx context.Context) {
	t.StopWith(ctx, func(context.Context) error {
		t.loopMu.Lock()
		cancel, done := t.cancel, t.done
		t.cancel, t.done = nil, nil
		t.loopMu.Unlock()

		if cancel == nil {
			return nil
		}
		cancel()

		timer := time.NewTimer(t.cfg.stopTimeout)
		defer timer.Stop()
		select {
		case <-done:
			return nil
		case <-timer.C:
			return fmt.Errorf("%w: no acknowledgement within %v", ErrEmitterStuck, t.cfg.stopTimeout)
		}
	})
}

// Status reports the current reading and emitter statistics.
func (t *Thermometer) Status() device.Status {
	t.mu.Lock()
	fields := map[string]any{
		"current_temperature":    round2(t.temperature),
		"overheat_threshold":     t.cfg.threshold,
		"measurement_count":      t.measurements,
		"interval_min":           t.cfg.intervalMin.Seconds(),
		"interval_max":           t.cfg.intervalMax.Seconds(),
		"temperature_range":      []float64{t.cfg.minTemp, t.cfg.maxTemp},
		"overheat_events_count":  len(t.overheats),
		"cooling_commands_count": len(t.coolings),
	}
	t.mu.Unlock()
	return t.StatusWith(fields)
}

// Commands returns the names the thermometer accepts.
func (t *Thermometer) Commands() []string { return t.table.Names() }

// SendCommand dispatches cmd through the thermometer's command table.
func (t *Thermometer) SendCommand(ctx context.Context, cmd device.Command) (device.Result, error) {
	return t.table.Dispatch(ctx, t.Base, cmd)
}

// Temperature returns the current simulated temperature.
func (t *Thermometer) Temperature() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.temperature
}

func (t *Thermometer) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	logger := t.Logger()
	logger.Debug("thermometer emitter started", "device_id", t.ID())
	defer logger.Debug("thermometer emitter stopped", "device_id", t.ID())

	for {
		wait := t.cfg.intervalMin
		if span := t.cfg.intervalMax - t.cfg.intervalMin; span > 0 {
			wait += time.Duration(t.src.Float64() * float64(span))
		}
		if err := sleepCtx(ctx, wait); err != nil {
			return
		}

		reading, overheat := t.measure()
		if ctx.Err() != nil || t.bus == nil {
			continue
		}
		t.bus.Publish(ctx, events.Event{Type: events.TypeDeviceData, Source: t.ID(), Payload: reading})
		if overheat != nil && ctx.Err() == nil {
			logger.Warn("thermometer overheat", "device_id", t.ID(), "temperature", overheat["temperature"])
			t.bus.Publish(ctx, events.Event{Type: events.TypeThermometerOverheat, Source: t.ID(), Payload: overheat})
		}
	}
}

// measure advances the random walk and records the reading.
func (t *Thermometer) measure() (reading, overheat map[string]any) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.measurements++
	temp := t.temperature + t.src.Uniform(-t.cfg.drift, t.cfg.drift)
	temp = clamp(temp, t.cfg.minTemp, t.cfg.maxTemp)
	if t.src.Float64() < spikeProbability {
		temp = clamp(temp+t.src.Uniform(-1.5, 2.0), t.cfg.minTemp, t.cfg.maxTemp)
	}
	t.temperature = temp

	now := time.Now().UTC()
	reading = map[string]any{
		"measurement_id": t.measurements,
		"temperature":    round2(temp),
		"unit":           "°C",
		"timestamp":      now,
	}
	t.readings = appendBounded(t.readings, reading, t.cfg.logLimit)

	if temp > t.cfg.threshold {
		overheat = map[string]any{
			"measurement_id": t.measurements,
			"temperature":    round2(temp),
			"threshold":      t.cfg.threshold,
			"timestamp":      now,
		}
		t.overheats = appendBounded(t.overheats, overheat, t.cfg.logLimit)
	}
	return copyMap(reading), copyMap(overheat)
}

func (t *Thermometer) getTemperature(context.Context, device.Args) (device.Result, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return device.Result{
		"temperature": round2(t.temperature),
		"unit":        "°C",
		"device_id":   t.ID(),
		"timestamp":   time.Now().UTC(),
	}, nil
}

func (t *Thermometer) setTemperature(_ context.Context, args device.Args) (device.Result, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	temp, err := args.Float("temperature", t.temperature)
	if err != nil {
		return nil, err
	}
	t.temperature = clamp(temp, t.cfg.minTemp, t.cfg.maxTemp)
	return device.Result{"temperature": round2(t.temperature)}, nil
}

func (t *Thermometer) coolingActivate(_ context.Context, args device.Args) (device.Result, error) {
	power, err := args.Float("power", 2.0)
	if err != nil {
		return nil, err
	}
	if power < 0 {
		return nil, fmt.Errorf("%w: power must not be negative", device.ErrInvalidArgument)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	before := t.temperature
	t.temperature = math.Max(t.cfg.minTemp, t.temperature-power)
	entry := map[string]any{
		"command":            "cooling_activate",
		"power":              power,
		"temperature_before": round2(before),
		"temperature_after":  round2(t.temperature),
		"timestamp":          time.Now().UTC(),
	}
	t.coolings = appendBounded(t.coolings, entry, t.cfg.logLimit)
	return device.Result(copyMap(entry)), nil
}

func (t *Thermometer) getLogs(context.Context, device.Args) (device.Result, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return device.Result{
		"measurements":     copyLog(t.readings),
		"overheat_events":  copyLog(t.overheats),
		"cooling_commands": copyLog(t.coolings),
	}, nil
}

func (t *Thermometer) clearLogs(context.Context, device.Args) (device.Result, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.readings, t.overheats, t.coolings = nil, nil, nil
	t.measurements = 0
	return device.Result{"status": "cleared"}, nil
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func appendBounded(log []map[string]any, entry map[string]any, limit int) []map[string]any {
	log = append(log, entry)
	if len(log) > limit {
		log = log[len(log)-limit:]
	}
	return log
}

func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cpy := make(map[string]any, len(m))
	for k, v := range m {
		cpy[k] = v
	}
	return cpy
}

func copyLog(log []map[string]any) []any {
	out := make([]any, len(log))
	for i, entry := range log {
		out[i] = copyMap(entry)
	}
	return out
}
