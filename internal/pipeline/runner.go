package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/device-orchestra/internal/device"
	"github.com/nerrad567/device-orchestra/internal/events"
)

// Logger defines the logging interface used by the Runner.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Recorder persists run summaries.
type Recorder interface {
	CreateRun(ctx context.Context, run *Run) error
	UpdateRun(ctx context.Context, run *Run) error
}

// Observer receives run statistics. internal/metrics implements it.
type Observer interface {
	StepFinished(action string, status StepStatus, d time.Duration)
	RunFinished(status RunStatus, dryRun bool)
}

// Runner validates and executes pipelines against managed devices.
//
// Thread Safety: Execute is safe for concurrent use; runs are serialised.
type Runner struct {
	devices DeviceLookup
	bus     events.Publisher
	logger  Logger

	sink     ResultSink
	recorder Recorder
	observer Observer

	runMu sync.Mutex // held for a whole Execute

	stateMu sync.RWMutex
	state   State
}

// NewRunner creates a runner.
//
// Parameters:
//   - devices: Device lookup, normally the *device.Manager
//   - bus: Publisher for pipeline.* events (may be nil)
//   - logger: Logger instance (may be nil)
func NewRunner(devices DeviceLookup, bus events.Publisher, logger Logger) *Runner {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Runner{
		devices: devices,
		bus:     bus,
		logger:  logger,
		state:   StateIdle,
	}
}

// SetSink sets where save_to results are written.
func (r *Runner) SetSink(sink ResultSink) { r.sink = sink }

// SetRecorder enables run history.
func (r *Runner) SetRecorder(rec Recorder) { r.recorder = rec }

// SetObserver sets the statistics observer.
func (r *Runner) SetObserver(o Observer) { r.observer = o }

// State returns the runner's current state.
func (r *Runner) State() State {
	r.stateMu.RLock()
	defer r.stateMu.RUnlock()
	return r.state
}

func (r *Runner) setState(s State) {
	r.stateMu.Lock()
	r.state = s
	r.stateMu.Unlock()
}

// Validate checks p against the runner's devices.
func (r *Runner) Validate(p Pipeline) []Fault {
	return Validate(p, r.devices)
}

// Execute validates p and, when valid, runs its steps in order.
//
// The returned Run is never nil. On a validation failure nothing runs and
// the error is a *ValidationError. On a step failure the remaining steps
// are skipped and the error is an *ExecutionError; results of earlier
// steps are kept in Run.Steps.
func (r *Runner) Execute(ctx context.Context, p Pipeline, opts Options) (*Run, error) { //nolint:gocognit // run loop: validate, dispatch, record
	r.runMu.Lock()
	defer r.runMu.Unlock()

	run := &Run{
		ID:         uuid.NewString(),
		Pipeline:   p.Name,
		DryRun:     opts.DryRun,
		Status:     RunRunning,
		StartedAt:  time.Now().UTC(),
		TotalSteps: len(p.Steps),
		Steps:      []StepResult{},
	}

	r.setState(StateValidating)
	if faults := r.Validate(p); len(faults) > 0 {
		run.Status = RunRefused
		run.Faults = faults
		verr := &ValidationError{Pipeline: p.Name, Faults: faults}
		run.Error = verr.Error()
		run.Skipped = len(p.Steps)
		r.finish(ctx, run, StateFailed)
		r.record(ctx, run, true)

		r.logger.Warn("pipeline refused", "pipeline", p.Name, "run_id", run.ID, "faults", len(faults))
		return run, verr
	}

	r.setState(StateExecuting)
	r.record(ctx, run, true)
	r.publish(ctx, events.TypePipelineStarted, run, map[string]any{"steps": len(p.Steps)})
	r.logger.Info("pipeline started",
		"pipeline", p.Name,
		"run_id", run.ID,
		"steps", len(p.Steps),
		"dry_run", opts.DryRun,
	)

	for i, step := range p.Steps {
		if err := ctx.Err(); err != nil {
			run.Status = RunCancelled
			run.Skipped = len(p.Steps) - i
			run.Error = err.Error()
			r.finish(ctx, run, StateFailed)
			r.record(ctx, run, false)
			r.publish(ctx, events.TypePipelineFailed, run, map[string]any{"error": run.Error})
			return run, &ExecutionError{Index: i, Step: step, Err: err, Completed: cloneResults(run.Steps), Skipped: run.Skipped}
		}

		res, err := r.runStep(ctx, i, step, opts)
		run.Steps = append(run.Steps, res)
		r.observeStep(step.Action, res)
		r.publish(ctx, events.TypePipelineStepCompleted, run, map[string]any{
			"index":       i,
			"step":        step.Step,
			"device":      step.Device,
			"action":      step.Action,
			"status":      string(res.Status),
			"duration_ms": res.DurationMS,
		})

		if err != nil {
			idx := i
			run.Failed = 1
			run.FailedStep = &idx
			run.Skipped = len(p.Steps) - i - 1
			run.Status = RunFailed
			run.Error = err.Error()
			r.finish(ctx, run, StateFailed)
			r.record(ctx, run, false)
			r.publish(ctx, events.TypePipelineFailed, run, map[string]any{
				"failed_step": i,
				"error":       run.Error,
			})

			r.logger.Error("pipeline step failed",
				"pipeline", p.Name,
				"run_id", run.ID,
				"index", i,
				"step", step.Step,
				"device", step.Device,
				"action", step.Action,
				"skipped", run.Skipped,
				"error", err,
			)
			return run, &ExecutionError{
				Index:     i,
				Step:      step,
				Err:       err,
				Completed: cloneResults(run.Steps[:i]),
				Skipped:   run.Skipped,
			}
		}
		run.Succeeded++
	}

	run.Status = RunCompleted
	r.finish(ctx, run, StateCompleted)
	r.record(ctx, run, false)
	r.publish(ctx, events.TypePipelineCompleted, run, nil)

	r.logger.Info("pipeline complete",
		"pipeline", p.Name,
		"run_id", run.ID,
		"steps", run.Succeeded,
		"dry_run", opts.DryRun,
		"duration_ms", run.DurationMS,
	)
	return run, nil
}

// runStep executes one step and always returns its StepResult.
func (r *Runner) runStep(ctx context.Context, index int, step Step, opts Options) (StepResult, error) {
	res := StepResult{
		Index:  index,
		Step:   step.Step,
		Device: step.Device,
		Action: step.Action,
	}
	started := time.Now()

	if opts.StepTimeout > 0 && !opts.DryRun {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.StepTimeout)
		defer cancel()
	}

	result, savedTo, err := r.dispatch(ctx, step, opts.DryRun)
	res.DurationMS = time.Since(started).Milliseconds()
	if err != nil {
		res.Status = StepFailed
		res.Error = err.Error()
		return res, err
	}

	res.Status = StepSucceeded
	res.Result = result
	res.SavedTo = savedTo
	r.logger.Debug("pipeline step complete",
		"index", index,
		"step", step.Step,
		"device", step.Device,
		"action", step.Action,
		"dry_run", opts.DryRun,
		"duration_ms", res.DurationMS,
	)
	return res, nil
}

func (r *Runner) dispatch(ctx context.Context, step Step, dryRun bool) (device.Result, string, error) {
	if dryRun {
		return device.Result{
			"dry_run":   true,
			"simulated": true,
			"step":      step.Step,
			"device":    step.Device,
			"action":    step.Action,
			"args":      map[string]any(deepCopyArgs(step.Args)),
			"timestamp": time.Now().UTC(),
		}, "", nil
	}

	if step.IsBuiltin() {
		return r.builtin(ctx, step)
	}

	result, err := r.send(ctx, step.Device, device.Command{Name: step.Action, Args: deepCopyArgs(step.Args)})
	if err != nil {
		return nil, "", err
	}

	if step.SaveTo == "" {
		return result, "", nil
	}
	savedTo, err := r.save(ctx, step, result)
	if err != nil {
		return result, "", err
	}
	return result, savedTo, nil
}

// send prefers the lookup's own dispatch (the Manager observes commands
// there) and falls back to calling the device directly.
func (r *Runner) send(ctx context.Context, id string, cmd device.Command) (device.Result, error) {
	if s, ok := r.devices.(CommandSender); ok {
		return s.SendCommand(ctx, id, cmd)
	}
	dev, err := r.devices.Get(id)
	if err != nil {
		return nil, err
	}
	return dev.SendCommand(ctx, cmd)
}

func (r *Runner) builtin(ctx context.Context, step Step) (device.Result, string, error) {
	switch step.Action {
	case ActionWait:
		d, err := step.Args.Seconds("duration", 0)
		if err != nil {
			return nil, "", err
		}
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, "", ctx.Err()
		case <-timer.C:
		}
		return device.Result{"waited_seconds": d.Seconds()}, "", nil

	case ActionSave:
		data, ok := step.Args["data"]
		if !ok {
			data = map[string]any(step.Args)
		}
		savedTo, err := r.save(ctx, step, device.Result{"data": data})
		if err != nil {
			return nil, "", err
		}
		return device.Result{"saved_to": savedTo}, savedTo, nil
	}
	return nil, "", fmt.Errorf("%w: built-in action %q", device.ErrUnknownCommand, step.Action)
}

func (r *Runner) save(ctx context.Context, step Step, result device.Result) (string, error) {
	if r.sink == nil {
		return "", fmt.Errorf("%w: no sink configured for save_to %q", ErrSink, step.SaveTo)
	}
	record := map[string]any{
		"step":      step.Step,
		"device":    step.Device,
		"action":    step.Action,
		"result":    result,
		"timestamp": time.Now().UTC(),
	}
	path, err := r.sink.Save(ctx, step.SaveTo, record)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSink, err)
	}
	return path, nil
}

func (r *Runner) finish(_ context.Context, run *Run, st State) {
	completed := time.Now().UTC()
	run.CompletedAt = &completed
	run.DurationMS = completed.Sub(run.StartedAt).Milliseconds()
	r.setState(st)
	if r.observer != nil {
		r.observer.RunFinished(run.Status, run.DryRun)
	}
}

func (r *Runner) observeStep(action string, res StepResult) {
	if r.observer != nil {
		r.observer.StepFinished(action, res.Status, time.Duration(res.DurationMS)*time.Millisecond)
	}
}

// record persists the run. Failures are logged; history is best effort.
func (r *Runner) record(ctx context.Context, run *Run, create bool) {
	if r.recorder == nil {
		return
	}
	// Persist even when the run itself was cancelled.
	ctx = context.WithoutCancel(ctx)

	var err error
	if create {
		err = r.recorder.CreateRun(ctx, run)
	} else {
		err = r.recorder.UpdateRun(ctx, run)
		if errors.Is(err, ErrRunNotFound) {
			err = r.recorder.CreateRun(ctx, run)
		}
	}
	if err != nil {
		r.logger.Error("failed to record pipeline run", "run_id", run.ID, "error", err)
	}
}

func (r *Runner) publish(ctx context.Context, eventType string, run *Run, extra map[string]any) {
	if r.bus == nil {
		return
	}
	payload := map[string]any{
		"run_id":   run.ID,
		"pipeline": run.Pipeline,
		"dry_run":  run.DryRun,
		"status":   string(run.Status),
	}
	for k, v := range extra {
		payload[k] = v
	}
	r.bus.Publish(ctx, events.Event{Type: eventType, Source: "pipeline", Payload: payload})
}

func deepCopyArgs(a device.Args) device.Args {
	if a == nil {
		return device.Args{}
	}
	return device.Args(device.Params(a).Copy())
}

func cloneResults(in []StepResult) []StepResult {
	out := make([]StepResult, len(in))
	copy(out, in)
	return out
}
