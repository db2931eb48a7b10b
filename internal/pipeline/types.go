package pipeline

import (
	"time"

	"github.com/nerrad567/device-orchestra/internal/device"
)

// Built-in actions handled by the runner itself.
const (
	ActionWait = "wait"
	ActionSave = "save"
)

// Step is one command in a pipeline.
type Step struct {
	Step   string      `json:"step" yaml:"step"`
	Device string      `json:"device,omitempty" yaml:"device,omitempty"`
	Action string      `json:"action" yaml:"action"`
	Args   device.Args `json:"args,omitempty" yaml:"args,omitempty"`
	SaveTo string      `json:"save_to,omitempty" yaml:"save_to,omitempty"`
}

// IsBuiltin reports whether the step is handled by the runner rather than a device.
func (s Step) IsBuiltin() bool {
	return s.Device == "" && (s.Action == ActionWait || s.Action == ActionSave)
}

// Pipeline is an ordered list of steps.
type Pipeline struct {
	Name  string `json:"name" yaml:"name"`
	Steps []Step `json:"steps" yaml:"steps"`
}

// State is the runner's lifecycle state.
type State string

// Runner states.
const (
	StateIdle       State = "idle"
	StateValidating State = "validating"
	StateExecuting  State = "executing"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// RunStatus is the outcome of one Execute call.
type RunStatus string

// Run statuses.
const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunRefused   RunStatus = "refused" // validation failed, nothing ran
	RunCancelled RunStatus = "cancelled"
)

// StepStatus is the outcome of one step.
type StepStatus string

// Step statuses.
const (
	StepSucceeded StepStatus = "succeeded"
	StepFailed    StepStatus = "failed"
)

// StepResult records one executed step.
type StepResult struct {
	Index      int           `json:"index"`
	Step       string        `json:"step"`
	Device     string        `json:"device,omitempty"`
	Action     string        `json:"action"`
	Status     StepStatus    `json:"status"`
	Result     device.Result `json:"result,omitempty"`
	Error      string        `json:"error,omitempty"`
	SavedTo    string        `json:"saved_to,omitempty"`
	DurationMS int64         `json:"duration_ms"`
}

// Run summarises one Execute call.
type Run struct {
	ID          string       `json:"id"`
	Pipeline    string       `json:"pipeline"`
	DryRun      bool         `json:"dry_run"`
	Status      RunStatus    `json:"status"`
	StartedAt   time.Time    `json:"started_at"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
	DurationMS  int64        `json:"duration_ms"`
	TotalSteps  int          `json:"total_steps"`
	Succeeded   int          `json:"succeeded_steps"`
	Failed      int          `json:"failed_steps"`
	Skipped     int          `json:"skipped_steps"`
	FailedStep  *int         `json:"failed_step,omitempty"`
	Error       string       `json:"error,omitempty"`
	Faults      []Fault      `json:"faults,omitempty"`
	Steps       []StepResult `json:"steps"`
}

// Executed returns the number of steps that ran (successfully or not).
func (r *Run) Executed() int { return r.Succeeded + r.Failed }

// Options tune a single Execute call.
type Options struct {
	// DryRun walks the steps without dispatching commands.
	DryRun bool

	// StepTimeout bounds each step. Zero means no per-step limit.
	StepTimeout time.Duration
}
