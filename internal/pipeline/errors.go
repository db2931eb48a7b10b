package pipeline

import (
	"errors"
	"fmt"
	"strings"
)

// Domain errors for the pipeline package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, pipeline.ErrValidation) {
//	    // nothing ran
//	}
var (
	// ErrValidation is returned when a pipeline fails validation.
	ErrValidation = errors.New("pipeline: validation failed")

	// ErrExecution is returned when a step fails during a run.
	ErrExecution = errors.New("pipeline: step failed")

	// ErrSink is returned when a step result cannot be persisted.
	ErrSink = errors.New("pipeline: result sink failed")

	// ErrRunNotFound is returned when a run ID does not exist.
	ErrRunNotFound = errors.New("pipeline: run not found")
)

// Fault is one problem found by Validate.
type Fault struct {
	Index   int    `json:"index"` // -1 for pipeline-level faults
	Step    string `json:"step,omitempty"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func (f Fault) String() string {
	if f.Index < 0 {
		return f.Message
	}
	label := fmt.Sprintf("step[%d]", f.Index)
	if f.Step != "" {
		label = fmt.Sprintf("step[%d] %q", f.Index, f.Step)
	}
	if f.Field != "" {
		return fmt.Sprintf("%s: %s: %s", label, f.Field, f.Message)
	}
	return label + ": " + f.Message
}

// ValidationError aggregates every validation fault of a pipeline.
type ValidationError struct {
	Pipeline string
	Faults   []Fault
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Faults))
	for i, f := range e.Faults {
		msgs[i] = f.String()
	}
	return fmt.Sprintf("pipeline %q: %d validation fault(s): %s",
		e.Pipeline, len(e.Faults), strings.Join(msgs, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// ExecutionError reports the step that halted a run.
type ExecutionError struct {
	Index     int
	Step      Step
	Err       error
	Completed []StepResult // results of the steps before Index
	Skipped   int          // steps that never ran, the same as Run.Skipped
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("step %d (%q, device %q, action %q) failed: %v; %d step(s) skipped",
		e.Index, e.Step.Step, e.Step.Device, e.Step.Action, e.Err, e.Skipped)
}

// Unwrap exposes both ErrExecution and the step's cause.
func (e *ExecutionError) Unwrap() []error { return []error{ErrExecution, e.Err} }
