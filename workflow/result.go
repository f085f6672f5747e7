package workflow

import (
	"encoding/json"
	"time"

	"github.com/weftflow/weft/types"
)

// Outcome is the terminal state of one step.
type Outcome string

const (
	// OutcomeCompleted means the step produced its output.
	OutcomeCompleted Outcome = "completed"
	// OutcomeFailed means the step failed terminally after retries.
	OutcomeFailed Outcome = "failed"
	// OutcomeSkipped means a dependency failed so the step never ran.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeAborted means the run was cut off before the step could
	// deliver a result. An in-flight adapter call finishes on its own but
	// its result is discarded.
	OutcomeAborted Outcome = "aborted"
)

// RunOutcome is the terminal state of a whole run.
type RunOutcome string

const (
	RunCompleted RunOutcome = "completed"
	RunFailed    RunOutcome = "failed"
	RunTimedOut  RunOutcome = "timed_out"
	RunCanceled  RunOutcome = "canceled"
)

// StepResult is the single record a step writes. Once written for a step id
// it is never overwritten within the run.
type StepResult struct {
	StepID string `json:"stepId"`
	// Output is the raw textual output.
	Output string `json:"output,omitempty"`
	// Structured is the parsed JSON value for steps that requested one.
	Structured json.RawMessage  `json:"structured,omitempty"`
	Usage      types.TokenUsage `json:"usage,omitempty"`
	StartedAt  time.Time        `json:"startedAt"`
	FinishedAt time.Time        `json:"finishedAt"`
	Outcome    Outcome          `json:"outcome"`
	// Err is set for failed steps.
	Err error `json:"-"`
	// Reason is the human-readable failure or skip reason.
	Reason string `json:"reason,omitempty"`
}

// Duration is the wall-clock step execution time.
func (r *StepResult) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Record is the outcome of one run. Callers always receive one, partial
// when the run failed or timed out.
type Record struct {
	RunID    string `json:"runId"`
	Workflow string `json:"workflow"`
	// Inputs is a snapshot of the run's top-level input variables.
	Inputs map[string]string `json:"inputs,omitempty"`
	// Results maps step ids to their single StepResult.
	Results map[string]*StepResult `json:"results"`
	// CompletionOrder lists step ids in the order their results were
	// written, which for concurrent steps differs from declaration order.
	CompletionOrder []string         `json:"completionOrder"`
	StartedAt       time.Time        `json:"startedAt"`
	Duration        time.Duration    `json:"duration"`
	StepsExecuted   int              `json:"stepsExecuted"`
	Usage           types.TokenUsage `json:"usage,omitempty"`
	Outcome         RunOutcome       `json:"outcome"`
	// FailedStep names the step whose failure ended the run.
	FailedStep string `json:"failedStep,omitempty"`
}

// Result returns the StepResult for a step id, nil when the step never
// produced one.
func (r *Record) Result(stepID string) *StepResult {
	return r.Results[stepID]
}

// Output returns a completed step's raw output, empty otherwise.
func (r *Record) Output(stepID string) string {
	if sr, ok := r.Results[stepID]; ok && sr.Outcome == OutcomeCompleted {
		return sr.Output
	}
	return ""
}
