package pipeline

import (
	"time"

	"github.com/google/uuid"
)

// RunStatus is the lifecycle state of one pipeline run.
type RunStatus string

const (
	RunNotStarted RunStatus = "NotStarted"
	RunRunning    RunStatus = "Running"
	RunSucceeded  RunStatus = "Succeeded"
	RunFailed     RunStatus = "Failed"
)

// Outcome classifies what the runner did for one step.
type Outcome string

const (
	OutcomeCreated     Outcome = "created"
	OutcomeReused      Outcome = "reused"
	OutcomeWouldCreate Outcome = "would-create"
	OutcomeWouldReuse  Outcome = "would-reuse"
	OutcomeFailed      Outcome = "failed"
	OutcomeSkipped     Outcome = "skipped"

	// Survey outcomes: what a probe-only pass observed.
	OutcomePresent Outcome = "present"
	OutcomeAbsent  Outcome = "absent"
)

// StepResult is the record the runner emits after executing one step.
// Inputs holds the resolved, redacted properties the step ran with.
type StepResult struct {
	Step     string         `json:"step"`
	Kind     Kind           `json:"kind"`
	Outcome  Outcome        `json:"outcome"`
	Handle   *Handle        `json:"handle,omitempty"`
	Inputs   map[string]any `json:"inputs,omitempty"`
	Error    string         `json:"error,omitempty"`
	Warnings []string       `json:"warnings,omitempty"`
	Duration time.Duration  `json:"duration"`
}

// Run accumulates step results for one orchestrator invocation. It is
// mutated only by the step runner and is never shared across runs.
type Run struct {
	ID         string        `json:"id"`
	DryRun     bool          `json:"dryRun"`
	Status     RunStatus     `json:"status"`
	StartedAt  time.Time     `json:"startedAt"`
	FinishedAt time.Time     `json:"finishedAt"`
	Steps      []*StepResult `json:"steps"`
	FailedStep string        `json:"failedStep,omitempty"`
}

// NewRun returns a run in the NotStarted state with a fresh identifier.
func NewRun(dryRun bool) *Run {
	return &Run{
		ID:     uuid.NewString(),
		DryRun: dryRun,
		Status: RunNotStarted,
	}
}

// Begin transitions NotStarted -> Running.
func (r *Run) Begin() {
	if r.Status == RunNotStarted {
		r.Status = RunRunning
		r.StartedAt = time.Now().UTC()
	}
}

// Finish transitions Running -> Succeeded. A run that already failed keeps
// its Failed status.
func (r *Run) Finish() {
	if r.Status == RunRunning {
		r.Status = RunSucceeded
	}
	r.FinishedAt = time.Now().UTC()
}

// Fail transitions the run to Failed and records the step that caused it.
func (r *Run) Fail(step string) {
	r.Status = RunFailed
	r.FailedStep = step
	r.FinishedAt = time.Now().UTC()
}

// Record appends one step result.
func (r *Run) Record(res *StepResult) {
	r.Steps = append(r.Steps, res)
}

// Result returns the recorded result for a step name, if any.
func (r *Run) Result(step string) *StepResult {
	for _, res := range r.Steps {
		if res.Step == step {
			return res
		}
	}
	return nil
}

// Terminal reports whether the run has reached a final state.
func (r *Run) Terminal() bool {
	return r.Status == RunSucceeded || r.Status == RunFailed
}
