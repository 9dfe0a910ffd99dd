package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chicago-crimes/crimectl/internal/logging"
	"github.com/chicago-crimes/crimectl/internal/pipeline"
	"github.com/chicago-crimes/crimectl/internal/provider"
)

// StepEvent reports progress while a step executes.
type StepEvent struct {
	Step     string
	Kind     pipeline.Kind
	Status   string // "started", "completed", "failed"
	Outcome  pipeline.Outcome
	Duration time.Duration
	Error    error
}

// EventCallback is called for each step event if set.
type EventCallback func(event StepEvent)

// Runner executes individual steps. Every step follows the same shape:
// resolve references, probe for the resource, then reuse what exists or
// create what is missing. The runner never updates and never deletes.
type Runner struct {
	registry   *provider.Registry
	propagator *pipeline.Propagator

	Retry        *RetryPolicy
	PollInterval time.Duration
	Callback     EventCallback
}

func NewRunner(registry *provider.Registry, propagator *pipeline.Propagator) *Runner {
	return &Runner{
		registry:   registry,
		propagator: propagator,
		Retry:      DefaultRetryPolicy(),
	}
}

// reset clears run-scoped state; every run starts with an empty propagator.
func (r *Runner) reset() {
	r.propagator = pipeline.NewPropagator()
}

func (r *Runner) emit(event StepEvent) {
	if r.Callback != nil {
		r.Callback(event)
	}
}

// Execute runs one step to completion and records its result on run.
// The returned error is the step's failure, already recorded; callers
// stop the chain on it.
func (r *Runner) Execute(ctx context.Context, step *pipeline.Step, run *pipeline.Run) error {
	start := time.Now()
	res := &pipeline.StepResult{Step: step.Name, Kind: step.Descriptor.Kind}
	r.emit(StepEvent{Step: step.Name, Kind: step.Descriptor.Kind, Status: "started"})

	err := r.execute(ctx, step, run.DryRun, res)
	res.Duration = time.Since(start)
	if err != nil {
		res.Outcome = pipeline.OutcomeFailed
		res.Error = err.Error()
	}
	if res.Handle != nil {
		res.Warnings = append(res.Warnings, res.Handle.Warnings...)
	}
	run.Record(res)

	attrs := []any{
		"run", run.ID,
		"step", step.Name,
		"kind", step.Descriptor.Kind,
		"outcome", res.Outcome,
		"duration", res.Duration.Round(time.Millisecond).String(),
		"inputs", res.Inputs,
	}
	if res.Handle != nil && res.Handle.ID != "" {
		attrs = append(attrs, "id", res.Handle.ID)
	}
	if err != nil {
		attrs = append(attrs, "error", err.Error())
		logging.Error("step finished", attrs...)
		r.emit(StepEvent{Step: step.Name, Kind: step.Descriptor.Kind, Status: "failed", Outcome: res.Outcome, Duration: res.Duration, Error: err})
		return err
	}
	logging.Info("step finished", attrs...)
	r.emit(StepEvent{Step: step.Name, Kind: step.Descriptor.Kind, Status: "completed", Outcome: res.Outcome, Duration: res.Duration})
	return nil
}

func (r *Runner) execute(ctx context.Context, step *pipeline.Step, dryRun bool, res *pipeline.StepResult) error {
	if err := r.propagator.Require(step.Name, step.DependsOn...); err != nil {
		return err
	}

	var resolved map[string]any
	if dryRun {
		resolved = r.propagator.ResolveForPlan(step.Descriptor.Properties)
	} else {
		var err error
		resolved, err = r.propagator.Resolve(step.Name, step.Descriptor.Properties)
		if err != nil {
			return err
		}
	}
	desc := step.Descriptor.WithProperties(resolved)
	res.Inputs = pipeline.RedactProperties(resolved)

	prov, err := r.registry.Get(desc.Provider)
	if err != nil {
		return err
	}

	h, err := r.find(ctx, prov, desc)
	switch {
	case err == nil:
		if err := prov.Validate(ctx, desc, h); err != nil {
			return err
		}
		r.propagator.Store(step.Name, h)
		res.Handle = h
		if dryRun {
			res.Outcome = pipeline.OutcomeWouldReuse
		} else {
			res.Outcome = pipeline.OutcomeReused
		}
		logging.Debug("resource exists, reusing", "step", step.Name, "id", h.ID)
		return nil

	case pipeline.IsAbsent(err):
		if dryRun {
			h := &pipeline.Handle{
				Kind:   desc.Kind,
				Name:   desc.Name,
				ID:     pipeline.UnknownValue,
				Status: pipeline.StatusPending,
			}
			r.propagator.Store(step.Name, h)
			res.Handle = h
			res.Outcome = pipeline.OutcomeWouldCreate
			return nil
		}
		h, err := r.create(ctx, prov, desc, step.ReadyTimeout)
		if err != nil {
			return err
		}
		r.propagator.Store(step.Name, h)
		res.Handle = h
		res.Outcome = pipeline.OutcomeCreated
		return nil

	default:
		return fmt.Errorf("probe failed for %s: %w", step.Name, err)
	}
}

// find probes for the resource, retrying transient lookup failures.
func (r *Runner) find(ctx context.Context, prov provider.Interface, desc *pipeline.Descriptor) (*pipeline.Handle, error) {
	var h *pipeline.Handle
	err := RetryWithBackoff(ctx, r.Retry, func() error {
		var findErr error
		h, findErr = prov.Find(ctx, desc)
		return findErr
	}, pipeline.IsTransient)
	return h, err
}

// create provisions the resource and waits for it to settle. A readiness
// timeout is not fatal: the handle is annotated and the run continues.
func (r *Runner) create(ctx context.Context, prov provider.Interface, desc *pipeline.Descriptor, readyTimeout time.Duration) (*pipeline.Handle, error) {
	var h *pipeline.Handle
	err := RetryWithBackoff(ctx, r.Retry, func() error {
		var createErr error
		h, createErr = prov.Create(ctx, desc)
		return createErr
	}, pipeline.IsTransient)
	if err != nil {
		return nil, fmt.Errorf("create failed for %s %q: %w", desc.Kind, desc.Name, err)
	}

	if h.Status == pipeline.StatusPending {
		settled, err := AwaitReady(ctx, prov, desc, h, readyTimeout, r.PollInterval)
		var notReady *pipeline.AsyncNotReadyError
		switch {
		case err == nil:
			h = settled
		case errors.As(err, &notReady):
			h = settled
			h.AddWarning(err.Error())
			logging.Warn("resource not ready in time, continuing", "kind", desc.Kind, "name", desc.Name, "timeout", notReady.Timeout.String())
		default:
			return nil, err
		}
	}
	return h, nil
}

// Probe looks the step's resource up without creating anything and seeds
// the propagator with the handle when it exists. Used to satisfy the
// prerequisites of a single-step run.
func (r *Runner) Probe(ctx context.Context, step *pipeline.Step) error {
	resolved := r.propagator.ResolveForPlan(step.Descriptor.Properties)
	desc := step.Descriptor.WithProperties(resolved)

	prov, err := r.registry.Get(desc.Provider)
	if err != nil {
		return err
	}

	h, err := r.find(ctx, prov, desc)
	switch {
	case err == nil:
		r.propagator.Store(step.Name, h)
		logging.Debug("prerequisite present", "step", step.Name, "id", h.ID)
		return nil
	case pipeline.IsAbsent(err):
		logging.Debug("prerequisite absent", "step", step.Name)
		return nil
	default:
		return fmt.Errorf("probe failed for %s: %w", step.Name, err)
	}
}
