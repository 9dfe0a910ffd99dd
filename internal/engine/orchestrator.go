package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/chicago-crimes/crimectl/internal/logging"
	"github.com/chicago-crimes/crimectl/internal/pipeline"
	"github.com/chicago-crimes/crimectl/internal/provider"
)

// Orchestrator drives a step chain. Steps run strictly in their declared
// order, one at a time; the first failure stops the run and every later
// step is recorded as skipped.
type Orchestrator struct {
	graph  *Graph
	runner *Runner
}

// NewOrchestrator validates the chain and prepares a runner over it.
// The propagator is fresh: handles never leak between runs.
func NewOrchestrator(steps []*pipeline.Step, registry *provider.Registry) (*Orchestrator, error) {
	graph, err := BuildGraph(steps)
	if err != nil {
		return nil, err
	}
	return &Orchestrator{
		graph:  graph,
		runner: NewRunner(registry, pipeline.NewPropagator()),
	}, nil
}

// Runner exposes the step runner so callers can attach a progress
// callback or tune retry knobs.
func (o *Orchestrator) Runner() *Runner { return o.runner }

// Graph exposes the validated dependency graph.
func (o *Orchestrator) Graph() *Graph { return o.graph }

// Run executes every step in declared order. On failure the run is marked
// failed, the remaining steps are recorded as skipped, and the error names
// the failing step.
func (o *Orchestrator) Run(ctx context.Context, dryRun bool) (*pipeline.Run, error) {
	o.runner.reset()
	run := pipeline.NewRun(dryRun)
	run.Begin()
	logging.Info("run started", "run", run.ID, "dry_run", dryRun, "steps", len(o.graph.Order()))

	order := o.graph.Order()
	for i, name := range order {
		if err := ctx.Err(); err != nil {
			run.Fail(name)
			o.recordSkipped(run, order[i:])
			return run, fmt.Errorf("run cancelled before step %q: %w", name, err)
		}

		step, _ := o.graph.Step(name)
		if err := o.runner.Execute(ctx, step, run); err != nil {
			run.Fail(name)
			o.recordSkipped(run, order[i+1:])
			logging.Error("run failed", "run", run.ID, "failed_step", name)
			return run, fmt.Errorf("step %q failed: %w", name, err)
		}
	}

	run.Finish()
	logging.Info("run finished", "run", run.ID, "status", run.Status)
	return run, nil
}

// RunStep executes a single step. Its transitive prerequisites are probed
// first so their handles resolve; they are never created. A prerequisite
// that does not exist surfaces as a missing dependency when the step
// resolves its references.
func (o *Orchestrator) RunStep(ctx context.Context, name string, dryRun bool) (*pipeline.Run, error) {
	step, ok := o.graph.Step(name)
	if !ok {
		return nil, fmt.Errorf("unknown step %q", name)
	}
	deps, err := o.graph.TransitiveDeps(name)
	if err != nil {
		return nil, err
	}

	o.runner.reset()
	run := pipeline.NewRun(dryRun)
	run.Begin()
	logging.Info("single step run started", "run", run.ID, "step", name, "prerequisites", len(deps))

	for _, depName := range deps {
		dep, _ := o.graph.Step(depName)
		if err := o.runner.Probe(ctx, dep); err != nil {
			run.Fail(depName)
			return run, fmt.Errorf("prerequisite %q: %w", depName, err)
		}
	}

	if err := o.runner.Execute(ctx, step, run); err != nil {
		run.Fail(name)
		return run, fmt.Errorf("step %q failed: %w", name, err)
	}
	run.Finish()
	return run, nil
}

// Survey probes every step in order without mutating anything and reports
// what exists. It backs the status command.
func (o *Orchestrator) Survey(ctx context.Context) (*pipeline.Run, error) {
	o.runner.reset()
	run := pipeline.NewRun(true)
	run.Begin()

	for _, name := range o.graph.Order() {
		step, _ := o.graph.Step(name)
		start := time.Now()
		res := &pipeline.StepResult{Step: name, Kind: step.Descriptor.Kind}

		resolved := o.runner.propagator.ResolveForPlan(step.Descriptor.Properties)
		desc := step.Descriptor.WithProperties(resolved)
		res.Inputs = pipeline.RedactProperties(resolved)

		prov, err := o.runner.registry.Get(desc.Provider)
		if err != nil {
			run.Fail(name)
			return run, err
		}

		h, err := o.runner.find(ctx, prov, desc)
		res.Duration = time.Since(start)
		switch {
		case err == nil:
			o.runner.propagator.Store(name, h)
			res.Outcome = pipeline.OutcomePresent
			res.Handle = h
		case pipeline.IsAbsent(err):
			res.Outcome = pipeline.OutcomeAbsent
		default:
			res.Outcome = pipeline.OutcomeFailed
			res.Error = err.Error()
			run.Record(res)
			run.Fail(name)
			return run, fmt.Errorf("probe failed for %s: %w", name, err)
		}
		run.Record(res)
	}

	run.Finish()
	return run, nil
}

func (o *Orchestrator) recordSkipped(run *pipeline.Run, names []string) {
	for _, name := range names {
		if run.Result(name) != nil {
			continue
		}
		step, _ := o.graph.Step(name)
		run.Record(&pipeline.StepResult{
			Step:    name,
			Kind:    step.Descriptor.Kind,
			Outcome: pipeline.OutcomeSkipped,
		})
	}
}
