package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/chicago-crimes/crimectl/internal/config"
	"github.com/chicago-crimes/crimectl/internal/engine"
	"github.com/chicago-crimes/crimectl/internal/logging"
	"github.com/chicago-crimes/crimectl/internal/pipeline"
	"github.com/chicago-crimes/crimectl/internal/provider"
	"github.com/chicago-crimes/crimectl/providers/aws"
	"github.com/chicago-crimes/crimectl/providers/docker"
)

var noColor bool

const colorReset = "\033[0m"

// colorize returns the ANSI code, or nothing when colors are disabled.
func colorize(code string) string {
	if noColor {
		return ""
	}
	return code
}

// loadRunConfig loads the layered configuration and initializes logging.
// Flag values override both the file and the environment.
func loadRunConfig() (*config.Config, error) {
	fmt.Print("Loading configuration... ")
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Println("FAILED")
		return nil, err
	}
	fmt.Println("OK")

	if rootDryRun {
		cfg.DryRun = true
	}
	if rootLogLevel != "" {
		cfg.LogLevel = rootLogLevel
	}
	logging.Init(cfg.LogLevel, rootLogFormat)
	return cfg, nil
}

// buildOrchestrator configures both providers and assembles the step
// chain. Provider configuration is deliberately eager: a missing docker
// daemon or bad credentials should fail here, not five steps in.
func buildOrchestrator(ctx context.Context, cfg *config.Config) (*engine.Orchestrator, error) {
	awsProvider := aws.New()
	if err := awsProvider.Configure(ctx, map[string]string{
		"region":  cfg.Region,
		"profile": cfg.Profile,
	}); err != nil {
		return nil, fmt.Errorf("failed to configure aws provider: %w", err)
	}

	dockerProvider := docker.New(awsProvider)
	if err := dockerProvider.Configure(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to configure docker provider: %w", err)
	}

	registry := provider.NewRegistry()
	registry.Register(awsProvider.Name(), awsProvider)
	registry.Register(dockerProvider.Name(), dockerProvider)

	return engine.NewOrchestrator(engine.DefaultSteps(cfg), registry)
}

// outcomeSymbol maps a step outcome to its one-character plan marker.
func outcomeSymbol(outcome pipeline.Outcome) string {
	switch outcome {
	case pipeline.OutcomeCreated, pipeline.OutcomeWouldCreate:
		return "+"
	case pipeline.OutcomeReused, pipeline.OutcomeWouldReuse, pipeline.OutcomePresent:
		return "="
	case pipeline.OutcomeFailed:
		return "!"
	case pipeline.OutcomeSkipped, pipeline.OutcomeAbsent:
		return "-"
	default:
		return "~"
	}
}

// outcomeColor maps a step outcome to its ANSI color code.
func outcomeColor(outcome pipeline.Outcome) string {
	switch outcome {
	case pipeline.OutcomeCreated, pipeline.OutcomeWouldCreate:
		return "\033[32m"
	case pipeline.OutcomeFailed:
		return "\033[31m"
	case pipeline.OutcomeAbsent:
		return "\033[33m"
	default:
		return ""
	}
}

// renderRunReport prints the per-step report for a finished or previewed
// run. Created steps show their resolved inputs; reused steps show the
// adopted resource's identifier.
func renderRunReport(run *pipeline.Run) {
	for _, res := range run.Steps {
		c := colorize(outcomeColor(res.Outcome))
		r := ""
		if c != "" {
			r = colorize(colorReset)
		}

		fmt.Printf("\n%s  %s %s (%s): %s%s\n", c, outcomeSymbol(res.Outcome), res.Step, res.Kind, res.Outcome, r)

		switch res.Outcome {
		case pipeline.OutcomeCreated, pipeline.OutcomeWouldCreate:
			for _, k := range sortedKeys(res.Inputs) {
				fmt.Printf("%s      + %s = %s%s\n", c, k, formatValue(res.Inputs[k]), r)
			}
		case pipeline.OutcomeReused, pipeline.OutcomeWouldReuse:
			if res.Handle != nil {
				fmt.Printf("%s      id = %s%s\n", c, res.Handle.ID, r)
			}
		case pipeline.OutcomeFailed:
			fmt.Printf("%s      error = %s%s\n", c, res.Error, r)
		}

		for _, w := range res.Warnings {
			fmt.Printf("%s      warning: %s%s\n", colorize("\033[33m"), w, colorize(colorReset))
		}
	}
}

// renderRunSummary prints the outcome counts for a run.
func renderRunSummary(run *pipeline.Run) {
	counts := summarize(run)
	fmt.Println("\nRun Summary:")
	fmt.Printf("  Create:  %d\n", counts[pipeline.OutcomeCreated]+counts[pipeline.OutcomeWouldCreate])
	fmt.Printf("  Reuse:   %d\n", counts[pipeline.OutcomeReused]+counts[pipeline.OutcomeWouldReuse])
	if n := counts[pipeline.OutcomeFailed]; n > 0 {
		fmt.Printf("  Failed:  %d\n", n)
	}
	if n := counts[pipeline.OutcomeSkipped]; n > 0 {
		fmt.Printf("  Skipped: %d\n", n)
	}
}

// summarize counts step results by outcome.
func summarize(run *pipeline.Run) map[pipeline.Outcome]int {
	counts := make(map[pipeline.Outcome]int)
	for _, res := range run.Steps {
		counts[res.Outcome]++
	}
	return counts
}

// runOutputs collects the endpoints and identifiers a provisioned stack
// exposes, in display order. Attributes still unknown (dry runs) are
// left out.
func runOutputs(run *pipeline.Run) [][2]string {
	var outputs [][2]string
	add := func(step, attr, name string) {
		res := run.Result(step)
		if res == nil || res.Handle == nil || pipeline.ContainsUnknown(res.Handle.ID) {
			return
		}
		if v, ok := res.Handle.Attr(attr); ok && !pipeline.ContainsUnknown(v) {
			outputs = append(outputs, [2]string{name, v})
		}
	}

	add("predictor-function", "invoke_url", "api_invoke_url")
	add("site-cdn", "domain", "cdn_domain")
	add("uploads-bucket", "name", "upload_bucket")
	add("results-table", "name", "results_table")
	add("predictor-image", "digest", "image_digest")
	return outputs
}

// renderOutputs prints the stack's outputs block, if any resolved.
func renderOutputs(run *pipeline.Run) {
	outputs := runOutputs(run)
	if len(outputs) == 0 {
		return
	}
	fmt.Println("\nOutputs:")
	for _, kv := range outputs {
		fmt.Printf("  %s = %s\n", kv[0], kv[1])
	}
}

// writeRunJSON saves the full run record to a file.
func writeRunJSON(path string, run *pipeline.Run) error {
	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// formatValue returns a human-readable representation of a value.
func formatValue(v any) string {
	if v == nil {
		return "null"
	}
	switch val := v.(type) {
	case string:
		return fmt.Sprintf("%q", val)
	case map[string]any:
		return fmt.Sprintf("%v", val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
