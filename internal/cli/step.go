package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/chicago-crimes/crimectl/internal/config"
	"github.com/chicago-crimes/crimectl/internal/engine"
)

var stepCmd = &cobra.Command{
	Use:   "step <name>",
	Short: "Run a single pipeline step",
	Long: `Runs one step of the chain in isolation. The step's prerequisites
are probed first so their handles resolve, but they are never created;
a prerequisite that does not exist fails the step with a missing
dependency error.

Available steps, in pipeline order:
  ` + strings.Join(engine.StepNames(config.Default()), "\n  "),
}

func init() {
	// Step names are fixed by the chain shape; configuration changes
	// resource names, never the set of steps.
	for _, name := range engine.StepNames(config.Default()) {
		stepCmd.AddCommand(newStepCommand(name))
	}
}

func newStepCommand(name string) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: fmt.Sprintf("Run only the %s step", name),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStep(cmd, name)
		},
	}
}

func runStep(cmd *cobra.Command, name string) error {
	ctx := cmd.Context()

	cfg, err := loadRunConfig()
	if err != nil {
		return err
	}
	orch, err := buildOrchestrator(ctx, cfg)
	if err != nil {
		return err
	}

	run, runErr := orch.RunStep(ctx, name, cfg.DryRun)
	renderRunReport(run)
	if !cfg.DryRun {
		recordRun("step:"+name, run, runErr)
	}
	if runErr != nil {
		return runErr
	}

	renderOutputs(run)
	return nil
}
