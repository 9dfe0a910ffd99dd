package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chicago-crimes/crimectl/internal/pipeline"
)

var applyAutoApprove bool

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Provision the full stack",
	Long: `Runs every pipeline step in order. Each resource is probed first;
resources that already exist are adopted, missing ones are created.
Nothing is ever updated or deleted.`,
	RunE: runApply,
}

func init() {
	applyCmd.Flags().BoolVar(&applyAutoApprove, "auto-approve", false, "Skip interactive approval of the plan before applying")
}

func runApply(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadRunConfig()
	if err != nil {
		return err
	}
	orch, err := buildOrchestrator(ctx, cfg)
	if err != nil {
		return err
	}

	if cfg.DryRun {
		run, runErr := orch.Run(ctx, true)
		renderRunReport(run)
		renderRunSummary(run)
		if runErr != nil {
			return runErr
		}
		fmt.Println("\nDry run: no resources were touched.")
		return nil
	}

	// Preview with a dry pass first so the operator approves exactly what
	// the real pass will do.
	fmt.Print("Calculating plan... ")
	preview, err := orch.Run(ctx, true)
	if err != nil {
		fmt.Println("FAILED")
		renderRunReport(preview)
		return fmt.Errorf("plan generation failed: %w", err)
	}
	fmt.Println("OK")

	creates := summarize(preview)[pipeline.OutcomeWouldCreate]
	if creates == 0 {
		fmt.Println("\nNo changes. Every resource in the chain already exists.")
		renderOutputs(preview)
		return nil
	}

	fmt.Println("\nCrimectl will perform the following actions:")
	renderRunReport(preview)
	renderRunSummary(preview)

	if !applyAutoApprove {
		fmt.Print("\nDo you want to perform these actions? (y/n): ")
		var response string
		fmt.Scanln(&response)
		if response != "y" && response != "yes" {
			fmt.Println("Apply cancelled.")
			return nil
		}
	}

	fmt.Printf("\nCreating %d resources...\n", creates)

	run, runErr := orch.Run(ctx, false)
	renderRunReport(run)
	recordRun("apply", run, runErr)
	if runErr != nil {
		return fmt.Errorf("apply failed: %w", runErr)
	}

	counts := summarize(run)
	fmt.Printf("\nApply complete! Resources: %d created, %d reused.\n",
		counts[pipeline.OutcomeCreated], counts[pipeline.OutcomeReused])
	renderOutputs(run)
	return nil
}
