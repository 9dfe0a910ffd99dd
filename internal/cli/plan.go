package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var planOutFile string

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show what a run would do",
	Long: `Probes every resource in the chain and reports what a real run
would do, without creating anything.

The plan shows:
  • Resources that would be created
  • Resources that already exist and would be reused

Probes are real reads against the account, so the classification
matches what 'crimectl apply' would actually find.`,
	RunE: runPlan,
}

func init() {
	planCmd.Flags().StringVarP(&planOutFile, "out", "o", "", "Write the full run record to a JSON file")
}

func runPlan(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadRunConfig()
	if err != nil {
		return err
	}
	orch, err := buildOrchestrator(ctx, cfg)
	if err != nil {
		return err
	}

	fmt.Print("Calculating plan... ")
	run, runErr := orch.Run(ctx, true)
	if runErr != nil {
		fmt.Println("FAILED")
	} else {
		fmt.Println("OK")
	}

	renderRunReport(run)
	renderRunSummary(run)

	if planOutFile != "" {
		if err := writeRunJSON(planOutFile, run); err != nil {
			return err
		}
		fmt.Printf("\nPlan written to %s\n", planOutFile)
	}
	return runErr
}
