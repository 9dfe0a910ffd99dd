package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chicago-crimes/crimectl/internal/pipeline"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show which resources currently exist",
	Long: `Probes every resource in the chain and reports what is present in
the account right now. Nothing is created or modified.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output in JSON format")
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadRunConfig()
	if err != nil {
		return err
	}
	orch, err := buildOrchestrator(ctx, cfg)
	if err != nil {
		return err
	}

	run, runErr := orch.Survey(ctx)

	if statusJSON {
		data, err := json.MarshalIndent(run, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal survey: %w", err)
		}
		fmt.Println(string(data))
		return runErr
	}

	present := 0
	for _, res := range run.Steps {
		c := colorize(statusColor(res.Outcome))
		r := ""
		if c != "" {
			r = colorize(colorReset)
		}

		line := fmt.Sprintf("# %s (%s): %s", res.Step, res.Kind, res.Outcome)
		if res.Handle != nil {
			line += fmt.Sprintf("  id=%s", res.Handle.ID)
			if res.Handle.Status != pipeline.StatusActive {
				line += fmt.Sprintf(" (%s)", res.Handle.Status)
			}
		}
		fmt.Printf("%s%s%s\n", c, line, r)

		if res.Outcome == pipeline.OutcomePresent {
			present++
		}
		if res.Error != "" {
			fmt.Printf("%s    error: %s%s\n", colorize("\033[31m"), res.Error, colorize(colorReset))
		}
	}

	fmt.Printf("\n%d of %d resources present.\n", present, len(run.Steps))
	renderOutputs(run)
	return runErr
}

func statusColor(outcome pipeline.Outcome) string {
	switch outcome {
	case pipeline.OutcomePresent:
		return "\033[32m"
	case pipeline.OutcomeAbsent:
		return "\033[33m"
	case pipeline.OutcomeFailed:
		return "\033[31m"
	default:
		return ""
	}
}
