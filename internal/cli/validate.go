package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chicago-crimes/crimectl/internal/config"
	"github.com/chicago-crimes/crimectl/internal/engine"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration and step chain",
	Long: `Checks the layered configuration and the step dependency graph
without contacting any provider.`,
	RunE: runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	fmt.Println("Validating configuration...")

	fmt.Printf("Checking %s... ", cfgFile)
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Println("FAILED")
		return fmt.Errorf("validation failed: %w", err)
	}
	fmt.Println("OK")

	fmt.Print("Checking step graph... ")
	steps := engine.DefaultSteps(cfg)
	if _, err := engine.BuildGraph(steps); err != nil {
		fmt.Println("FAILED")
		return fmt.Errorf("validation failed: %w", err)
	}
	fmt.Println("OK")

	fmt.Printf("\nConfiguration is valid! %d steps in the chain.\n", len(steps))
	return nil
}
