package cli

import (
	"github.com/spf13/cobra"

	"github.com/chicago-crimes/crimectl/internal/config"
)

var (
	cfgFile       string
	rootDryRun    bool
	rootLogLevel  string
	rootLogFormat string
)

var rootCmd = &cobra.Command{
	Use:   "crimectl",
	Short: "Provision the Chicago crime prediction stack on AWS",
	Long: `Crimectl provisions the serverless stack behind the Chicago crime
prediction service: upload bucket, CDN, results table, container
registry, predictor image, execution role, upload API, admin email
identity, and the predictor function itself.

Every resource is probed before anything is created:
  • Existing resources are adopted as-is, never modified
  • Runs are idempotent and safe to repeat after a failure
  • A dry run reports exactly what a real run would do`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", config.DefaultFile, "Path to the configuration file")
	rootCmd.PersistentFlags().BoolVar(&rootDryRun, "dry-run", false, "Probe only; never create anything")
	rootCmd.PersistentFlags().StringVar(&rootLogLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&rootLogFormat, "log-format", "text", "Log format: text or json")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(stepCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(graphCmd)
	rootCmd.AddCommand(versionCmd)
}
