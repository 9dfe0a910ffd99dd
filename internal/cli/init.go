package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/chicago-crimes/crimectl/internal/config"
)

// starterConfig mirrors the compiled defaults so a fresh project starts
// from something editable rather than a blank file.
const starterConfig = `# Crimectl configuration.
# Every key is optional; the defaults provision the stock stack.
# CRIMECTL_* environment variables override anything set here.

region: af-south-1
upload_bucket: chicago-crimes-uploads
results_table: chicago-crimes-results
table_hash_key: file_key
api_name: chicago-crimes-api
stage_name: prod
repository: chicago-crimes-predictor
role_name: chicago-crimes-lambda-role
function_name: chicago-crimes-predictor
admin_email: midegageorge2@gmail.com
image_tag: latest
build_context: .
dockerfile: Dockerfile
platform: linux/amd64
log_level: info
`

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new crimectl project",
	Long:  `Creates a starter configuration file and the local run directory.`,
	RunE:  runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	if err := os.MkdirAll(crimectlDir(), 0755); err != nil {
		return fmt.Errorf("failed to create %s directory: %w", crimectlDir(), err)
	}

	if _, err := os.Stat(config.DefaultFile); os.IsNotExist(err) {
		if err := os.WriteFile(config.DefaultFile, []byte(starterConfig), 0644); err != nil {
			return fmt.Errorf("failed to create %s: %w", config.DefaultFile, err)
		}
		fmt.Printf("Created %s\n", config.DefaultFile)
	} else {
		fmt.Printf("%s already exists, leaving it untouched\n", config.DefaultFile)
	}

	fmt.Println("\nCrimectl initialized!")
	fmt.Println("Next steps:")
	fmt.Printf("  1. Edit %s to match your account\n", config.DefaultFile)
	fmt.Println("  2. Run 'crimectl plan' to see what would be created")
	fmt.Println("  3. Run 'crimectl apply' to provision the stack")

	return nil
}
