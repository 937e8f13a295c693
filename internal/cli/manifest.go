package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	gcpmodule "github.com/blackwell-systems/gcp-module-project"
	"github.com/blackwell-systems/gcp-module-project/internal/config"
	"github.com/blackwell-systems/gcp-module-project/internal/manifest"
)

var manifestCmd = &cobra.Command{
	Use:   "manifest",
	Short: "Work with manifest files",
}

var manifestValidateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Validate a manifest without contacting GCP",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		path := cfg.ManifestFile
		if len(args) == 1 {
			path = args[0]
		}

		m, err := manifest.Load(path)
		if err != nil {
			color.Red("✗ %v", err)
			return err
		}

		result := manifest.Validate(m, gcpmodule.New())
		printValidation(result)
		if !result.Valid {
			return fmt.Errorf("manifest %s is invalid", path)
		}
		color.Green("✓ %s is valid (%d resources)", path, len(m.Resources))
		return nil
	},
}

func printValidation(result *manifest.ValidationResult) {
	for _, e := range result.Errors {
		color.Red("✗ %s", e)
	}
	for _, w := range result.Warnings {
		color.Yellow("⚠ %s", w)
	}
}

func init() {
	manifestCmd.AddCommand(manifestValidateCmd)
}
