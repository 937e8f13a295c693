package cli

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show what apply would change",
	Long: `Read every resource of the manifest and report the changes apply
would make. Nothing is modified.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer s.close()

		color.Cyan("Planning %d resources from %s...", len(s.manifest.Resources), s.cfg.ManifestFile)
		outcomes, err := s.runner.Plan(s.ctx, s.manifest)
		printOutcomes(outcomes)
		if err != nil {
			color.Red("✗ Plan failed")
			return err
		}
		color.Green("✓ Plan complete")
		return nil
	},
}

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Converge resources to the manifest",
	Long: `Synchronize every resource of the manifest in declaration order.

Applying an unchanged manifest again is a no-op. The run stops at the first
resource that fails; transient failures are retried first.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer s.close()

		color.Cyan("Applying %d resources from %s...", len(s.manifest.Resources), s.cfg.ManifestFile)
		outcomes, err := s.runner.Apply(s.ctx, s.manifest)
		printOutcomes(outcomes)
		if err != nil {
			color.Red("✗ Apply failed")
			return err
		}
		color.Green("✓ Resources in sync")
		return nil
	},
}

var destroyCmd = &cobra.Command{
	Use:   "destroy",
	Short: "Tear down the resources of the manifest",
	Long: `Delete every resource of the manifest in reverse declaration order.

Resources that cannot be deleted through the API, such as organizations,
are skipped.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer s.close()

		color.Cyan("Destroying %d resources from %s...", len(s.manifest.Resources), s.cfg.ManifestFile)
		outcomes, err := s.runner.Destroy(s.ctx, s.manifest)
		printOutcomes(outcomes)
		if err != nil {
			color.Red("✗ Destroy failed")
			return err
		}
		color.Green("✓ Resources torn down")
		return nil
	},
}
