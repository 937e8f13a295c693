package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	gcpmodule "github.com/blackwell-systems/gcp-module-project"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		reg := gcpmodule.New()
		fmt.Printf("gcp-module version %s\n", cmd.Root().Version)
		fmt.Printf("Registry version:  %s\n", reg.Version())
		fmt.Println("\nModules:")
		for _, e := range reg.Entries() {
			fmt.Printf("  %-26s %s\n", e.ID, e.Name)
		}
	},
}
