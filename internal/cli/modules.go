package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	gcpmodule "github.com/blackwell-systems/gcp-module-project"
	"github.com/blackwell-systems/gcp-module-project/registry"
)

var modulesCmd = &cobra.Command{
	Use:   "modules",
	Short: "Inspect the module registry",
}

var modulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered module identifiers",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := registryAt(cmd)
		if err != nil {
			return err
		}

		color.Cyan("Registry %s", reg.Version())
		color.Cyan("Identifier                 Module")
		color.Cyan("────────────────────────────────────────")
		names := reg.Modules()
		for _, id := range reg.Identifiers() {
			fmt.Printf("%-26s %s\n", id, names[id])
		}
		return nil
	},
}

var modulesDescribeCmd = &cobra.Command{
	Use:   "describe <identifier>",
	Short: "Describe one module",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := registryAt(cmd)
		if err != nil {
			return err
		}

		entry, err := reg.Lookup(args[0])
		if err != nil {
			color.Red("✗ %v", err)
			return err
		}

		fmt.Printf("Identifier:   %s\n", entry.ID)
		fmt.Printf("Module:       %s\n", entry.Name)
		fmt.Printf("Description:  %s\n", entry.Description)
		return nil
	},
}

var modulesReleasesCmd = &cobra.Command{
	Use:   "releases",
	Short: "Show which modules each registry version shipped",
	Run: func(cmd *cobra.Command, args []string) {
		for _, r := range gcpmodule.Releases() {
			fmt.Printf("%-8s %v\n", r.Version, r.Modules)
		}
	},
}

// registryAt returns the registry at the --at release, or the current one.
func registryAt(cmd *cobra.Command) (*registry.Registry, error) {
	at, _ := cmd.Flags().GetString("at")
	if at == "" {
		return gcpmodule.New(), nil
	}
	reg, err := gcpmodule.NewRelease(at)
	if err != nil {
		color.Red("✗ %v", err)
		return nil, err
	}
	return reg, nil
}

func init() {
	modulesCmd.PersistentFlags().String("at", "", "Inspect the registry as of a past release")
	modulesCmd.AddCommand(modulesListCmd, modulesDescribeCmd, modulesReleasesCmd)
}
