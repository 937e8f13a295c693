package cli

import (
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/blackwell-systems/gcp-module-project/internal/host"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current state of all resources",
	Long:  `Read every resource of the manifest and display whether it exists.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer s.close()

		outcomes, err := s.runner.Status(s.ctx, s.manifest)

		// Print status
		color.Cyan("Resource             Status        Identity")
		color.Cyan("────────────────────────────────────────────────────────")

		for _, o := range outcomes {
			printResourceStatus(o)
		}

		return err
	},
}

func printResourceStatus(o host.Outcome) {
	var statusText string
	switch {
	case o.Err != nil:
		statusText = color.RedString("✗ ERROR  ")
	case o.State != nil && o.State.Exists:
		statusText = color.GreenString("✓ PRESENT")
	default:
		statusText = color.YellowString("⚠ ABSENT ")
	}

	color.New().Printf("%-20s %s     %s\n", o.Resource, statusText, o.Identity)
	if o.Err != nil {
		color.New().Printf("    %v\n", o.Err)
		return
	}
	if o.State == nil {
		return
	}
	keys := make([]string, 0, len(o.State.Attributes))
	for k := range o.State.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		color.New().Printf("    %s: %s\n", k, strings.TrimSpace(o.State.Attributes[k]))
	}
}
