// Package cli implements the gcp-module command line.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	gcpmodule "github.com/blackwell-systems/gcp-module-project"
	"github.com/blackwell-systems/gcp-module-project/cloud"
	"github.com/blackwell-systems/gcp-module-project/internal/config"
	"github.com/blackwell-systems/gcp-module-project/internal/host"
	"github.com/blackwell-systems/gcp-module-project/internal/logging"
	"github.com/blackwell-systems/gcp-module-project/internal/manifest"
	"github.com/blackwell-systems/gcp-module-project/internal/tracing"
	"github.com/blackwell-systems/gcp-module-project/registry"
)

var rootCmd = &cobra.Command{
	Use:   "gcp-module",
	Short: "Manage GCP projects, organizations and admin grants from a manifest",
	Long: `gcp-module drives the GCP resource modules of the registry over a
manifest of desired resources.

Each resource names the module that manages it (gcp-module-project,
gcp-module-organization or gcp-module-admin) and the spec handed to it.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute(version string) error {
	rootCmd.Version = version
	return rootCmd.Execute()
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("log-level", "", "Log level (debug|info|warn|error)")
	flags.String("log-format", "", "Log format (text|json)")
	flags.Bool("trace", false, "Print OpenTelemetry spans of module operations to stderr")
	flags.StringP("manifest", "f", "", "Path to the manifest file")
	flags.String("credentials-file", "", "Service account key file (application default credentials when empty)")
	flags.String("quota-project", "", "Project billed for API quota")
	flags.String("required-version", "", "Fail unless the registry is at least this version")

	for _, key := range []string{"log-level", "log-format", "trace", "manifest", "credentials-file", "quota-project", "required-version"} {
		if err := config.BindFlag(key, flags.Lookup(key)); err != nil {
			panic(err)
		}
	}

	rootCmd.AddCommand(versionCmd, modulesCmd, manifestCmd, configCmd)
	rootCmd.AddCommand(planCmd, applyCmd, destroyCmd, statusCmd)
}

// session holds what a manifest command needs to run.
type session struct {
	cfg      *config.Config
	ctx      context.Context
	manifest *manifest.Manifest
	runner   *host.Runner
	close    func()
}

// openSession loads configuration and the manifest, validates it against the
// registry and dials the cloud services.
func openSession(cmd *cobra.Command) (*session, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	ctx := logging.WithLogger(cmd.Context(), logger)

	reg := gcpmodule.New()
	if cfg.RequiredVersion != "" {
		if err := reg.Require(cfg.RequiredVersion); err != nil {
			color.Red("✗ %v", err)
			return nil, err
		}
	}

	m, err := manifest.Load(cfg.ManifestFile)
	if err != nil {
		color.Red("✗ %v", err)
		return nil, err
	}
	if result := manifest.Validate(m, reg); !result.Valid {
		printValidation(result)
		return nil, fmt.Errorf("manifest %s is invalid", cfg.ManifestFile)
	}

	shutdown, err := tracing.Setup(cfg.Trace, os.Stderr)
	if err != nil {
		return nil, err
	}

	svc, err := cloud.NewServices(ctx, cloud.Options{
		CredentialsFile: cfg.CredentialsFile,
		QuotaProject:    cfg.QuotaProject,
		Trace:           cfg.Trace,
	})
	if err != nil {
		_ = shutdown(ctx)
		color.Red("✗ %v", err)
		return nil, err
	}

	runner := host.New(reg, svc, host.Options{
		RateLimit: cfg.RateLimit,
		Timeout:   cfg.Timeout,
		Retry: host.RetryPolicy{
			Initial:    cfg.Retry.Initial,
			Max:        cfg.Retry.Max,
			Multiplier: cfg.Retry.Multiplier,
			Attempts:   cfg.Retry.Attempts,
		},
	})

	return &session{
		cfg:      cfg,
		ctx:      ctx,
		manifest: m,
		runner:   runner,
		close: func() {
			if err := svc.Close(); err != nil {
				logger.Warn("Failed to close cloud clients", "error", err)
			}
			if err := shutdown(context.Background()); err != nil {
				logger.Warn("Failed to flush traces", "error", err)
			}
		},
	}, nil
}

// printOutcomes renders per-resource results.
func printOutcomes(outcomes []host.Outcome) {
	for _, o := range outcomes {
		name := fmt.Sprintf("%-20s %-26s", o.Resource, o.Module)
		switch {
		case o.Err != nil:
			color.New().Printf("%s %s %v\n", name, color.RedString("✗ FAILED"), o.Err)
			continue
		case o.Skipped:
			color.New().Printf("%s %s\n", name, color.YellowString("⚠ SKIPPED"))
			continue
		}
		color.New().Printf("%s %s  %s\n", name, actionText(o.Action), o.Identity)
		for _, c := range o.Changes {
			fmt.Printf("    %s\n", c)
		}
	}
}

func actionText(a registry.Action) string {
	switch a {
	case registry.ActionCreate:
		return color.GreenString("+ create")
	case registry.ActionUpdate:
		return color.YellowString("~ update")
	case registry.ActionDelete:
		return color.RedString("- delete")
	default:
		return color.CyanString("  no-op ")
	}
}
