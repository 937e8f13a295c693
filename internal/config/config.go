// Package config provides configuration management for the gcp-module CLI.
//
// It implements the disciplined Viper pattern where Viper stays contained
// in this package and the rest of the codebase receives explicit Config structs.
// Configuration sources are resolved in this order: flags > env > config file > defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/blackwell-systems/gcp-module-project/registry"
)

// Config is the explicit configuration struct
// This is what the rest of the codebase sees
type Config struct {
	LogLevel        string
	LogFormat       string
	Trace           bool
	ManifestFile    string
	CredentialsFile string
	QuotaProject    string
	RequiredVersion string
	// RateLimit caps module operations per second.
	RateLimit float64
	// Timeout bounds a single module operation, retries included.
	Timeout time.Duration
	Retry   RetryConfig
}

// RetryConfig controls retries of transient failures
type RetryConfig struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	Attempts   int
}

// envKeyReplacer maps keys like "log-level" to GCP_MODULE_LOG_LEVEL.
var envKeyReplacer = strings.NewReplacer("-", "_")

// Init initializes viper with defaults and config file paths
func Init() error {
	// Set config file name and type
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	// Add config file search paths
	viper.AddConfigPath("$HOME/.gcp-module")
	viper.AddConfigPath(".")

	// Set defaults
	viper.SetDefault("log-level", "info")
	viper.SetDefault("log-format", "text")
	viper.SetDefault("trace", false)
	viper.SetDefault("manifest", "./resources.yaml")
	viper.SetDefault("credentials-file", "")
	viper.SetDefault("quota-project", "")
	viper.SetDefault("required-version", "")
	viper.SetDefault("rate-limit", 5.0)
	viper.SetDefault("timeout", 5*time.Minute)
	viper.SetDefault("retry-initial", time.Second)
	viper.SetDefault("retry-max", 30*time.Second)
	viper.SetDefault("retry-multiplier", 2.0)
	viper.SetDefault("retry-attempts", 5)

	// Bind environment variables with prefix
	viper.SetEnvPrefix("GCP_MODULE")
	viper.SetEnvKeyReplacer(envKeyReplacer)
	viper.AutomaticEnv()

	// Read config file (ignore if not found)
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return nil
}

// BindFlag binds a command flag to a configuration key.
func BindFlag(key string, flag *pflag.Flag) error {
	if flag == nil {
		return fmt.Errorf("failed to bind %s: flag not defined", key)
	}
	if err := viper.BindPFlag(key, flag); err != nil {
		return fmt.Errorf("failed to bind %s: %w", key, err)
	}
	return nil
}

// Load reads from all sources and returns explicit Config
func Load() (*Config, error) {
	cfg := &Config{
		LogLevel:        viper.GetString("log-level"),
		LogFormat:       viper.GetString("log-format"),
		Trace:           viper.GetBool("trace"),
		ManifestFile:    viper.GetString("manifest"),
		CredentialsFile: viper.GetString("credentials-file"),
		QuotaProject:    viper.GetString("quota-project"),
		RequiredVersion: viper.GetString("required-version"),
		RateLimit:       viper.GetFloat64("rate-limit"),
		Timeout:         viper.GetDuration("timeout"),
		Retry: RetryConfig{
			Initial:    viper.GetDuration("retry-initial"),
			Max:        viper.GetDuration("retry-max"),
			Multiplier: viper.GetFloat64("retry-multiplier"),
			Attempts:   viper.GetInt("retry-attempts"),
		},
	}

	// Validate
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate ensures config is sane
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log-level: %s (must be debug, info, warn, or error)", c.LogLevel)
	}

	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("invalid log-format: %s (must be text or json)", c.LogFormat)
	}

	if c.RequiredVersion != "" && !registry.ValidVersion(c.RequiredVersion) {
		return fmt.Errorf("invalid required-version: %s (must be a semantic version)", c.RequiredVersion)
	}

	if c.RateLimit <= 0 {
		return fmt.Errorf("invalid rate-limit: %g (must be positive)", c.RateLimit)
	}

	if c.Timeout <= 0 {
		return fmt.Errorf("invalid timeout: %s", c.Timeout)
	}

	if c.Retry.Attempts < 1 {
		return fmt.Errorf("invalid retry-attempts: %d (must be at least 1)", c.Retry.Attempts)
	}

	if c.Retry.Initial <= 0 || c.Retry.Max < c.Retry.Initial {
		return fmt.Errorf("invalid retry backoff: initial %s, max %s", c.Retry.Initial, c.Retry.Max)
	}

	if c.Retry.Multiplier < 1 {
		return fmt.Errorf("invalid retry-multiplier: %g (must be at least 1)", c.Retry.Multiplier)
	}

	return nil
}

// Save writes current config to file
func Save(cfg *Config) error {
	viper.Set("log-level", cfg.LogLevel)
	viper.Set("log-format", cfg.LogFormat)
	viper.Set("trace", cfg.Trace)
	viper.Set("manifest", cfg.ManifestFile)
	viper.Set("credentials-file", cfg.CredentialsFile)
	viper.Set("quota-project", cfg.QuotaProject)
	viper.Set("required-version", cfg.RequiredVersion)
	viper.Set("rate-limit", cfg.RateLimit)
	viper.Set("timeout", cfg.Timeout)
	viper.Set("retry-initial", cfg.Retry.Initial)
	viper.Set("retry-max", cfg.Retry.Max)
	viper.Set("retry-multiplier", cfg.Retry.Multiplier)
	viper.Set("retry-attempts", cfg.Retry.Attempts)

	if viper.ConfigFileUsed() != "" {
		return viper.WriteConfig()
	}

	// No config file yet, create one in the user config directory
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to locate home directory: %w", err)
	}
	dir := filepath.Join(home, ".gcp-module")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return viper.WriteConfigAs(filepath.Join(dir, "config.yaml"))
}

// Set changes one configuration key, validates the result and persists it.
func Set(key, value string) error {
	if !viper.IsSet(key) {
		return fmt.Errorf("unknown config key: %s", key)
	}

	prev := viper.Get(key)
	viper.Set(key, value)
	cfg, err := Load()
	if err != nil {
		viper.Set(key, prev)
		return err
	}
	return Save(cfg)
}

// Display shows current config (for gcp-module config get)
func Display() (string, error) {
	cfg, err := Load()
	if err != nil {
		return "", err
	}

	configFile := viper.ConfigFileUsed()
	if configFile == "" {
		configFile = "(not found)"
	}

	credentials := cfg.CredentialsFile
	if credentials == "" {
		credentials = "(application default)"
	}

	return fmt.Sprintf(`Configuration:
  log-level:          %s
  log-format:         %s
  trace:              %t
  manifest:           %s
  credentials-file:   %s
  quota-project:      %s
  required-version:   %s

Execution:
  rate-limit:         %g/s
  timeout:            %s
  retry:              %d attempts, %s..%s x%g

Sources:
  Config file:        %s
  Environment:        GCP_MODULE_*
  Flags:              (per command)
`,
		cfg.LogLevel,
		cfg.LogFormat,
		cfg.Trace,
		cfg.ManifestFile,
		credentials,
		cfg.QuotaProject,
		cfg.RequiredVersion,
		cfg.RateLimit,
		cfg.Timeout,
		cfg.Retry.Attempts,
		cfg.Retry.Initial,
		cfg.Retry.Max,
		cfg.Retry.Multiplier,
		configFile,
	), nil
}
