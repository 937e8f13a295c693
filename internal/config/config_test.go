package config

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

func validConfig() Config {
	return Config{
		LogLevel:     "info",
		LogFormat:    "text",
		ManifestFile: "resources.yaml",
		RateLimit:    5,
		Timeout:      5 * time.Minute,
		Retry: RetryConfig{
			Initial:    time.Second,
			Max:        30 * time.Second,
			Multiplier: 2,
			Attempts:   5,
		},
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid default config",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name: "valid json debug config",
			mutate: func(c *Config) {
				c.LogLevel = "debug"
				c.LogFormat = "json"
				c.Trace = true
			},
			wantErr: false,
		},
		{
			name: "valid required version",
			mutate: func(c *Config) {
				c.RequiredVersion = "0.0.17"
			},
			wantErr: false,
		},
		{
			name: "invalid log level",
			mutate: func(c *Config) {
				c.LogLevel = "verbose"
			},
			wantErr: true,
		},
		{
			name: "invalid log format",
			mutate: func(c *Config) {
				c.LogFormat = "xml"
			},
			wantErr: true,
		},
		{
			name: "invalid required version",
			mutate: func(c *Config) {
				c.RequiredVersion = "latest"
			},
			wantErr: true,
		},
		{
			name: "invalid rate limit - zero",
			mutate: func(c *Config) {
				c.RateLimit = 0
			},
			wantErr: true,
		},
		{
			name: "invalid timeout",
			mutate: func(c *Config) {
				c.Timeout = 0
			},
			wantErr: true,
		},
		{
			name: "invalid retry attempts",
			mutate: func(c *Config) {
				c.Retry.Attempts = 0
			},
			wantErr: true,
		},
		{
			name: "invalid retry backoff - max below initial",
			mutate: func(c *Config) {
				c.Retry.Max = 100 * time.Millisecond
			},
			wantErr: true,
		},
		{
			name: "invalid retry multiplier",
			mutate: func(c *Config) {
				c.Retry.Multiplier = 0.5
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Config.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadDefaults(t *testing.T) {
	if err := Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
	if cfg.ManifestFile != "./resources.yaml" {
		t.Errorf("ManifestFile = %q, want ./resources.yaml", cfg.ManifestFile)
	}
	if cfg.Timeout != 5*time.Minute {
		t.Errorf("Timeout = %s, want 5m", cfg.Timeout)
	}
	if cfg.Retry.Attempts != 5 {
		t.Errorf("Retry.Attempts = %d, want 5", cfg.Retry.Attempts)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("GCP_MODULE_LOG_LEVEL", "debug")
	t.Setenv("GCP_MODULE_RETRY_ATTEMPTS", "2")
	t.Setenv("GCP_MODULE_RATE_LIMIT", "0.5")

	if err := Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
	if cfg.Retry.Attempts != 2 {
		t.Errorf("Retry.Attempts = %d, want 2", cfg.Retry.Attempts)
	}
	if cfg.RateLimit != 0.5 {
		t.Errorf("RateLimit = %g, want 0.5", cfg.RateLimit)
	}
}

func TestLoadRejectsInvalidEnvironment(t *testing.T) {
	t.Setenv("GCP_MODULE_LOG_FORMAT", "xml")

	if err := Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	if _, err := Load(); err == nil {
		t.Error("Load() should fail for an invalid log format")
	}
}

func TestBindFlag(t *testing.T) {
	t.Cleanup(viper.Reset)

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("log-level", "", "")

	if err := BindFlag("log-level", flags.Lookup("log-level")); err != nil {
		t.Fatalf("BindFlag() error = %v", err)
	}
	if err := BindFlag("log-format", flags.Lookup("log-format")); err == nil {
		t.Error("BindFlag() should fail for an undefined flag")
	}

	if err := flags.Set("log-level", "error"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LogLevel != "error" {
		t.Errorf("LogLevel = %q, want error (flag beats default)", cfg.LogLevel)
	}
}
