package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/runtimeboot/runtimeboot/pkg/security"
)

// Config holds all application configuration
type Config struct {
	// Runtime descriptor
	DescriptorPath    string `mapstructure:"descriptor-path"`
	DescriptorKeyring string `mapstructure:"descriptor-keyring"`

	// Install locations. The first install dir is the one rebuilt when no
	// candidate is usable.
	InstallDir       string   `mapstructure:"install-dir"`
	ExtraInstallDirs []string `mapstructure:"extra-install-dirs"`
	AppPath          string   `mapstructure:"app-path"`
	UseSystemRuntime bool     `mapstructure:"use-system-runtime"`

	// State (fsm database and install history)
	StateDir    string `mapstructure:"state-dir"`
	HistoryKeep int    `mapstructure:"history-keep"`

	// Presentation
	UI       string `mapstructure:"ui"`
	LogLevel string `mapstructure:"log-level"`

	// Transfer
	PreflightTimeout time.Duration `mapstructure:"preflight-timeout"`
	HTTPTimeout      time.Duration `mapstructure:"http-timeout"`
	S3Region         string        `mapstructure:"s3-region"`
	S3Endpoint       string        `mapstructure:"s3-endpoint"`

	// Security limits
	MaxFileSize         int64   `mapstructure:"max-file-size"`
	MaxTotalSize        int64   `mapstructure:"max-total-size"`
	MaxCompressionRatio float64 `mapstructure:"max-compression-ratio"`
}

// UI modes
const (
	UINone = "none"
	UICLI  = "cli"
)

// Load reads configuration from environment, config file, and defaults
func Load() (*Config, error) {
	viper.SetDefault("descriptor-path", "runtime.yaml")
	viper.SetDefault("descriptor-keyring", "")
	viper.SetDefault("install-dir", "runtime")
	viper.SetDefault("extra-install-dirs", []string{})
	viper.SetDefault("app-path", "app.dll")
	viper.SetDefault("use-system-runtime", false)
	viper.SetDefault("state-dir", ".runtimeboot")
	viper.SetDefault("history-keep", 50)
	viper.SetDefault("ui", UICLI)
	viper.SetDefault("log-level", "info")
	viper.SetDefault("preflight-timeout", "10s")
	viper.SetDefault("http-timeout", "30m")
	viper.SetDefault("s3-region", "us-east-1")
	viper.SetDefault("s3-endpoint", "")
	viper.SetDefault("max-file-size", security.DefaultLimits.MaxFileSize)
	viper.SetDefault("max-total-size", security.DefaultLimits.MaxTotalSize)
	viper.SetDefault("max-compression-ratio", security.DefaultLimits.MaxCompressionRatio)

	// Environment variables (RUNTIMEBOOT_INSTALL_DIR, etc.)
	viper.SetEnvPrefix("RUNTIMEBOOT")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	// Config file (optional)
	viper.SetConfigName("runtimeboot")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.runtimeboot")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Validate checks configuration for errors
func (c *Config) Validate() error {
	if c.DescriptorPath == "" && !c.UseSystemRuntime {
		return fmt.Errorf("descriptor-path cannot be empty")
	}
	if c.InstallDir == "" && !c.UseSystemRuntime {
		return fmt.Errorf("install-dir cannot be empty")
	}
	if c.AppPath == "" {
		return fmt.Errorf("app-path cannot be empty")
	}
	if c.StateDir == "" {
		return fmt.Errorf("state-dir cannot be empty")
	}
	if c.UI != UINone && c.UI != UICLI {
		return fmt.Errorf("ui must be %q or %q, got %q", UINone, UICLI, c.UI)
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	if c.PreflightTimeout <= 0 {
		return fmt.Errorf("preflight-timeout must be positive")
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("http-timeout must be positive")
	}
	if c.MaxFileSize <= 0 {
		return fmt.Errorf("max-file-size must be positive")
	}
	if c.MaxTotalSize <= 0 {
		return fmt.Errorf("max-total-size must be positive")
	}
	if c.MaxCompressionRatio <= 0 {
		return fmt.Errorf("max-compression-ratio must be positive")
	}
	if c.HistoryKeep < 0 {
		return fmt.Errorf("history-keep must be non-negative")
	}
	return nil
}

// InstallDirs returns the candidate install directories in search order.
func (c *Config) InstallDirs() []string {
	dirs := []string{c.InstallDir}
	for _, d := range c.ExtraInstallDirs {
		if d != "" && d != c.InstallDir {
			dirs = append(dirs, d)
		}
	}
	return dirs
}

// Limits returns the extraction limits.
func (c *Config) Limits() security.Limits {
	return security.Limits{
		MaxFileSize:         c.MaxFileSize,
		MaxTotalSize:        c.MaxTotalSize,
		MaxCompressionRatio: c.MaxCompressionRatio,
	}
}

// ParseLogLevel maps a level name onto slog.
func ParseLogLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid log-level %q", s)
	}
	return level, nil
}
