package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func loadIn(t *testing.T, dir string) *Config {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)

	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("failed to get working dir: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("failed to chdir: %v", err)
	}
	t.Cleanup(func() { os.Chdir(wd) })

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	return cfg
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	cfg := loadIn(t, t.TempDir())

	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults do not validate: %v", err)
	}
	if cfg.InstallDir != "runtime" || cfg.UI != UICLI {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.PreflightTimeout != 10*time.Second || cfg.HTTPTimeout != 30*time.Minute {
		t.Errorf("timeouts = %v, %v", cfg.PreflightTimeout, cfg.HTTPTimeout)
	}
}

func TestLoadEnvAndFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	dir := t.TempDir()
	file := "install-dir: /opt/app/runtime\n" +
		"extra-install-dirs:\n  - /usr/share/app/runtime\n  - /opt/app/runtime\n" +
		"preflight-timeout: 3s\n"
	if err := os.WriteFile(filepath.Join(dir, "runtimeboot.yaml"), []byte(file), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	t.Setenv("RUNTIMEBOOT_APP_PATH", "/opt/app/app.dll")
	t.Setenv("RUNTIMEBOOT_UI", "none")

	cfg := loadIn(t, dir)

	if cfg.AppPath != "/opt/app/app.dll" || cfg.UI != UINone {
		t.Errorf("environment not applied: %+v", cfg)
	}
	if cfg.PreflightTimeout != 3*time.Second {
		t.Errorf("PreflightTimeout = %v", cfg.PreflightTimeout)
	}
	dirs := cfg.InstallDirs()
	if len(dirs) != 2 || dirs[0] != "/opt/app/runtime" || dirs[1] != "/usr/share/app/runtime" {
		t.Errorf("InstallDirs = %v", dirs)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			DescriptorPath:      "runtime.yaml",
			InstallDir:          "runtime",
			AppPath:             "app.dll",
			StateDir:            ".runtimeboot",
			UI:                  UICLI,
			LogLevel:            "info",
			PreflightTimeout:    time.Second,
			HTTPTimeout:         time.Minute,
			MaxFileSize:         1,
			MaxTotalSize:        1,
			MaxCompressionRatio: 1,
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"valid", func(c *Config) {}, true},
		{"empty descriptor", func(c *Config) { c.DescriptorPath = "" }, false},
		{"empty descriptor with system runtime", func(c *Config) { c.DescriptorPath = ""; c.UseSystemRuntime = true }, true},
		{"empty app", func(c *Config) { c.AppPath = "" }, false},
		{"bad ui", func(c *Config) { c.UI = "gtk" }, false},
		{"bad log level", func(c *Config) { c.LogLevel = "chatty" }, false},
		{"zero timeout", func(c *Config) { c.PreflightTimeout = 0 }, false},
		{"zero ratio", func(c *Config) { c.MaxCompressionRatio = 0 }, false},
		{"negative history", func(c *Config) { c.HistoryKeep = -1 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.ok && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tt.ok && err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	if l, err := ParseLogLevel("debug"); err != nil || l != slog.LevelDebug {
		t.Errorf("ParseLogLevel(debug) = %v, %v", l, err)
	}
	if _, err := ParseLogLevel("loud"); err == nil {
		t.Error("expected error for unknown level")
	}
}
