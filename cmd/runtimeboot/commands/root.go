package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/runtimeboot/runtimeboot/internal/config"
)

// LogLevel is shared with the handler installed by main so --log-level can
// take effect after flags are parsed.
var LogLevel = new(slog.LevelVar)

// exitCode is the process exit code once the root command returns; the
// bootstrap sets it to the application's exit code.
var exitCode int

var rootCmd = &cobra.Command{
	Use:   "runtimeboot [flags] [-- app-args...]",
	Short: "Provision the managed runtime and launch the application",
	Long: `Checks the installed runtime against the runtime descriptor, downloads,
verifies and unpacks a new one when needed, then launches the application.`,
	Args:              cobra.ArbitraryArgs,
	SilenceUsage:      true,
	PersistentPreRunE: applyLogLevel,
	RunE:              runBootstrap,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	os.Exit(exitCode)
}

func init() {
	rootCmd.PersistentFlags().String("descriptor-path", "runtime.yaml", "Runtime descriptor file")
	rootCmd.PersistentFlags().String("descriptor-keyring", "", "Armored OpenPGP keyring; when set the descriptor must carry a valid detached signature")
	rootCmd.PersistentFlags().String("install-dir", "runtime", "Runtime install directory")
	rootCmd.PersistentFlags().StringSlice("extra-install-dirs", nil, "Additional directories searched for a compatible runtime")
	rootCmd.PersistentFlags().String("app-path", "app.dll", "Application binary to launch")
	rootCmd.PersistentFlags().Bool("use-system-runtime", false, "Skip provisioning and launch with the system runtime")
	rootCmd.PersistentFlags().String("state-dir", ".runtimeboot", "Directory for the state machine database and install history")
	rootCmd.PersistentFlags().String("ui", config.UICLI, "Progress presentation: none or cli")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level: debug, info, warn or error")
	rootCmd.PersistentFlags().Duration("preflight-timeout", 0, "Connectivity check timeout (default 10s)")
	rootCmd.PersistentFlags().Duration("http-timeout", 0, "Download timeout (default 30m)")
	rootCmd.PersistentFlags().String("s3-region", "us-east-1", "Region for s3:// download URLs")
	rootCmd.PersistentFlags().String("s3-endpoint", "", "S3-compatible endpoint for s3:// download URLs")
	rootCmd.PersistentFlags().Int64("max-file-size", 0, "Max size of one extracted file in bytes")
	rootCmd.PersistentFlags().Int64("max-total-size", 0, "Max total extraction size in bytes")
	rootCmd.PersistentFlags().Float64("max-compression-ratio", 0, "Max compression ratio")

	for _, name := range []string{
		"descriptor-path", "descriptor-keyring", "install-dir", "extra-install-dirs", "app-path",
		"use-system-runtime", "state-dir", "ui", "log-level", "s3-region", "s3-endpoint",
	} {
		viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
	// Zero-valued limit and timeout flags must not shadow the config defaults.
	for _, name := range []string{"preflight-timeout", "http-timeout", "max-file-size", "max-total-size", "max-compression-ratio"} {
		bindIfChanged(name)
	}
}

func bindIfChanged(name string) {
	flag := rootCmd.PersistentFlags().Lookup(name)
	cobra.OnInitialize(func() {
		if flag.Changed {
			viper.Set(name, flag.Value.String())
		}
	})
}

func applyLogLevel(cmd *cobra.Command, args []string) error {
	level, err := config.ParseLogLevel(viper.GetString("log-level"))
	if err != nil {
		return err
	}
	LogLevel.Set(level)
	return nil
}
