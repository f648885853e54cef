package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/runtimeboot/runtimeboot/pkg/errors"
	"github.com/runtimeboot/runtimeboot/pkg/launch"
	"github.com/runtimeboot/runtimeboot/pkg/platform"
	"github.com/runtimeboot/runtimeboot/pkg/setup"
)

// launcher is replaced in tests.
var launcher launch.Launcher = &launch.Exec{Stdin: os.Stdin, Stdout: os.Stdout, Stderr: os.Stderr}

func runBootstrap(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if err := launch.CheckApp(cfg.AppPath); err != nil {
		return err
	}

	if cfg.UseSystemRuntime {
		slog.Info("bootstrap_system_runtime", "app", cfg.AppPath)
		return launchApp(ctx, "", cfg.AppPath, args)
	}

	target := platform.Current()
	desc, err := loadDescriptor(cfg, target)
	if err != nil {
		return err
	}

	repo, err := openRepo(cfg)
	if err != nil {
		return err
	}
	defer repo.Close()

	s, err := newSetup(ctx, cfg, repo)
	if err != nil {
		return err
	}
	defer s.Close()

	sink, stop := openSink(ctx, cfg)
	dir, out := s.Ensure(ctx, cfg.InstallDirs(), target, desc, sink)
	stop()

	switch out.Status {
	case setup.Cancelled:
		fmt.Fprintln(cmd.ErrOrStderr(), "Runtime setup cancelled.")
		exitCode = 0
		return nil
	case setup.Failed:
		return failureMessage(out)
	}

	root, err := filepath.Abs(dir)
	if err != nil {
		return errors.Wrap(err, "failed to resolve install directory")
	}
	return launchApp(ctx, root, cfg.AppPath, args)
}

func launchApp(ctx context.Context, runtimeDir, appPath string, args []string) error {
	code, err := launcher.Launch(ctx, launch.App{RuntimeDir: runtimeDir, AppPath: appPath, Args: args})
	if err != nil {
		return errors.Wrap(err, "failed to launch application")
	}
	exitCode = code
	return nil
}
