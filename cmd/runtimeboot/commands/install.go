package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/runtimeboot/runtimeboot/pkg/platform"
	"github.com/runtimeboot/runtimeboot/pkg/setup"
)

var installForce bool

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Provision the runtime without launching the application",
	RunE:  runInstall,
}

func init() {
	rootCmd.AddCommand(installCmd)
	installCmd.Flags().BoolVar(&installForce, "force", false, "Wipe the install directory and reinstall even if it is compatible")
}

func runInstall(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	target := platform.Current()
	desc, err := loadDescriptor(cfg, target)
	if err != nil {
		return err
	}

	if installForce {
		slog.Info("install_forced", "dir", cfg.InstallDir)
		if err := setup.Wipe(cfg.InstallDir); err != nil {
			return err
		}
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

	dirs := cfg.InstallDirs()
	if installForce {
		dirs = dirs[:1]
	}

	sink, stop := openSink(ctx, cfg)
	dir, out := s.Ensure(ctx, dirs, target, desc, sink)
	stop()

	switch out.Status {
	case setup.Cancelled:
		fmt.Println("Runtime setup cancelled.")
		return nil
	case setup.Failed:
		return failureMessage(out)
	}

	fmt.Printf("✅ Runtime %s (%s) ready in %s\n", desc.Version, target, dir)
	return nil
}
