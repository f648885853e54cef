package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/runtimeboot/runtimeboot/pkg/errors"
	"github.com/runtimeboot/runtimeboot/pkg/setup"
)

var (
	cleanupHistory     bool
	cleanupInstall     bool
	cleanupInterrupted bool
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Clean up install directories and setup history",
	Long: `Clean up resources left by runtime setup:
  --history       Prune the install history down to history-keep runs
  --install       Wipe every configured install directory
  --interrupted   Mark runs left unfinished by a crash as failed`,
	RunE: runCleanup,
}

func init() {
	rootCmd.AddCommand(cleanupCmd)
	cleanupCmd.Flags().BoolVar(&cleanupHistory, "history", false, "Prune old history entries")
	cleanupCmd.Flags().BoolVar(&cleanupInstall, "install", false, "Wipe install directories")
	cleanupCmd.Flags().BoolVar(&cleanupInterrupted, "interrupted", false, "Mark interrupted runs as failed")
}

func runCleanup(cmd *cobra.Command, args []string) error {
	if !cleanupHistory && !cleanupInstall && !cleanupInterrupted {
		return fmt.Errorf("must specify --history, --install, or --interrupted")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if cleanupInstall {
		for _, dir := range cfg.InstallDirs() {
			if err := setup.Wipe(dir); err != nil {
				fmt.Printf("⚠️  Failed to wipe %s: %v\n", dir, err)
			} else {
				fmt.Printf("✅ Wiped: %s\n", dir)
			}
		}
	}

	if !cleanupHistory && !cleanupInterrupted {
		return nil
	}

	repo, err := openRepo(cfg)
	if err != nil {
		return err
	}
	defer repo.Close()

	if cleanupInterrupted {
		n, err := repo.MarkInterrupted()
		if err != nil {
			return errors.Wrap(err, "failed to mark interrupted runs")
		}
		fmt.Printf("✅ Marked %d interrupted runs as failed\n", n)
	}

	if cleanupHistory {
		n, err := repo.Prune(cfg.HistoryKeep)
		if err != nil {
			return errors.Wrap(err, "prune failed")
		}
		fmt.Printf("✅ Removed %d history entries\n", n)
	}

	return nil
}
