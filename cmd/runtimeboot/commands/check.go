package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/runtimeboot/runtimeboot/pkg/db"
	"github.com/runtimeboot/runtimeboot/pkg/identity"
	"github.com/runtimeboot/runtimeboot/pkg/platform"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Report whether an installed runtime matches the descriptor",
	Long: `Runs the compatibility gate over every configured install directory
without downloading anything. Exits non-zero when no directory is usable.`,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
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

	fmt.Printf("Target:  %s\n", target)
	fmt.Printf("Version: %s\n\n", desc.Version)
	fmt.Printf("%-40s %-20s %-24s %s\n", "DIRECTORY", "STATUS", "LAST RUN", "DETAIL")
	fmt.Println("--------------------------------------------------------------------------------------------------------")

	usable := false
	for _, dir := range cfg.InstallDirs() {
		res := identity.Check(dir, desc, target)
		if res.Usable() {
			usable = true
		}
		fmt.Printf("%-40s %-20s %-24s %s\n", dir, res.Status, lastRun(repo, dir), res)
	}

	if !usable {
		exitCode = 1
	}
	return nil
}

// lastRun describes the most recent recorded run for dir.
func lastRun(repo *db.Repository, dir string) string {
	runs, err := repo.ListByDir(dir)
	if err != nil || len(runs) == 0 {
		return "-"
	}
	last := runs[0]
	if !db.Terminal(last.State) {
		return fmt.Sprintf("%s (unfinished)", last.State)
	}
	return fmt.Sprintf("%s %s", last.State, last.Version)
}
