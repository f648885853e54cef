package commands

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/runtimeboot/runtimeboot/pkg/errors"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded runtime setup runs",
	RunE:  runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum number of runs to show")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	repo, err := openRepo(cfg)
	if err != nil {
		return err
	}
	defer repo.Close()

	runs, err := repo.List(historyLimit)
	if err != nil {
		return errors.Wrap(err, "list failed")
	}

	if len(runs) == 0 {
		fmt.Println("No runtime setup runs recorded")
		return nil
	}

	fmt.Printf("%-36s %-20s %-10s %-12s %-10s %-20s %s\n", "RUN", "TARGET", "VERSION", "STATE", "SIZE", "STARTED", "ERROR")
	fmt.Println("--------------------------------------------------------------------------------------------------------------------------")

	for _, run := range runs {
		size := "-"
		if run.Bytes > 0 {
			size = humanize.Bytes(uint64(run.Bytes))
		}
		detail := "-"
		if run.ErrorKind != "" {
			detail = fmt.Sprintf("%s: %s", run.ErrorKind, run.ErrorMessage)
		}

		fmt.Printf("%-36s %-20s %-10s %-12s %-10s %-20s %s\n",
			run.RunID, run.Target, run.Version, run.State, size, run.CreatedAt, detail)
	}

	return nil
}
