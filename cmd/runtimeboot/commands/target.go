package commands

import (
	"context"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/runtimeboot/runtimeboot/pkg/descriptor"
	"github.com/runtimeboot/runtimeboot/pkg/platform"
)

var targetCmd = &cobra.Command{
	Use:   "target",
	Short: "Show the current target and the targets the descriptor supports",
	RunE:  runTarget,
}

func init() {
	rootCmd.AddCommand(targetCmd)
}

func runTarget(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	info, err := platform.Detect(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Target:   %s\n", info.Target)
	if info.Platform != "" {
		fmt.Printf("Host:     %s %s (%s)\n", info.Platform, info.Version, info.Family)
	}
	if info.KernelArch != "" {
		fmt.Printf("Kernel:   %s\n", info.KernelArch)
	}
	if info.Emulated() {
		fmt.Println("⚠️  Process architecture differs from the kernel's; the runtime must match the process")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	all, err := descriptor.LoadAll(cfg.DescriptorPath)
	if err != nil {
		fmt.Printf("\nDescriptor: %v\n", err)
		return nil
	}

	targets := descriptor.Targets(all)
	fmt.Printf("\nDescriptor %s supports:\n", cfg.DescriptorPath)
	for _, t := range targets {
		marker := " "
		if t == info.Target {
			marker = "*"
		}
		fmt.Printf(" %s %-24s %s\n", marker, t, all[t].Version)
	}
	if !slices.Contains(targets, info.Target) {
		fmt.Printf("\n%v\n", &descriptor.UnsupportedTargetError{Target: info.Target})
	}
	return nil
}
