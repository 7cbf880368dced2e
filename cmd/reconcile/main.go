// Package main runs the startup reconciliation pass once, standalone
// (spec.md §4.11, SPEC_FULL.md §5.2), then exits without serving traffic.
// It is not a dry-run: it applies the same changes the server makes at
// startup — drops databases of interrupted creates, terminates pids of
// interrupted load generator starts, reaps dead pids, persists the result,
// regenerates the nginx access fragment and sweeps orphaned loadgen_*.pid
// marker files. Useful after an operator restarts the node by hand and wants
// to confirm reconciliation runs clean before starting the server.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mronstro/rondb-tools/internal/bootstrap"
	"github.com/mronstro/rondb-tools/internal/config"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Run the orchestrator's startup reconciliation pass once and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context())
	},
}

func run(parentCtx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	collab, err := bootstrap.Build(parentCtx, cfg)
	if err != nil {
		return err
	}
	defer collab.Close()

	if err := collab.Coordinator.Reconcile(parentCtx); err != nil {
		return fmt.Errorf("reconcile: %w", err)
	}
	fmt.Println("reconciliation complete")
	return nil
}
