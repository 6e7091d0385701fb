// Package sync implements the one-shot sync command.
package sync

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lexwatch/tribsync/cmd/common"
	"github.com/lexwatch/tribsync/internal/scheduler"
)

var (
	userID    string
	reconcile bool
)

// Cmd represents the sync command.
var Cmd = &cobra.Command{
	Use:   "sync",
	Short: "Run a document sync once",
	Long: `Run one sync pass and exit. By default every active credential is
synced; --user restricts the pass to a single user, which also retries
credentials flagged failed.`,
	RunE: runSync,
}

func init() {
	Cmd.Flags().StringVar(&userID, "user", "", "sync only this user id")
	Cmd.Flags().BoolVar(&reconcile, "reconcile", false, "sweep stale running sync logs before syncing")
}

func runSync(cmd *cobra.Command, _ []string) error {
	deps, err := common.NewCommandDeps()
	if err != nil {
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}

	pipeline, err := common.BuildPipeline(deps)
	if err != nil {
		return err
	}
	defer pipeline.Close()

	ctx := cmd.Context()

	if reconcile {
		staleAfter := deps.Config.Scheduler.StaleAfter
		if staleAfter <= 0 {
			staleAfter = scheduler.DefaultStaleAfter
		}
		swept, reconcileErr := pipeline.Orchestrator.Reconcile(ctx, staleAfter)
		if reconcileErr != nil {
			return fmt.Errorf("failed to reconcile stale runs: %w", reconcileErr)
		}
		deps.Logger.Info("reconciliation completed", "swept", swept)
	}

	if userID != "" {
		return pipeline.Orchestrator.RunUser(ctx, userID)
	}
	return pipeline.Orchestrator.RunAll(ctx, deps.Config.Scheduler.Concurrency)
}

// Command returns the sync command for use in the root command.
func Command() *cobra.Command {
	return Cmd
}
