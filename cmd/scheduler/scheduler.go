// Package scheduler implements the scheduler daemon command.
package scheduler

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lexwatch/tribsync/cmd/common"
	"github.com/lexwatch/tribsync/internal/scheduler"
)

const shutdownTimeout = 30 * time.Second

var immediate bool

// Cmd represents the scheduler command.
var Cmd = &cobra.Command{
	Use:   "scheduler",
	Short: "Run the sync scheduler daemon",
	Long: `Start the scheduler daemon. Sync sweeps run on the configured cron
schedule until the process is interrupted.`,
	RunE: runScheduler,
}

func init() {
	Cmd.Flags().BoolVar(&immediate, "now", false, "run one sweep immediately on startup")
}

func runScheduler(cmd *cobra.Command, _ []string) error {
	deps, err := common.NewCommandDeps()
	if err != nil {
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}

	pipeline, err := common.BuildPipeline(deps)
	if err != nil {
		return err
	}
	defer pipeline.Close()

	svc := scheduler.New(deps.Config.Scheduler, pipeline.Orchestrator, deps.Logger)
	if startErr := svc.Start(cmd.Context()); startErr != nil {
		return fmt.Errorf("failed to start scheduler: %w", startErr)
	}

	if immediate {
		go svc.RunNow()
	}

	// Wait for interrupt
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	select {
	case sig := <-sigChan:
		deps.Logger.Info("shutdown signal received", "signal", sig.String())
	case <-cmd.Context().Done():
		deps.Logger.Info("context cancelled")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if stopErr := svc.Stop(shutdownCtx); stopErr != nil {
		return fmt.Errorf("failed to stop scheduler: %w", stopErr)
	}

	deps.Logger.Info("scheduler stopped")
	return nil
}

// Command returns the scheduler command for use in the root command.
func Command() *cobra.Command {
	return Cmd
}
