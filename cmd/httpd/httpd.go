// Package httpd implements the audit API server command.
package httpd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lexwatch/tribsync/cmd/common"
	"github.com/lexwatch/tribsync/internal/api"
	"github.com/lexwatch/tribsync/internal/database"
)

const shutdownTimeout = 15 * time.Second

// Cmd represents the httpd command.
var Cmd = &cobra.Command{
	Use:   "httpd",
	Short: "Run the audit API server",
	Long: `Start the HTTP server exposing sync run history, processed documents,
health and Prometheus metrics.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return Start()
	},
}

// Start runs the audit API server until interrupted.
func Start() error {
	deps, err := common.NewCommandDeps()
	if err != nil {
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}

	db, err := database.NewPostgresConnection(deps.Config.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	server := api.NewServer(
		database.NewSyncLogRepository(db),
		database.NewDocumentRepository(db),
		deps.Logger,
	)

	httpServer := &http.Server{
		Addr:         deps.Config.Server.Address,
		Handler:      server.Handler(),
		ReadTimeout:  deps.Config.Server.ReadTimeout,
		WriteTimeout: deps.Config.Server.WriteTimeout,
	}

	errChan := make(chan error, 1)
	go func() {
		deps.Logger.Info("starting audit API server", "addr", httpServer.Addr)
		if serveErr := httpServer.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			errChan <- serveErr
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case serveErr := <-errChan:
		return fmt.Errorf("server error: %w", serveErr)
	case sig := <-sigChan:
		deps.Logger.Info("shutdown signal received", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if shutdownErr := httpServer.Shutdown(shutdownCtx); shutdownErr != nil {
		return fmt.Errorf("failed to stop server: %w", shutdownErr)
	}

	deps.Logger.Info("server stopped")
	return nil
}

// Command returns the httpd command for use in the root command.
func Command() *cobra.Command {
	return Cmd
}
