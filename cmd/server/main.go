// Package main is the orchestrator's HTTP server entry point (spec.md §4.8,
// §4.9, §4.10: routes, coordinator, startup reconciliation, maintenance loop).
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mronstro/rondb-tools/internal/applog"
	"github.com/mronstro/rondb-tools/internal/bootstrap"
	"github.com/mronstro/rondb-tools/internal/config"
	"github.com/mronstro/rondb-tools/internal/httpapi"
)

var staticDir string

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "demo-orchestrator",
	Short: "Serves the per-visitor RonDB demo session orchestrator",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context())
	},
}

func init() {
	rootCmd.Flags().StringVar(&staticDir, "static-dir", "static", "directory serving favicon.png and index.html")
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
	logger, coord := collab.Logger, collab.Coordinator

	if err := coord.Reconcile(parentCtx); err != nil {
		logger.Err("startup reconciliation failed", applog.Fields{"cause": err.Error()})
	}
	coord.RunMaintenanceLoop()

	router := httpapi.NewRouter(coord, logger, cfg.Cluster.GUISecret, staticDir)
	server := &http.Server{
		Addr:    cfg.App.ListenAddr,
		Handler: router,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("orchestrator listening", applog.Fields{"addr": cfg.App.ListenAddr})
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	case <-quit:
	}

	logger.Info("shutting down", nil)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	coord.Shutdown()
	return server.Shutdown(shutdownCtx)
}
