package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/baton-ci/baton/internal/observe"
	"github.com/baton-ci/baton/internal/server"
)

// NewServeCmd creates the serve command.
func NewServeCmd(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the baton HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(version)
		},
	}
}

func runServe(version string) error {
	ctx := context.Background()

	cfg, err := loadProject(ctx)
	if err != nil {
		return err
	}

	shutdownTelemetry, err := observe.Setup(ctx, cfg.Telemetry, version)
	if err != nil {
		return fmt.Errorf("setting up telemetry: %w", err)
	}

	orch, store, err := buildOrchestrator(ctx, cfg)
	if err != nil {
		return err
	}

	addr := ":3000"
	if cfg.Server.Addr != "" {
		addr = cfg.Server.Addr
	}
	srv := server.New(addr, orch, store, cfg.Defaults.PollConfig(),
		cfg.Server.APIKey, cfg.Server.MaxBodyBytes, nil)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		_ = store.Close()
		_ = shutdownTelemetry(ctx)
		return err
	case sig := <-sigCh:
		color.Yellow("\nReceived %s, shutting down...", sig)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Stop(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		_ = store.Close()
		_ = shutdownTelemetry(shutdownCtx)
		color.Green("Server stopped gracefully")
		return nil
	}
}
