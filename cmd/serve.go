package cmd

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

	"github.com/terraconstructs/gridauth/cmd/cmdutil"
	"github.com/terraconstructs/gridauth/internal/server"
	"github.com/terraconstructs/gridauth/internal/telemetry"
)

var sweepInterval time.Duration

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the authentication server",
	Long:  `Starts the HTTP server with the login, logout, whoami and API token endpoints.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		shutdownTelemetry, err := telemetry.Init(ctx, cfg.Observability, logger.Named("otel"))
		if err != nil {
			return fmt.Errorf("failed to initialize telemetry: %w", err)
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTelemetry(sctx); err != nil {
				logger.Warn("telemetry shutdown failed", "error", err)
			}
		}()

		metrics, err := telemetry.NewAuthMetrics()
		if err != nil {
			return fmt.Errorf("failed to create auth metrics: %w", err)
		}

		bundle, err := cmdutil.NewAppBundle(ctx, cfg, logger, cmdutil.AppOptions{Cookies: true, Metrics: metrics})
		if err != nil {
			return err
		}
		defer bundle.Close()
		logger.Info("connected to database")

		if sweepInterval > 0 {
			go bundle.Cookies.RunSweeper(ctx, sweepInterval)
		}

		handler, err := server.NewH2CHandler(server.RouterOptions{
			App:    bundle.App,
			Logger: logger,
		})
		if err != nil {
			return err
		}

		srv := &http.Server{
			Addr:         cfg.ServerAddr,
			Handler:      handler,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		}

		serverErrors := make(chan error, 1)
		go func() {
			logger.Info("starting server", "addr", cfg.ServerAddr, "url", cfg.ServerURL)
			serverErrors <- srv.ListenAndServe()
		}()

		select {
		case err := <-serverErrors:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("server error: %w", err)
		case <-ctx.Done():
			logger.Info("shutting down gracefully")
			sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(sctx); err != nil {
				_ = srv.Close()
				return fmt.Errorf("graceful shutdown failed: %w", err)
			}
			logger.Info("server stopped")
			return nil
		}
	},
}

func init() {
	serveCmd.Flags().DurationVar(&sweepInterval, "session-sweep-interval", 15*time.Minute, "How often expired sessions are deleted")
	rootCmd.AddCommand(serveCmd)
}
