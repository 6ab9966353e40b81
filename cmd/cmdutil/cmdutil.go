// Package cmdutil holds helpers shared by CLI commands.
package cmdutil

import (
	"context"
	"fmt"
	"os"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/viper"
	"github.com/uptrace/bun"

	"github.com/terraconstructs/gridauth/internal/app"
	"github.com/terraconstructs/gridauth/internal/config"
	"github.com/terraconstructs/gridauth/internal/db/bunx"
	"github.com/terraconstructs/gridauth/internal/telemetry"
)

// ReadConfigFile loads an explicit config file into viper. An empty path is a no-op.
func ReadConfigFile(path string) error {
	if path == "" {
		return nil
	}
	viper.SetConfigFile(path)
	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return nil
}

// NewLogger builds the root logger from configuration.
func NewLogger(cfg *config.Config) hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:       "gridauth",
		Level:      hclog.LevelFromString(cfg.LogLevel),
		Output:     os.Stderr,
		JSONFormat: os.Getenv("GRIDAUTH_LOG_JSON") == "true",
	})
}

// OpenDB connects to the configured database.
func OpenDB(ctx context.Context, cfg *config.Config) (*bun.DB, error) {
	db, err := bunx.NewDB(ctx, cfg.DatabaseURL, bunx.Options{MaxOpenConns: cfg.MaxDBConnections})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// AppBundle bundles the wired stack with its DB connection.
type AppBundle struct {
	*app.App
	DB *bun.DB
}

// Close releases the underlying database connection.
func (b *AppBundle) Close() {
	if b == nil || b.DB == nil {
		return
	}
	_ = bunx.Close(b.DB)
}

// AppOptions controls how CLI commands assemble the stack.
type AppOptions struct {
	// Cookies builds the session manager; only `serve` needs it.
	Cookies bool
	Metrics *telemetry.AuthMetrics
}

// NewAppBundle connects to the database and wires the authentication stack.
func NewAppBundle(ctx context.Context, cfg *config.Config, logger hclog.Logger, opts AppOptions) (*AppBundle, error) {
	db, err := OpenDB(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a, err := app.New(ctx, db, cfg.Auth, logger, app.Options{
		SkipCookies: !opts.Cookies,
		Metrics:     opts.Metrics,
	})
	if err != nil {
		_ = bunx.Close(db)
		return nil, fmt.Errorf("failed to assemble authentication: %w", err)
	}
	return &AppBundle{App: a, DB: db}, nil
}

// LoadConfig loads configuration and a logger for subcommands that run outside the root
// pre-run hook.
func LoadConfig() (*config.Config, hclog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, NewLogger(cfg), nil
}
