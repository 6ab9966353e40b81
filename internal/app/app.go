// Package app assembles the authentication stack from configuration.
package app

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-hclog"
	"github.com/uptrace/bun"

	"github.com/terraconstructs/gridauth/internal/auth"
	"github.com/terraconstructs/gridauth/internal/config"
	"github.com/terraconstructs/gridauth/internal/provider"
	"github.com/terraconstructs/gridauth/internal/repository"
	"github.com/terraconstructs/gridauth/internal/services/iam"
	"github.com/terraconstructs/gridauth/internal/session"
	"github.com/terraconstructs/gridauth/internal/telemetry"
)

// App holds the wired repositories and authenticators.
type App struct {
	Users    repository.UserRepository
	Tokens   repository.TokenStore
	Sessions repository.SessionRepository

	Provider provider.Provider
	APIToken *iam.APITokenAuthenticator
	Session  *iam.SessionAuthenticatorFactory
	Cookies  *session.Manager

	Logger hclog.Logger
}

// Options tweaks assembly.
type Options struct {
	// Registry defaults to iam.DefaultRegistry().
	Registry *iam.Registry
	// SkipCookies builds no session manager; CLI commands never serve cookies.
	SkipCookies bool
	Metrics     *telemetry.AuthMetrics
}

// New wires the authentication stack over db.
func New(ctx context.Context, db *bun.DB, cfg config.AuthConfig, logger hclog.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", auth.ErrConfiguration, err)
	}
	if cfg.EncryptionKey == "" {
		return nil, fmt.Errorf("%w: auth.encryption_key is required", auth.ErrConfiguration)
	}
	enc, err := auth.NewAEADEncrypterFromKey(ctx, cfg.EncryptionKey)
	if err != nil {
		return nil, err
	}

	registry := opts.Registry
	if registry == nil {
		registry = iam.DefaultRegistry()
	}

	a := &App{
		Users:    repository.NewBunUserRepository(db),
		Tokens:   repository.NewBunAPITokenRepository(db),
		Sessions: repository.NewBunSessionRepository(db),
		Logger:   logger,
	}

	deps := iam.Dependencies{
		Users:  a.Users,
		Tokens: a.Tokens,
		Codec:  auth.NewCodec(enc),
		APIToken: iam.APITokenConfig{
			Group:       cfg.Group,
			Environment: cfg.Environment,
			TokenType:   cfg.TokenType,
		},
		Session: iam.SessionConfig{RememberDuration: cfg.RememberDuration},
		Logger:  logger,
		Metrics: opts.Metrics,
	}

	if a.Provider, err = registry.ResolveProvider(ctx, cfg.Provider, deps); err != nil {
		return nil, err
	}
	deps.Provider = a.Provider

	if a.APIToken, err = registry.ResolveAPIToken(ctx, iam.GuardAPI, deps); err != nil {
		return nil, err
	}
	if a.Session, err = registry.ResolveSession(ctx, iam.GuardWeb, deps); err != nil {
		return nil, err
	}

	if !opts.SkipCookies {
		hashKey, blockKey, err := cfg.CookieKeys()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", auth.ErrConfiguration, err)
		}
		a.Cookies, err = session.NewManager(a.Sessions, hashKey, blockKey, session.Options{
			SessionCookieName:  cfg.SessionCookieName,
			RememberCookieName: cfg.RememberCookieName,
			SessionDuration:    cfg.SessionDuration,
			RememberDuration:   cfg.RememberDuration,
			Secure:             cfg.SecureCookies,
		}, logger)
		if err != nil {
			return nil, err
		}
	}

	logger.Debug("authentication stack ready",
		"provider", cfg.Provider,
		"group", cfg.Group,
		"environment", cfg.Environment,
	)
	return a, nil
}
