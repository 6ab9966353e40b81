package iam

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/terraconstructs/gridauth/internal/auth"
	"github.com/terraconstructs/gridauth/internal/db/models"
	"github.com/terraconstructs/gridauth/internal/provider"
	"github.com/terraconstructs/gridauth/internal/repository"
	"github.com/terraconstructs/gridauth/internal/telemetry"
)

const (
	// DefaultTokenType is the type prefix of issued tokens unless overridden.
	DefaultTokenType = "api"

	// DefaultEnvironment is the environment segment of issued tokens unless overridden.
	DefaultEnvironment = "live"

	// BearerType is the Type of every BearerToken returned to clients.
	BearerType = "bearer"

	// ViaAPIToken tags users attached by the API token guard.
	ViaAPIToken = "api"
)

// APITokenConfig scopes the tokens an authenticator issues and accepts.
type APITokenConfig struct {
	// Group partitions token records. Tokens from another group never validate.
	Group string
	// Environment is embedded in issued tokens and required on validation.
	Environment string
	// TokenType is the default type of issued tokens.
	TokenType string
}

// BearerToken is returned to clients after a token is issued.
type BearerToken struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

// TokenRecord is a listed token. Token holds a freshly encrypted wire reference to the
// stored identifier, never the plaintext.
type TokenRecord struct {
	ID          string            `json:"id"`
	Name        string            `json:"name,omitempty"`
	Type        string            `json:"type"`
	Group       string            `json:"group"`
	Environment string            `json:"environment"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	LastUsedAt  *time.Time        `json:"last_used_at,omitempty"`
	Token       string            `json:"token"`
}

// APITokenAuthenticator issues and validates opaque bearer API tokens.
//
// Validation steps:
//  1. Extract the token (Authorization "Bearer"/"token" scheme or "token" input)
//  2. Split "<type>_<environment>_<payload>"
//  3. Require the configured environment
//  4. Decrypt payload into user id and plaintext token
//  5. Look up the token record scoped to user, group, environment and type
//  6. Require the record's own group and environment to match the configuration
//  7. Resolve the user and attach it to the request state
//
// Any failure in steps 1-7 is reported as auth.ErrInvalidAPIToken. Storage errors
// propagate unchanged.
//
// This authenticator is stateless and thread-safe.
type APITokenAuthenticator struct {
	provider provider.Provider
	tokens   repository.TokenStore
	codec    *auth.Codec
	cfg      APITokenConfig
	logger   hclog.Logger
	metrics  *telemetry.AuthMetrics
}

// NewAPITokenAuthenticator creates a new API token authenticator.
func NewAPITokenAuthenticator(
	p provider.Provider,
	tokens repository.TokenStore,
	codec *auth.Codec,
	cfg APITokenConfig,
	logger hclog.Logger,
	metrics *telemetry.AuthMetrics,
) (*APITokenAuthenticator, error) {
	if p == nil || tokens == nil || codec == nil {
		return nil, fmt.Errorf("%w: api token authenticator requires a provider, token store and codec", auth.ErrConfiguration)
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &APITokenAuthenticator{
		provider: p,
		tokens:   tokens,
		codec:    codec,
		cfg:      cfg,
		logger:   logger.Named("api-token"),
		metrics:  metrics,
	}, nil
}

// Config returns the token scope of this authenticator.
func (a *APITokenAuthenticator) Config() APITokenConfig {
	return a.cfg
}

// Attempt verifies a login identifier and password, then issues a token.
// Unknown users and wrong passwords both fail with auth.ErrAuthenticationFailed.
func (a *APITokenAuthenticator) Attempt(ctx context.Context, uid, password string, opts ...GenerateOption) (*BearerToken, error) {
	start := time.Now()
	user, err := a.provider.FindByUID(ctx, uid)
	switch {
	case errors.Is(err, auth.ErrUserNotFound):
		verifyMissing(a.provider, password)
		a.metrics.RecordAuth(ctx, "api_token.attempt", false, msSince(start))
		return nil, auth.ErrAuthenticationFailed
	case err != nil:
		return nil, fmt.Errorf("find user: %w", err)
	}
	if !user.VerifyPassword(password) {
		a.metrics.RecordAuth(ctx, "api_token.attempt", false, msSince(start))
		return nil, auth.ErrAuthenticationFailed
	}
	a.metrics.RecordAuth(ctx, "api_token.attempt", true, msSince(start))

	return a.Generate(ctx, user, opts...)
}

// Generate issues a new token for user. The token record is persisted before the wire
// token is built, so the returned token validates immediately.
func (a *APITokenAuthenticator) Generate(ctx context.Context, user auth.Authenticatable, opts ...GenerateOption) (*BearerToken, error) {
	o := getGenerateOpts(a.cfg, opts...)

	ctx, span := telemetry.StartSpan(ctx, telemetry.TracerAPIToken, "apitoken.Generate",
		attribute.String(telemetry.AttrTokenType, o.tokenType),
		attribute.String(telemetry.AttrTokenEnv, o.environment),
	)
	defer span.End()

	if err := a.validateScope(o.tokenType, o.environment); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if user == nil || user.GetID() == "" {
		telemetry.RecordError(span, auth.ErrMissingIdentity)
		return nil, auth.ErrMissingIdentity
	}
	userID := user.GetID()
	span.SetAttributes(attribute.String(telemetry.AttrUserID, userID))

	plain, err := auth.GenerateToken()
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	record := &models.APIToken{
		UserID:      userID,
		Name:        o.name,
		Type:        o.tokenType,
		TokenHash:   auth.HashToken(plain),
		Group:       a.cfg.Group,
		Environment: o.environment,
		Metadata:    models.TokenMetadata(o.metadata),
	}
	if err := a.tokens.Save(ctx, record); err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("persist api token: %w", err)
	}

	wire, err := a.codec.Encode(ctx, userID, plain, o.tokenType, o.environment)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	a.metrics.RecordTokenIssued(ctx, o.tokenType, o.environment)
	a.logger.Info("issued api token", "user_id", userID, "token_id", record.ID, "type", o.tokenType, "environment", o.environment)

	return &BearerToken{Type: BearerType, Token: wire}, nil
}

// Check validates the request's bearer token and attaches its user to the request state.
// It is a no-op when a user is already attached.
func (a *APITokenAuthenticator) Check(ctx context.Context, req AuthRequest) error {
	state, ok := auth.RequestStateFromContext(ctx)
	if !ok {
		return fmt.Errorf("%w: no request state on context", auth.ErrConfiguration)
	}
	if state.User() != nil {
		return nil
	}
	if a.cfg.Group == "" {
		return fmt.Errorf("%w: api token group is not configured", auth.ErrConfiguration)
	}

	ctx, span := telemetry.StartSpan(ctx, telemetry.TracerAPIToken, "apitoken.Check",
		attribute.String(telemetry.AttrTokenGroup, a.cfg.Group),
	)
	defer span.End()

	start := time.Now()
	user, record, err := a.resolve(ctx, req)
	a.metrics.RecordAuth(ctx, "api_token", err == nil, msSince(start))
	if err != nil {
		telemetry.RecordError(span, err)
		return err
	}

	state.SetUser(user, ViaAPIToken)
	span.SetAttributes(attribute.String(telemetry.AttrUserID, user.GetID()))

	// Non-blocking; a failed timestamp update must not fail the request.
	go func(id string) {
		bgCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.tokens.UpdateLastUsed(bgCtx, id); err != nil {
			a.logger.Debug("failed to update api token last used", "token_id", id, "error", err)
		}
	}(record.ID)

	return nil
}

// LoginIfCan is the boolean form of Check. It reports false without any lookup when the
// request carries no token, and downgrades only recoverable rejections to false.
func (a *APITokenAuthenticator) LoginIfCan(ctx context.Context, req AuthRequest) (bool, error) {
	if _, ok := auth.ExtractToken(req.Headers, req.Input); !ok {
		return false, nil
	}
	if err := a.Check(ctx, req); err != nil {
		if auth.IsRecoverable(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ListTokensForUser lists the user's tokens in this authenticator's group, newest first.
// A nil user yields an empty list.
func (a *APITokenAuthenticator) ListTokensForUser(ctx context.Context, user auth.Authenticatable) ([]TokenRecord, error) {
	if user == nil || user.GetID() == "" {
		return []TokenRecord{}, nil
	}
	records, err := a.tokens.List(ctx, repository.TokenFilter{UserID: user.GetID(), Group: a.cfg.Group})
	if err != nil {
		return nil, fmt.Errorf("list api tokens: %w", err)
	}

	out := make([]TokenRecord, 0, len(records))
	for _, r := range records {
		ref, err := a.codec.Encode(ctx, r.UserID, r.TokenHash, r.Type, r.Environment)
		if err != nil {
			return nil, fmt.Errorf("encrypt token reference: %w", err)
		}
		out = append(out, TokenRecord{
			ID:          r.ID,
			Name:        r.Name,
			Type:        r.Type,
			Group:       r.Group,
			Environment: r.Environment,
			Metadata:    r.Metadata,
			CreatedAt:   r.CreatedAt,
			LastUsedAt:  r.LastUsedAt,
			Token:       ref,
		})
	}
	return out, nil
}

// RevokeToken deletes one of the user's tokens.
func (a *APITokenAuthenticator) RevokeToken(ctx context.Context, user auth.Authenticatable, tokenID string) error {
	if user == nil || user.GetID() == "" {
		return auth.ErrMissingIdentity
	}
	if err := a.tokens.Delete(ctx, tokenID, user.GetID()); err != nil {
		return err
	}
	a.logger.Info("revoked api token", "user_id", user.GetID(), "token_id", tokenID)
	return nil
}

func (a *APITokenAuthenticator) resolve(ctx context.Context, req AuthRequest) (auth.Authenticatable, *models.APIToken, error) {
	raw, ok := auth.ExtractToken(req.Headers, req.Input)
	if !ok {
		return nil, nil, a.reject("missing token")
	}

	decoded, err := a.codec.Decode(raw)
	if err != nil {
		return nil, nil, a.reject("malformed token")
	}
	if decoded.Environment != a.environment() {
		return nil, nil, a.reject("environment mismatch")
	}

	payload, err := a.codec.DecryptPayload(ctx, decoded.EncryptedPayload)
	if err != nil {
		if errors.Is(err, auth.ErrConfiguration) {
			return nil, nil, err
		}
		return nil, nil, a.reject("undecryptable payload")
	}

	record, err := a.tokens.FindByToken(ctx, payload.PlainToken, repository.TokenFilter{
		UserID:      payload.UserID,
		Group:       a.cfg.Group,
		Environment: decoded.Environment,
		Type:        decoded.Type,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("find api token: %w", err)
	}
	if record == nil {
		return nil, nil, a.reject("unknown token")
	}
	if record.Group != a.cfg.Group || record.Environment != decoded.Environment {
		return nil, nil, a.reject("group mismatch")
	}

	user, err := a.provider.FindByID(ctx, record.UserID)
	if errors.Is(err, auth.ErrUserNotFound) {
		return nil, nil, a.reject("token owner not found")
	}
	if err != nil {
		return nil, nil, fmt.Errorf("find token owner: %w", err)
	}
	return user, record, nil
}

func (a *APITokenAuthenticator) reject(reason string) error {
	a.logger.Debug("api token rejected", "reason", reason)
	return auth.ErrInvalidAPIToken
}

func (a *APITokenAuthenticator) validateScope(tokenType, environment string) error {
	if err := auth.ValidateSegment("token type", tokenType); err != nil {
		return err
	}
	if a.cfg.Group == "" {
		return fmt.Errorf("%w: api token group is not configured", auth.ErrConfiguration)
	}
	return auth.ValidateSegment("environment", environment)
}

func (a *APITokenAuthenticator) environment() string {
	if a.cfg.Environment == "" {
		return DefaultEnvironment
	}
	return a.cfg.Environment
}

// verifyMissing spends a password check on an unknown login identifier when the
// provider supports it.
func verifyMissing(p provider.Provider, password string) {
	if v, ok := p.(provider.MissVerifier); ok {
		v.VerifyMissing(password)
	}
}

func msSince(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}
