package iam

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/terraconstructs/gridauth/internal/auth"
	"github.com/terraconstructs/gridauth/internal/provider"
	"github.com/terraconstructs/gridauth/internal/telemetry"
)

// ViaSession tags users attached by the session guard.
const ViaSession = "session"

// DefaultRememberDuration is the remember cookie lifetime when none is configured.
const DefaultRememberDuration = 30 * 24 * time.Hour

// SessionStore holds the server-side session identifier for one request.
type SessionStore interface {
	// Get returns the user id bound to the current session, or "" when there is none.
	Get(ctx context.Context) (string, error)
	// Set binds a fresh session to userID, replacing any existing one.
	Set(ctx context.Context, userID string) error
	// Destroy ends the current session.
	Destroy(ctx context.Context) error
}

// RememberCookieStore reads and writes the remember-me cookie for one request.
type RememberCookieStore interface {
	Get() (userID, token string, ok bool)
	Set(userID, token string, expiry time.Duration) error
	Clear()
}

// SessionConfig configures session authentication.
type SessionConfig struct {
	RememberDuration time.Duration
}

// SessionAuthenticatorFactory holds the long-lived dependencies of session authentication
// and builds one SessionAuthenticator per request.
type SessionAuthenticatorFactory struct {
	provider provider.Provider
	cfg      SessionConfig
	logger   hclog.Logger
	metrics  *telemetry.AuthMetrics
}

// NewSessionAuthenticatorFactory creates a factory.
func NewSessionAuthenticatorFactory(p provider.Provider, cfg SessionConfig, logger hclog.Logger, metrics *telemetry.AuthMetrics) (*SessionAuthenticatorFactory, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: session authenticator requires a provider", auth.ErrConfiguration)
	}
	if cfg.RememberDuration <= 0 {
		cfg.RememberDuration = DefaultRememberDuration
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &SessionAuthenticatorFactory{
		provider: p,
		cfg:      cfg,
		logger:   logger.Named("session"),
		metrics:  metrics,
	}, nil
}

// New builds the authenticator for one request.
func (f *SessionAuthenticatorFactory) New(sessions SessionStore, remember RememberCookieStore) *SessionAuthenticator {
	return &SessionAuthenticator{
		provider: f.provider,
		sessions: sessions,
		remember: remember,
		cfg:      f.cfg,
		logger:   f.logger,
		metrics:  f.metrics,
		guest:    true,
	}
}

// SessionAuthenticator is the session state machine for a single request. It starts
// unauthenticated and ends either as a guest or logged in, possibly via the remember
// cookie. It must not be shared between requests.
type SessionAuthenticator struct {
	provider provider.Provider
	sessions SessionStore
	remember RememberCookieStore
	cfg      SessionConfig
	logger   hclog.Logger
	metrics  *telemetry.AuthMetrics

	user          auth.Authenticatable
	guest         bool
	authenticated bool
	attempted     bool
	loggedOut     bool
	viaRemember   bool
	outcome       error
}

// User returns the resolved user, or nil for guests.
func (s *SessionAuthenticator) User() auth.Authenticatable { return s.user }

// IsGuest reports whether no user is logged in.
func (s *SessionAuthenticator) IsGuest() bool { return s.guest }

// IsLoggedIn reports whether a user is attached.
func (s *SessionAuthenticator) IsLoggedIn() bool { return !s.guest }

// IsAuthenticated reports whether this request verified its user.
func (s *SessionAuthenticator) IsAuthenticated() bool { return s.authenticated }

// AuthenticationAttempted reports whether Authenticate or a login ran in this request.
func (s *SessionAuthenticator) AuthenticationAttempted() bool { return s.attempted }

// IsLoggedOut reports whether Logout ran in this request.
func (s *SessionAuthenticator) IsLoggedOut() bool { return s.loggedOut }

// ViaRemember reports whether the user was restored from the remember cookie.
func (s *SessionAuthenticator) ViaRemember() bool { return s.viaRemember }

// Attempt verifies credentials and logs the user in. Unknown users and wrong passwords
// both fail with auth.ErrAuthenticationFailed.
func (s *SessionAuthenticator) Attempt(ctx context.Context, uid, password string, remember bool) error {
	start := time.Now()
	user, err := s.provider.FindByUID(ctx, uid)
	switch {
	case errors.Is(err, auth.ErrUserNotFound):
		verifyMissing(s.provider, password)
		s.metrics.RecordAuth(ctx, "session.attempt", false, msSince(start))
		return auth.ErrAuthenticationFailed
	case err != nil:
		return fmt.Errorf("find user: %w", err)
	}
	if !user.VerifyPassword(password) {
		s.metrics.RecordAuth(ctx, "session.attempt", false, msSince(start))
		s.logger.Debug("password mismatch", "user_id", user.GetID())
		return auth.ErrAuthenticationFailed
	}
	s.metrics.RecordAuth(ctx, "session.attempt", true, msSince(start))
	if err := s.Login(ctx, user, remember); err != nil {
		return err
	}
	if rec, ok := s.provider.(provider.LoginRecorder); ok {
		if err := rec.RecordLogin(ctx, user.GetID()); err != nil {
			s.logger.Warn("failed to record login", "user_id", user.GetID(), "error", err)
		}
	}
	return nil
}

// Login binds a new session to user and, when remember is set, issues a remember token.
// If the remember token cannot be issued the new session is destroyed again.
func (s *SessionAuthenticator) Login(ctx context.Context, user auth.Authenticatable, remember bool) error {
	if user == nil || user.GetID() == "" {
		return auth.ErrMissingIdentity
	}
	if err := s.sessions.Set(ctx, user.GetID()); err != nil {
		return fmt.Errorf("bind session: %w", err)
	}
	if remember {
		if err := s.issueRememberToken(ctx, user); err != nil {
			s.becomeGuest(ctx)
			if derr := s.sessions.Destroy(ctx); derr != nil {
				return errors.Join(err, fmt.Errorf("destroy session: %w", derr))
			}
			if errors.Is(err, provider.ErrRememberTokenConflict) {
				return fmt.Errorf("%w: %w", auth.ErrAuthenticationFailed, err)
			}
			return err
		}
	}

	s.attempted = true
	s.outcome = nil
	s.loggedOut = false
	s.setLoggedIn(ctx, user, false)
	s.logger.Info("user logged in", "user_id", user.GetID(), "remember", remember)
	return nil
}

// LoginViaID looks the user up by id and logs them in. A missing user fails with an
// error matching both auth.ErrAuthenticationFailed and auth.ErrUserNotFound.
func (s *SessionAuthenticator) LoginViaID(ctx context.Context, id string, remember bool) error {
	user, err := s.provider.FindByID(ctx, id)
	if errors.Is(err, auth.ErrUserNotFound) {
		return fmt.Errorf("%w: %w", auth.ErrAuthenticationFailed, auth.ErrUserNotFound)
	}
	if err != nil {
		return fmt.Errorf("find user: %w", err)
	}
	return s.Login(ctx, user, remember)
}

// Authenticate resolves the request's user from the session, then from the remember
// cookie. Repeated calls return the first outcome without further lookups.
func (s *SessionAuthenticator) Authenticate(ctx context.Context) (auth.Authenticatable, error) {
	if s.attempted {
		if s.user != nil {
			return s.user, nil
		}
		if s.outcome != nil {
			return nil, s.outcome
		}
		return nil, auth.ErrAuthenticationFailed
	}
	s.attempted = true

	ctx, span := telemetry.StartSpan(ctx, telemetry.TracerSession, "session.Authenticate")
	defer span.End()

	start := time.Now()
	user, err := s.resolve(ctx)
	s.metrics.RecordAuth(ctx, "session", err == nil, msSince(start))
	if err != nil {
		s.becomeGuest(ctx)
		s.outcome = err
		telemetry.RecordError(span, err)
		return nil, err
	}

	span.SetAttributes(
		attribute.String(telemetry.AttrUserID, user.GetID()),
		attribute.Bool(telemetry.AttrViaRemember, s.viaRemember),
	)
	return user, nil
}

// Check is the boolean form of Authenticate. Only recoverable rejections become false.
func (s *SessionAuthenticator) Check(ctx context.Context) (bool, error) {
	if _, err := s.Authenticate(ctx); err != nil {
		if auth.IsRecoverable(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// LoginIfCan adapts the session guard to the Guard interface.
func (s *SessionAuthenticator) LoginIfCan(ctx context.Context, _ AuthRequest) (bool, error) {
	return s.Check(ctx)
}

// Logout ends the session and invalidates the persisted remember token so a captured
// cookie cannot restore the session. With recycleRememberToken the stored token is
// replaced by a fresh unused value, otherwise it is cleared.
func (s *SessionAuthenticator) Logout(ctx context.Context, recycleRememberToken bool) error {
	var errs []error
	user := s.user
	if user == nil && !s.attempted {
		var err error
		user, err = s.Authenticate(ctx)
		if err != nil && !auth.IsRecoverable(err) {
			errs = append(errs, fmt.Errorf("resolve user: %w", err))
		}
	}
	if user != nil {
		next := ""
		if recycleRememberToken {
			token, err := auth.GenerateRememberToken()
			if err != nil {
				return err
			}
			next = token
		}
		user.SetRememberMeToken(next)
		if err := s.provider.UpdateRememberMeToken(ctx, user); err != nil && !errors.Is(err, provider.ErrRememberTokenConflict) {
			errs = append(errs, fmt.Errorf("invalidate remember token: %w", err))
		}
	}
	if err := s.sessions.Destroy(ctx); err != nil {
		errs = append(errs, fmt.Errorf("destroy session: %w", err))
	}
	s.remember.Clear()

	s.becomeGuest(ctx)
	s.loggedOut = true
	if user != nil {
		s.logger.Info("user logged out", "user_id", user.GetID())
	}
	return errors.Join(errs...)
}

func (s *SessionAuthenticator) resolve(ctx context.Context) (auth.Authenticatable, error) {
	userID, err := s.sessions.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}
	if userID != "" {
		user, err := s.provider.FindByID(ctx, userID)
		if errors.Is(err, auth.ErrUserNotFound) {
			s.logger.Debug("session user no longer exists", "user_id", userID)
			if err := s.sessions.Destroy(ctx); err != nil {
				s.logger.Warn("failed to destroy orphaned session", "error", err)
			}
			return nil, auth.ErrAuthenticationFailed
		}
		if err != nil {
			return nil, fmt.Errorf("find session user: %w", err)
		}
		s.setLoggedIn(ctx, user, false)
		return user, nil
	}

	rememberedID, token, ok := s.remember.Get()
	if !ok {
		return nil, auth.ErrAuthenticationFailed
	}
	return s.resolveRemembered(ctx, rememberedID, token)
}

func (s *SessionAuthenticator) resolveRemembered(ctx context.Context, userID, token string) (auth.Authenticatable, error) {
	user, err := s.provider.FindByToken(ctx, userID, token)
	if errors.Is(err, auth.ErrUserNotFound) {
		s.logger.Debug("remember cookie rejected", "user_id", userID)
		s.remember.Clear()
		return nil, auth.ErrAuthenticationFailed
	}
	if err != nil {
		return nil, fmt.Errorf("find remembered user: %w", err)
	}

	// Single use: rotate before trusting the cookie.
	if err := s.issueRememberToken(ctx, user); err != nil {
		if errors.Is(err, provider.ErrRememberTokenConflict) {
			s.metrics.RecordRememberRotation(ctx, "conflict")
			s.logger.Warn("remember token reused concurrently", "user_id", userID)
			s.remember.Clear()
			return nil, auth.ErrAuthenticationFailed
		}
		return nil, err
	}
	s.metrics.RecordRememberRotation(ctx, "rotated")

	if err := s.sessions.Set(ctx, user.GetID()); err != nil {
		return nil, fmt.Errorf("bind session: %w", err)
	}
	s.setLoggedIn(ctx, user, true)
	return user, nil
}

func (s *SessionAuthenticator) issueRememberToken(ctx context.Context, user auth.Authenticatable) error {
	token, err := auth.GenerateRememberToken()
	if err != nil {
		return err
	}
	user.SetRememberMeToken(token)
	if err := s.provider.UpdateRememberMeToken(ctx, user); err != nil {
		return err
	}
	if err := s.remember.Set(user.GetID(), token, s.cfg.RememberDuration); err != nil {
		return fmt.Errorf("write remember cookie: %w", err)
	}
	return nil
}

func (s *SessionAuthenticator) setLoggedIn(ctx context.Context, user auth.Authenticatable, viaRemember bool) {
	s.user = user
	s.guest = false
	s.authenticated = true
	s.viaRemember = viaRemember
	if state, ok := auth.RequestStateFromContext(ctx); ok {
		state.SetUser(user, ViaSession)
	}
}

func (s *SessionAuthenticator) becomeGuest(ctx context.Context) {
	s.user = nil
	s.guest = true
	s.authenticated = false
	s.viaRemember = false
	if state, ok := auth.RequestStateFromContext(ctx); ok && state.Via() == ViaSession {
		state.Clear()
	}
}
