// Package session binds browser sessions and remember-me cookies to HTTP requests.
package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/securecookie"
	"github.com/hashicorp/go-hclog"

	"github.com/terraconstructs/gridauth/internal/auth"
	"github.com/terraconstructs/gridauth/internal/db/bunx"
	"github.com/terraconstructs/gridauth/internal/db/models"
	"github.com/terraconstructs/gridauth/internal/repository"
)

// Options configures the auth cookies.
type Options struct {
	SessionCookieName  string
	RememberCookieName string
	SessionDuration    time.Duration
	RememberDuration   time.Duration
	Secure             bool
}

// Manager holds the long-lived session dependencies and builds per-request stores.
type Manager struct {
	sessions repository.SessionRepository
	cookies  *securecookie.SecureCookie
	opts     Options
	logger   hclog.Logger
}

// NewManager creates a session manager. hashKey signs the remember cookie; a non-empty
// blockKey also encrypts it.
func NewManager(sessions repository.SessionRepository, hashKey, blockKey []byte, opts Options, logger hclog.Logger) (*Manager, error) {
	if sessions == nil {
		return nil, fmt.Errorf("%w: session manager requires a session repository", auth.ErrConfiguration)
	}
	if len(hashKey) < 32 {
		return nil, fmt.Errorf("%w: remember cookie hash key must be at least 32 bytes", auth.ErrConfiguration)
	}
	switch len(blockKey) {
	case 0, 16, 24, 32:
	default:
		return nil, fmt.Errorf("%w: remember cookie block key must be 16, 24 or 32 bytes", auth.ErrConfiguration)
	}
	if opts.SessionCookieName == "" || opts.RememberCookieName == "" {
		return nil, fmt.Errorf("%w: cookie names are required", auth.ErrConfiguration)
	}
	if opts.SessionDuration <= 0 || opts.RememberDuration <= 0 {
		return nil, fmt.Errorf("%w: cookie durations must be positive", auth.ErrConfiguration)
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	if len(blockKey) == 0 {
		blockKey = nil
	}
	sc := securecookie.New(hashKey, blockKey)
	sc.SetSerializer(securecookie.JSONEncoder{})
	sc.MaxAge(int(opts.RememberDuration / time.Second))

	return &Manager{
		sessions: sessions,
		cookies:  sc,
		opts:     opts,
		logger:   logger.Named("session"),
	}, nil
}

// Stores returns the session and remember cookie stores for one request.
func (m *Manager) Stores(w http.ResponseWriter, r *http.Request) (*DatabaseStore, *RememberCookie) {
	return &DatabaseStore{m: m, w: w, r: r}, &RememberCookie{m: m, w: w, r: r}
}

// Sweep deletes expired and revoked sessions.
func (m *Manager) Sweep(ctx context.Context) (int64, error) {
	n, err := m.sessions.DeleteExpired(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		m.logger.Debug("swept sessions", "count", n)
	}
	return n, nil
}

// RunSweeper calls Sweep every interval until ctx is done.
func (m *Manager) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.Sweep(ctx); err != nil && !errors.Is(err, context.Canceled) {
				m.logger.Warn("session sweep failed", "error", err)
			}
		}
	}
}

func (m *Manager) setCookie(w http.ResponseWriter, name, value string, maxAge time.Duration) {
	c := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   m.opts.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	if maxAge > 0 {
		c.MaxAge = int(maxAge / time.Second)
		c.Expires = time.Now().Add(maxAge)
	} else {
		c.MaxAge = -1
		c.Expires = time.Unix(0, 0)
	}
	http.SetCookie(w, c)
}

// DatabaseStore keeps the session in the sessions table. The cookie carries the
// plaintext session token; only its hash is stored.
type DatabaseStore struct {
	m *Manager
	w http.ResponseWriter
	r *http.Request

	loaded  bool
	current *models.Session
}

// Get returns the user bound to the request's session cookie, or "" when the cookie is
// absent, unknown, revoked or expired.
func (s *DatabaseStore) Get(ctx context.Context) (string, error) {
	if s.loaded {
		if s.current == nil {
			return "", nil
		}
		return s.current.UserID, nil
	}
	s.loaded = true

	cookie, err := s.r.Cookie(s.m.opts.SessionCookieName)
	if err != nil || cookie.Value == "" {
		return "", nil
	}
	sess, err := s.m.sessions.GetByTokenHash(ctx, auth.HashToken(cookie.Value))
	if errors.Is(err, repository.ErrNotFound) {
		s.m.setCookie(s.w, s.m.opts.SessionCookieName, "", 0)
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if sess.Revoked || time.Now().After(sess.ExpiresAt) {
		s.m.logger.Debug("session no longer valid", "session_id", sess.ID, "revoked", sess.Revoked)
		s.m.setCookie(s.w, s.m.opts.SessionCookieName, "", 0)
		return "", nil
	}
	s.current = sess

	go func(id string) {
		touchCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.m.sessions.UpdateLastUsed(touchCtx, id); err != nil {
			s.m.logger.Warn("failed to update session last_used", "session_id", id, "error", err)
		}
	}(sess.ID)

	return sess.UserID, nil
}

// Set replaces any current session with a fresh one bound to userID.
func (s *DatabaseStore) Set(ctx context.Context, userID string) error {
	if !s.loaded {
		if _, err := s.Get(ctx); err != nil {
			return err
		}
	}
	if s.current != nil {
		if err := s.m.sessions.Revoke(ctx, s.current.ID); err != nil {
			return err
		}
	}

	token, err := auth.GenerateToken()
	if err != nil {
		return err
	}
	now := time.Now()
	sess := &models.Session{
		ID:         bunx.NewUUIDv7(),
		UserID:     userID,
		TokenHash:  auth.HashToken(token),
		ExpiresAt:  now.Add(s.m.opts.SessionDuration),
		CreatedAt:  now,
		LastUsedAt: now,
		UserAgent:  optional(s.r.UserAgent()),
		IPAddress:  optional(clientIP(s.r)),
	}
	if err := s.m.sessions.Create(ctx, sess); err != nil {
		return err
	}

	s.loaded = true
	s.current = sess
	s.m.setCookie(s.w, s.m.opts.SessionCookieName, token, s.m.opts.SessionDuration)
	return nil
}

// Destroy revokes the current session and clears the cookie.
func (s *DatabaseStore) Destroy(ctx context.Context) error {
	if !s.loaded {
		if _, err := s.Get(ctx); err != nil {
			return err
		}
	}
	if s.current != nil {
		if err := s.m.sessions.Revoke(ctx, s.current.ID); err != nil {
			return err
		}
		s.current = nil
	}
	s.m.setCookie(s.w, s.m.opts.SessionCookieName, "", 0)
	return nil
}

// Current returns the loaded session row, if any.
func (s *DatabaseStore) Current() *models.Session {
	return s.current
}

// RememberCookie reads and writes the signed remember-me cookie.
type RememberCookie struct {
	m *Manager
	w http.ResponseWriter
	r *http.Request
}

type rememberValue struct {
	UserID string `json:"uid"`
	Token  string `json:"tok"`
}

// Get decodes the remember cookie. Tampered or expired cookies are treated as absent.
func (c *RememberCookie) Get() (string, string, bool) {
	cookie, err := c.r.Cookie(c.m.opts.RememberCookieName)
	if err != nil || cookie.Value == "" {
		return "", "", false
	}
	var v rememberValue
	if err := c.m.cookies.Decode(c.m.opts.RememberCookieName, cookie.Value, &v); err != nil {
		c.m.logger.Debug("remember cookie rejected", "error", err)
		return "", "", false
	}
	if v.UserID == "" || v.Token == "" {
		return "", "", false
	}
	return v.UserID, v.Token, true
}

// Set writes the remember cookie.
func (c *RememberCookie) Set(userID, token string, expiry time.Duration) error {
	encoded, err := c.m.cookies.Encode(c.m.opts.RememberCookieName, rememberValue{UserID: userID, Token: token})
	if err != nil {
		return fmt.Errorf("encode remember cookie: %w", err)
	}
	c.m.setCookie(c.w, c.m.opts.RememberCookieName, encoded, expiry)
	return nil
}

// Clear expires the remember cookie.
func (c *RememberCookie) Clear() {
	c.m.setCookie(c.w, c.m.opts.RememberCookieName, "", 0)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
