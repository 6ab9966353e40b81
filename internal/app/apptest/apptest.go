// Package apptest builds a fully wired authentication stack over in-memory SQLite for tests.
package apptest

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
	"golang.org/x/crypto/bcrypt"

	"github.com/terraconstructs/gridauth/internal/app"
	"github.com/terraconstructs/gridauth/internal/config"
	"github.com/terraconstructs/gridauth/internal/db/bunx"
	"github.com/terraconstructs/gridauth/internal/db/models"
	"github.com/terraconstructs/gridauth/internal/migrations"
)

// Env is a wired stack plus its database.
type Env struct {
	*app.App
	DB     *bun.DB
	Config config.AuthConfig
}

// AuthConfig returns a valid configuration with random keys.
func AuthConfig(t testing.TB) config.AuthConfig {
	t.Helper()
	return config.AuthConfig{
		Provider:           "database",
		Group:              "api_tokens",
		Environment:        "test",
		TokenType:          "api",
		EncryptionKey:      randomKey(t, 32),
		SessionDuration:    time.Hour,
		RememberDuration:   24 * time.Hour,
		SessionCookieName:  "gridauth.session",
		RememberCookieName: "gridauth.remember",
		CookieHashKey:      randomKey(t, 32),
		CookieBlockKey:     randomKey(t, 32),
		SecureCookies:      false,
	}
}

// New opens an in-memory database, applies migrations and wires the stack. The test is
// skipped when SQLite cannot be opened.
func New(t testing.TB) *Env {
	t.Helper()
	return NewWithConfig(t, AuthConfig(t))
}

// NewWithConfig is New with an explicit configuration.
func NewWithConfig(t testing.TB, cfg config.AuthConfig) *Env {
	t.Helper()

	ctx := context.Background()
	db, err := bunx.NewDB(ctx, ":memory:", bunx.Options{})
	if err != nil {
		t.Skipf("sqlite not available: %v", err)
	}
	t.Cleanup(func() { _ = bunx.Close(db) })

	migrator := migrate.NewMigrator(db, migrations.Migrations)
	require.NoError(t, migrator.Init(ctx))
	_, err = migrator.Migrate(ctx)
	require.NoError(t, err)

	a, err := app.New(ctx, db, cfg, nil, app.Options{})
	require.NoError(t, err)

	return &Env{App: a, DB: db, Config: cfg}
}

// CreateUser inserts a user with a bcrypt hashed password.
func (e *Env) CreateUser(t testing.TB, email, password string) *models.User {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	h := string(hash)
	user := &models.User{Email: email, Name: email, PasswordHash: &h}
	require.NoError(t, e.Users.Create(context.Background(), user))
	return user
}

func randomKey(t testing.TB, n int) string {
	t.Helper()
	b := make([]byte, n)
	_, err := rand.Read(b)
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(b)
}
