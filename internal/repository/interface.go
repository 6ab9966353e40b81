package repository

import (
	"context"
	"errors"

	"github.com/terraconstructs/gridauth/internal/db/models"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("not found")

	// ErrStaleRememberToken is returned when a remember token compare-and-swap loses a race.
	ErrStaleRememberToken = errors.New("remember token changed concurrently")
)

// UserRepository persists users.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	// CompareAndSwapRememberToken replaces the stored remember token hash only if it still
	// equals expected (nil matches NULL). Returns ErrStaleRememberToken otherwise.
	CompareAndSwapRememberToken(ctx context.Context, userID string, expected, next *string) error
	UpdateLastLogin(ctx context.Context, id string) error
	List(ctx context.Context) ([]models.User, error)
}

// SessionRepository persists browser sessions.
type SessionRepository interface {
	Create(ctx context.Context, session *models.Session) error
	GetByTokenHash(ctx context.Context, tokenHash string) (*models.Session, error)
	UpdateLastUsed(ctx context.Context, id string) error
	Revoke(ctx context.Context, id string) error
	RevokeByUserID(ctx context.Context, userID string) error
	DeleteExpired(ctx context.Context) (int64, error)
}

// TokenFilter scopes API token lookups.
type TokenFilter struct {
	UserID      string
	Group       string
	Environment string
	Type        string
}

// TokenStore persists API token records.
type TokenStore interface {
	// Save persists a record. The record must be stored before its wire token is handed out.
	Save(ctx context.Context, token *models.APIToken) error
	// FindByToken returns the record matching the plaintext token and filter, or (nil, nil).
	FindByToken(ctx context.Context, plainToken string, filter TokenFilter) (*models.APIToken, error)
	// List returns the records matching filter, newest first.
	List(ctx context.Context, filter TokenFilter) ([]models.APIToken, error)
	UpdateLastUsed(ctx context.Context, id string) error
	Delete(ctx context.Context, id, userID string) error
}
