// Package provider resolves users for the authenticators.
package provider

import (
	"context"
	"errors"

	"github.com/terraconstructs/gridauth/internal/auth"
)

// ErrRememberTokenConflict is returned by UpdateRememberMeToken when another request
// rotated the remember token after this request loaded the user.
var ErrRememberTokenConflict = errors.New("remember token rotated concurrently")

// Provider is the identity store contract used by the authenticators. Lookups fail with
// auth.ErrUserNotFound when the user does not exist.
type Provider interface {
	FindByID(ctx context.Context, id string) (auth.Authenticatable, error)
	// FindByUID looks a user up by its login identifier (email).
	FindByUID(ctx context.Context, uid string) (auth.Authenticatable, error)
	// FindByToken resolves a remember-me token for the given user.
	FindByToken(ctx context.Context, userID, token string) (auth.Authenticatable, error)
	// UpdateRememberMeToken persists the remember token staged on user with
	// SetRememberMeToken. An empty token clears it.
	UpdateRememberMeToken(ctx context.Context, user auth.Authenticatable) error
}

// LoginRecorder is implemented by providers that track successful credential logins.
type LoginRecorder interface {
	RecordLogin(ctx context.Context, userID string) error
}

// MissVerifier is implemented by providers that can spend a password check on an unknown
// login identifier, so a miss takes as long as a wrong password.
type MissVerifier interface {
	VerifyMissing(password string)
}
