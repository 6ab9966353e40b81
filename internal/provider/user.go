package provider

import (
	"golang.org/x/crypto/bcrypt"

	"github.com/terraconstructs/gridauth/internal/auth"
	"github.com/terraconstructs/gridauth/internal/db/models"
)

// UserWrapper adapts a stored user to auth.Authenticatable. It remembers the remember
// token hash it was loaded with so rotations can be compare-and-swapped.
type UserWrapper struct {
	User *models.User

	loadedRememberHash *string
	rememberToken      string
	rememberStaged     bool
}

var _ auth.Authenticatable = (*UserWrapper)(nil)

// WrapUser wraps a user model.
func WrapUser(user *models.User) *UserWrapper {
	w := &UserWrapper{User: user}
	if user != nil && user.RememberTokenHash != nil {
		h := *user.RememberTokenHash
		w.loadedRememberHash = &h
	}
	return w
}

// GetID implements auth.Authenticatable.
func (w *UserWrapper) GetID() string {
	if w == nil || w.User == nil {
		return ""
	}
	return w.User.ID
}

// VerifyPassword implements auth.Authenticatable using bcrypt.
func (w *UserWrapper) VerifyPassword(plain string) bool {
	if w == nil || w.User == nil || w.User.PasswordHash == nil || *w.User.PasswordHash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(*w.User.PasswordHash), []byte(plain)) == nil
}

// GetRememberMeToken implements auth.Authenticatable.
func (w *UserWrapper) GetRememberMeToken() string {
	return w.rememberToken
}

// SetRememberMeToken implements auth.Authenticatable.
func (w *UserWrapper) SetRememberMeToken(token string) {
	w.rememberToken = token
	w.rememberStaged = true
}

// Email returns the login identifier.
func (w *UserWrapper) Email() string {
	if w == nil || w.User == nil {
		return ""
	}
	return w.User.Email
}

// Name returns the display name.
func (w *UserWrapper) Name() string {
	if w == nil || w.User == nil {
		return ""
	}
	return w.User.Name
}
