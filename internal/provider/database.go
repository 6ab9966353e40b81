package provider

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/crypto/bcrypt"

	"github.com/terraconstructs/gridauth/internal/auth"
	"github.com/terraconstructs/gridauth/internal/db/models"
	"github.com/terraconstructs/gridauth/internal/repository"
)

// PasswordCost is the bcrypt work factor for stored password hashes.
const PasswordCost = 12

// DatabaseProvider resolves users from the users table.
type DatabaseProvider struct {
	users  repository.UserRepository
	logger hclog.Logger

	passwordCost int
	dummyOnce    sync.Once
	dummyHash    []byte
}

var (
	_ Provider      = (*DatabaseProvider)(nil)
	_ LoginRecorder = (*DatabaseProvider)(nil)
	_ MissVerifier  = (*DatabaseProvider)(nil)
)

// NewDatabaseProvider creates a provider over a user repository.
func NewDatabaseProvider(users repository.UserRepository, logger hclog.Logger) *DatabaseProvider {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &DatabaseProvider{users: users, logger: logger.Named("provider"), passwordCost: PasswordCost}
}

// FindByID implements Provider.
func (p *DatabaseProvider) FindByID(ctx context.Context, id string) (auth.Authenticatable, error) {
	if id == "" {
		return nil, auth.ErrUserNotFound
	}
	user, err := p.users.GetByID(ctx, id)
	if err != nil {
		return nil, mapLookupError(err)
	}
	if user.DisabledAt != nil {
		return nil, auth.ErrUserNotFound
	}
	return WrapUser(user), nil
}

// FindByUID implements Provider.
func (p *DatabaseProvider) FindByUID(ctx context.Context, uid string) (auth.Authenticatable, error) {
	if uid == "" {
		return nil, auth.ErrUserNotFound
	}
	user, err := p.users.GetByEmail(ctx, uid)
	if err != nil {
		return nil, mapLookupError(err)
	}
	if user.DisabledAt != nil {
		return nil, auth.ErrUserNotFound
	}
	return WrapUser(user), nil
}

// FindByToken implements Provider. The token is compared against the stored hash in
// constant time.
func (p *DatabaseProvider) FindByToken(ctx context.Context, userID, token string) (auth.Authenticatable, error) {
	if userID == "" || token == "" {
		return nil, auth.ErrUserNotFound
	}
	found, err := p.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	w := found.(*UserWrapper)
	if w.User.RememberTokenHash == nil || !auth.TokenMatchesHash(token, *w.User.RememberTokenHash) {
		return nil, auth.ErrUserNotFound
	}
	return w, nil
}

// UpdateRememberMeToken implements Provider.
func (p *DatabaseProvider) UpdateRememberMeToken(ctx context.Context, user auth.Authenticatable) error {
	w, ok := user.(*UserWrapper)
	if !ok || w.User == nil {
		return fmt.Errorf("%w: unsupported user type %T", auth.ErrConfiguration, user)
	}
	if !w.rememberStaged {
		return nil
	}

	var next *string
	if w.rememberToken != "" {
		h := auth.HashToken(w.rememberToken)
		next = &h
	}

	err := p.users.CompareAndSwapRememberToken(ctx, w.User.ID, w.loadedRememberHash, next)
	if errors.Is(err, repository.ErrStaleRememberToken) {
		p.logger.Warn("remember token rotation lost race", "user_id", w.User.ID)
		return ErrRememberTokenConflict
	}
	if err != nil {
		return fmt.Errorf("persist remember token: %w", err)
	}

	w.User.RememberTokenHash = next
	w.loadedRememberHash = next
	w.rememberStaged = false
	return nil
}

// RecordLogin implements LoginRecorder.
func (p *DatabaseProvider) RecordLogin(ctx context.Context, userID string) error {
	return p.users.UpdateLastLogin(ctx, userID)
}

// Create stores a new user with an already hashed password.
func (p *DatabaseProvider) Create(ctx context.Context, email, name, passwordHash string) (*UserWrapper, error) {
	user := &models.User{Email: email, Name: name, PasswordHash: &passwordHash}
	if err := p.users.Create(ctx, user); err != nil {
		return nil, err
	}
	return WrapUser(user), nil
}

func mapLookupError(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return auth.ErrUserNotFound
	}
	return err
}

// VerifyMissing implements MissVerifier by comparing password against a hash of a fixed
// value, generated on first use at PasswordCost.
func (p *DatabaseProvider) VerifyMissing(password string) {
	p.dummyOnce.Do(func() {
		hash, err := bcrypt.GenerateFromPassword([]byte("gridauth-missing-user"), p.passwordCost)
		if err != nil {
			p.logger.Warn("failed to prepare missing user hash", "error", err)
			return
		}
		p.dummyHash = hash
	})
	if p.dummyHash != nil {
		_ = bcrypt.CompareHashAndPassword(p.dummyHash, []byte(password))
	}
}
