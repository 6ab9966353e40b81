package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/terraconstructs/gridauth/internal/auth"
	"github.com/terraconstructs/gridauth/internal/db/bunx"
	"github.com/terraconstructs/gridauth/internal/db/models"
	"github.com/uptrace/bun"
)

// BunAPITokenRepository implements TokenStore using Bun ORM.
// Tokens are looked up by the SHA256 hash of their plaintext.
type BunAPITokenRepository struct {
	db *bun.DB
}

// NewBunAPITokenRepository creates a new Bun-based API token repository
func NewBunAPITokenRepository(db *bun.DB) *BunAPITokenRepository {
	return &BunAPITokenRepository{db: db}
}

// Save inserts a new token record
func (r *BunAPITokenRepository) Save(ctx context.Context, token *models.APIToken) error {
	if token.TokenHash == "" {
		return fmt.Errorf("save api token: missing token hash")
	}
	if token.ID == "" {
		token.ID = bunx.NewUUIDv7()
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now()
	}
	_, err := r.db.NewInsert().
		Model(token).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("save api token: %w", err)
	}
	return nil
}

// FindByToken looks up a token by plaintext within the filter scope.
func (r *BunAPITokenRepository) FindByToken(ctx context.Context, plainToken string, filter TokenFilter) (*models.APIToken, error) {
	token := new(models.APIToken)
	q := r.db.NewSelect().
		Model(token).
		Where("token_hash = ?", auth.HashToken(plainToken))
	q = applyTokenFilter(q, filter)

	if err := q.Limit(1).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find api token: %w", err)
	}
	return token, nil
}

// List retrieves tokens matching the filter, newest first
func (r *BunAPITokenRepository) List(ctx context.Context, filter TokenFilter) ([]models.APIToken, error) {
	tokens := []models.APIToken{}
	q := r.db.NewSelect().Model(&tokens)
	q = applyTokenFilter(q, filter)

	if err := q.Order("created_at DESC").Order("id DESC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("list api tokens: %w", err)
	}
	return tokens, nil
}

// UpdateLastUsed updates the last_used_at timestamp for a token
func (r *BunAPITokenRepository) UpdateLastUsed(ctx context.Context, id string) error {
	_, err := r.db.NewUpdate().
		Model((*models.APIToken)(nil)).
		Set("last_used_at = ?", time.Now()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update api token last used: %w", err)
	}
	return nil
}

// Delete removes a token owned by userID
func (r *BunAPITokenRepository) Delete(ctx context.Context, id, userID string) error {
	result, err := r.db.NewDelete().
		Model((*models.APIToken)(nil)).
		Where("id = ?", id).
		Where("user_id = ?", userID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete api token: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("api token %s: %w", id, ErrNotFound)
	}
	return nil
}

func applyTokenFilter(q *bun.SelectQuery, filter TokenFilter) *bun.SelectQuery {
	if filter.UserID != "" {
		q = q.Where("user_id = ?", filter.UserID)
	}
	if filter.Group != "" {
		q = q.Where("token_group = ?", filter.Group)
	}
	if filter.Environment != "" {
		q = q.Where("environment = ?", filter.Environment)
	}
	if filter.Type != "" {
		q = q.Where("type = ?", filter.Type)
	}
	return q
}
