package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terraconstructs/gridauth/internal/auth"
	"github.com/terraconstructs/gridauth/internal/db/models"
)

func TestBunAPITokenRepository_SaveAndFind(t *testing.T) {
	db := setupTestDB(t)
	users := NewBunUserRepository(db)
	repo := NewBunAPITokenRepository(db)
	ctx := context.Background()

	user := createTestUser(t, users, "tokens@example.com")
	plain, err := auth.GenerateToken()
	require.NoError(t, err)

	record := &models.APIToken{
		UserID:      user.ID,
		Name:        "ci",
		Type:        "api",
		TokenHash:   auth.HashToken(plain),
		Group:       "api_tokens",
		Environment: "live",
		Metadata:    models.TokenMetadata{"scope": "read"},
	}
	require.NoError(t, repo.Save(ctx, record))
	assert.NotEmpty(t, record.ID)

	scope := TokenFilter{UserID: user.ID, Group: "api_tokens", Environment: "live", Type: "api"}

	t.Run("exact match", func(t *testing.T) {
		got, err := repo.FindByToken(ctx, plain, scope)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, record.ID, got.ID)
		assert.Equal(t, "read", got.Metadata["scope"])
	})

	t.Run("wrong plaintext", func(t *testing.T) {
		got, err := repo.FindByToken(ctx, plain+"x", scope)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("wrong scope", func(t *testing.T) {
		for _, f := range []TokenFilter{
			{UserID: user.ID, Group: "other", Environment: "live", Type: "api"},
			{UserID: user.ID, Group: "api_tokens", Environment: "test", Type: "api"},
			{UserID: user.ID, Group: "api_tokens", Environment: "live", Type: "pat"},
			{UserID: "00000000-0000-7000-8000-000000000000", Group: "api_tokens"},
		} {
			got, err := repo.FindByToken(ctx, plain, f)
			require.NoError(t, err)
			assert.Nil(t, got, "%+v", f)
		}
	})

	t.Run("last used", func(t *testing.T) {
		require.NoError(t, repo.UpdateLastUsed(ctx, record.ID))
		got, err := repo.FindByToken(ctx, plain, scope)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.NotNil(t, got.LastUsedAt)
	})

	t.Run("missing hash rejected", func(t *testing.T) {
		err := repo.Save(ctx, &models.APIToken{UserID: user.ID, Type: "api", Group: "g", Environment: "live"})
		assert.Error(t, err)
	})
}

func TestBunAPITokenRepository_ListAndDelete(t *testing.T) {
	db := setupTestDB(t)
	users := NewBunUserRepository(db)
	repo := NewBunAPITokenRepository(db)
	ctx := context.Background()

	owner := createTestUser(t, users, "owner@example.com")
	other := createTestUser(t, users, "other@example.com")

	var ids []string
	for i := 0; i < 3; i++ {
		plain, err := auth.GenerateToken()
		require.NoError(t, err)
		rec := &models.APIToken{UserID: owner.ID, Type: "api", TokenHash: auth.HashToken(plain), Group: "api_tokens", Environment: "live"}
		require.NoError(t, repo.Save(ctx, rec))
		ids = append(ids, rec.ID)
	}
	plain, err := auth.GenerateToken()
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, &models.APIToken{UserID: other.ID, Type: "api", TokenHash: auth.HashToken(plain), Group: "api_tokens", Environment: "live"}))

	listed, err := repo.List(ctx, TokenFilter{UserID: owner.ID, Group: "api_tokens"})
	require.NoError(t, err)
	require.Len(t, listed, 3)
	assert.Equal(t, ids[2], listed[0].ID)

	empty, err := repo.List(ctx, TokenFilter{UserID: owner.ID, Group: "nope"})
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	t.Run("delete own", func(t *testing.T) {
		require.NoError(t, repo.Delete(ctx, ids[0], owner.ID))
		listed, err := repo.List(ctx, TokenFilter{UserID: owner.ID})
		require.NoError(t, err)
		assert.Len(t, listed, 2)
	})

	t.Run("delete foreign", func(t *testing.T) {
		err := repo.Delete(ctx, ids[1], other.ID)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}
