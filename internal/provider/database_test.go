package provider

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun/migrate"
	"golang.org/x/crypto/bcrypt"

	"github.com/terraconstructs/gridauth/internal/auth"
	"github.com/terraconstructs/gridauth/internal/db/bunx"
	"github.com/terraconstructs/gridauth/internal/migrations"
	"github.com/terraconstructs/gridauth/internal/repository"
)

func setupProvider(t *testing.T) *DatabaseProvider {
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

	return NewDatabaseProvider(repository.NewBunUserRepository(db), nil)
}

func createUser(t *testing.T, p *DatabaseProvider, email, password string) *UserWrapper {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	u, err := p.Create(context.Background(), email, "Test", string(hash))
	require.NoError(t, err)
	return u
}

func TestDatabaseProvider_Lookups(t *testing.T) {
	p := setupProvider(t)
	ctx := context.Background()
	created := createUser(t, p, "alice@example.com", "s3cret")

	t.Run("by id", func(t *testing.T) {
		u, err := p.FindByID(ctx, created.GetID())
		require.NoError(t, err)
		assert.Equal(t, created.GetID(), u.GetID())
		assert.True(t, u.VerifyPassword("s3cret"))
		assert.False(t, u.VerifyPassword("wrong"))
	})

	t.Run("by uid", func(t *testing.T) {
		u, err := p.FindByUID(ctx, "alice@example.com")
		require.NoError(t, err)
		assert.Equal(t, created.GetID(), u.GetID())
	})

	t.Run("not found", func(t *testing.T) {
		_, err := p.FindByID(ctx, "00000000-0000-7000-8000-000000000000")
		assert.ErrorIs(t, err, auth.ErrUserNotFound)

		_, err = p.FindByUID(ctx, "nobody@example.com")
		assert.ErrorIs(t, err, auth.ErrUserNotFound)

		_, err = p.FindByID(ctx, "")
		assert.ErrorIs(t, err, auth.ErrUserNotFound)
	})
}

func TestDatabaseProvider_RememberToken(t *testing.T) {
	p := setupProvider(t)
	ctx := context.Background()
	created := createUser(t, p, "bob@example.com", "pw")

	loaded, err := p.FindByID(ctx, created.GetID())
	require.NoError(t, err)

	loaded.SetRememberMeToken("first-token")
	require.NoError(t, p.UpdateRememberMeToken(ctx, loaded))

	t.Run("find by token", func(t *testing.T) {
		u, err := p.FindByToken(ctx, created.GetID(), "first-token")
		require.NoError(t, err)
		assert.Equal(t, created.GetID(), u.GetID())

		_, err = p.FindByToken(ctx, created.GetID(), "other-token")
		assert.ErrorIs(t, err, auth.ErrUserNotFound)
	})

	t.Run("concurrent rotation has a single winner", func(t *testing.T) {
		a, err := p.FindByToken(ctx, created.GetID(), "first-token")
		require.NoError(t, err)
		b, err := p.FindByToken(ctx, created.GetID(), "first-token")
		require.NoError(t, err)

		a.SetRememberMeToken("token-a")
		b.SetRememberMeToken("token-b")

		var wg sync.WaitGroup
		errs := make([]error, 2)
		for i, u := range []auth.Authenticatable{a, b} {
			wg.Add(1)
			go func(i int, u auth.Authenticatable) {
				defer wg.Done()
				errs[i] = p.UpdateRememberMeToken(ctx, u)
			}(i, u)
		}
		wg.Wait()

		var wins, conflicts int
		for _, err := range errs {
			switch {
			case err == nil:
				wins++
			case assert.ErrorIs(t, err, ErrRememberTokenConflict):
				conflicts++
			}
		}
		assert.Equal(t, 1, wins)
		assert.Equal(t, 1, conflicts)

		_, err = p.FindByToken(ctx, created.GetID(), "first-token")
		assert.ErrorIs(t, err, auth.ErrUserNotFound)
	})

	t.Run("clear", func(t *testing.T) {
		u, err := p.FindByID(ctx, created.GetID())
		require.NoError(t, err)
		u.SetRememberMeToken("")
		require.NoError(t, p.UpdateRememberMeToken(ctx, u))

		_, err = p.FindByToken(ctx, created.GetID(), "token-a")
		assert.ErrorIs(t, err, auth.ErrUserNotFound)
		_, err = p.FindByToken(ctx, created.GetID(), "token-b")
		assert.ErrorIs(t, err, auth.ErrUserNotFound)
	})
}

func TestDatabaseProvider_RecordLogin(t *testing.T) {
	p := setupProvider(t)
	ctx := context.Background()
	created := createUser(t, p, "alice@example.com", "s3cret")
	assert.Nil(t, created.User.LastLoginAt)

	require.NoError(t, p.RecordLogin(ctx, created.GetID()))

	u, err := p.FindByID(ctx, created.GetID())
	require.NoError(t, err)
	assert.NotNil(t, u.(*UserWrapper).User.LastLoginAt)
}

func TestDatabaseProvider_VerifyMissing(t *testing.T) {
	p := setupProvider(t)
	p.passwordCost = bcrypt.MinCost
	assert.Equal(t, PasswordCost, NewDatabaseProvider(nil, nil).passwordCost)

	p.VerifyMissing("guess")
	require.NotNil(t, p.dummyHash)
	cost, err := bcrypt.Cost(p.dummyHash)
	require.NoError(t, err)
	assert.Equal(t, bcrypt.MinCost, cost)

	first := p.dummyHash
	p.VerifyMissing("another guess")
	assert.Equal(t, first, p.dummyHash)
}
