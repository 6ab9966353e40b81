package migrations

import (
	"context"
	"fmt"

	"github.com/terraconstructs/gridauth/internal/db/models"
	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(up_20261001000001, down_20261001000001)
}

// up_20261001000001 creates the users, api_tokens and sessions tables
func up_20261001000001(ctx context.Context, db *bun.DB) error {
	fmt.Print(" [up] creating users table...")
	_, err := db.NewCreateTable().
		Model((*models.User)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create users table: %w", err)
	}
	if err := createIndex(ctx, db, true, "idx_users_email", "users", "", "email"); err != nil {
		return err
	}
	if err := createIndex(ctx, db, false, "idx_users_remember_token", "users", "remember_token_hash IS NOT NULL", "remember_token_hash"); err != nil {
		return err
	}
	fmt.Println(" OK")

	fmt.Print(" [up] creating api_tokens table...")
	_, err = db.NewCreateTable().
		Model((*models.APIToken)(nil)).
		IfNotExists().
		ForeignKey(`("user_id") REFERENCES "users" ("id") ON DELETE CASCADE`).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create api_tokens table: %w", err)
	}
	if err := createIndex(ctx, db, false, "idx_api_tokens_user_group", "api_tokens", "", "user_id", "token_group"); err != nil {
		return err
	}
	fmt.Println(" OK")

	fmt.Print(" [up] creating sessions table...")
	_, err = db.NewCreateTable().
		Model((*models.Session)(nil)).
		IfNotExists().
		ForeignKey(`("user_id") REFERENCES "users" ("id") ON DELETE CASCADE`).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create sessions table: %w", err)
	}
	if err := createIndex(ctx, db, false, "idx_sessions_user_id", "sessions", "", "user_id"); err != nil {
		return err
	}
	if err := createIndex(ctx, db, false, "idx_sessions_expires_at", "sessions", "", "expires_at"); err != nil {
		return err
	}
	fmt.Println(" OK")

	return analyze(ctx, db)
}

// down_20261001000001 drops the auth tables in dependency order
func down_20261001000001(ctx context.Context, db *bun.DB) error {
	for _, model := range []any{
		(*models.Session)(nil),
		(*models.APIToken)(nil),
		(*models.User)(nil),
	} {
		if _, err := db.NewDropTable().Model(model).IfExists().Exec(ctx); err != nil {
			return fmt.Errorf("failed to drop table: %w", err)
		}
	}
	fmt.Println(" [down] dropped auth tables")
	return nil
}
