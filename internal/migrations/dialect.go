package migrations

import (
	"context"
	"fmt"
	"strings"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

// IsSQLite checks if the database is SQLite
func IsSQLite(db *bun.DB) bool {
	return db.Dialect().Name() == dialect.SQLite
}

// IsPostgreSQL checks if the database is PostgreSQL
func IsPostgreSQL(db *bun.DB) bool {
	return db.Dialect().Name() == dialect.PG
}

// createIndex creates an index unless it exists. A non-empty where clause makes it
// partial; both dialects accept the same syntax.
func createIndex(ctx context.Context, db *bun.DB, unique bool, name, table, where string, columns ...string) error {
	var b strings.Builder
	b.WriteString("CREATE ")
	if unique {
		b.WriteString("UNIQUE ")
	}
	fmt.Fprintf(&b, "INDEX IF NOT EXISTS %s ON %s(%s)", name, table, strings.Join(columns, ", "))
	if where != "" {
		b.WriteString(" WHERE ")
		b.WriteString(where)
	}
	if _, err := db.ExecContext(ctx, b.String()); err != nil {
		return fmt.Errorf("failed to create index %s: %w", name, err)
	}
	return nil
}

// analyze refreshes planner statistics after schema changes.
func analyze(ctx context.Context, db *bun.DB) error {
	switch {
	case IsPostgreSQL(db):
		_, err := db.ExecContext(ctx, "ANALYZE")
		return err
	case IsSQLite(db):
		_, err := db.ExecContext(ctx, "PRAGMA optimize")
		return err
	}
	return nil
}
