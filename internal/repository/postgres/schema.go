package postgres

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

// SchemaSQL renders the schema for a table prefix.
func SchemaSQL(prefix string) string {
	return strings.ReplaceAll(schemaSQL, "{{prefix}}", prefix)
}

// EnsureSchema creates any missing tables and indexes. It is idempotent.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool, prefix string) error {
	if _, err := pool.Exec(ctx, SchemaSQL(prefix)); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
