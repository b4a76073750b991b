package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EnsureSchema creates the documents table and its two listing indexes if
// they don't exist. It is safe to run on every start.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool, tables *TableNames) error {
	if _, err := pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS "uuid-ossp"`); err != nil {
		return fmt.Errorf("enable uuid-ossp: %w", err)
	}

	createDocuments := `
		CREATE TABLE IF NOT EXISTS ` + tables.Documents + ` (
			id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
			title TEXT NOT NULL,
			owner_id TEXT NOT NULL,
			parent_id UUID REFERENCES ` + tables.Documents + `(id) ON DELETE SET NULL,
			content TEXT,
			cover_image_ref TEXT,
			icon_glyph TEXT,
			is_archived BOOLEAN NOT NULL DEFAULT FALSE,
			is_published BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT clock_timestamp(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT clock_timestamp()
		)
	`
	if _, err := pool.Exec(ctx, createDocuments); err != nil {
		return fmt.Errorf("create %s: %w", tables.Documents, err)
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_` + tables.Prefix + `documents_by_owner ON ` + tables.Documents + `(owner_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_` + tables.Prefix + `documents_by_owner_parent ON ` + tables.Documents + `(owner_id, parent_id, created_at DESC)`,
	}

	for _, indexSQL := range indexes {
		if _, err := pool.Exec(ctx, indexSQL); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}

	return nil
}

// DropSchema drops every table this service owns
func DropSchema(ctx context.Context, pool *pgxpool.Pool, tables *TableNames) error {
	if _, err := pool.Exec(ctx, "DROP TABLE IF EXISTS "+tables.Documents+" CASCADE"); err != nil {
		return fmt.Errorf("drop %s: %w", tables.Documents, err)
	}
	return nil
}
