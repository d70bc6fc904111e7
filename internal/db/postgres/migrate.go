package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/caselens/caselens/internal/db"
)

// MigrateOptions controls schema creation.
type MigrateOptions struct {
	Dimensions int
	// HNSW adds an approximate index. Without it every query is an exact scan.
	HNSW bool
}

// Migrate creates the vector extension and the documents table. It uses a
// plain connection because pooled connections require the extension to exist.
func Migrate(ctx context.Context, dsn string, opts MigrateOptions) error {
	if opts.Dimensions <= 0 {
		return fmt.Errorf("dimensions must be positive, got %d", opts.Dimensions)
	}

	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return classify(db.OpMigrate, err)
	}
	defer func() { _ = conn.Close(ctx) }()

	for _, stmt := range schemaStatements(opts) {
		if _, err := conn.Exec(ctx, stmt); err != nil {
			return classify(db.OpMigrate, err)
		}
	}
	return nil
}

func schemaStatements(opts MigrateOptions) []string {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS documents (
    id             BIGSERIAL PRIMARY KEY,
    title          TEXT NOT NULL,
    classification TEXT NOT NULL DEFAULT '',
    summary        TEXT NOT NULL,
    pdf_link       TEXT NOT NULL DEFAULT '',
    embedding      vector(%d)
)`, opts.Dimensions),
	}
	if opts.HNSW {
		stmts = append(stmts,
			`CREATE INDEX IF NOT EXISTS documents_embedding_hnsw ON documents USING hnsw (embedding vector_l2_ops)`)
	}
	return stmts
}
