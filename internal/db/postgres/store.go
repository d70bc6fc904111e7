// Package postgres implements the vector store over Postgres with the pgvector extension.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/caselens/caselens/internal/db"
	"github.com/caselens/caselens/internal/domain"
	domdoc "github.com/caselens/caselens/internal/domain/document"
	"github.com/caselens/caselens/internal/metrics"
)

const backend = "postgres"

const (
	queryKNN = `SELECT id, title, COALESCE(classification, ''), summary, COALESCE(pdf_link, ''),
       embedding <-> $1 AS distance
FROM documents
WHERE embedding IS NOT NULL
ORDER BY distance ASC, id ASC
LIMIT $2`

	queryInsert = `INSERT INTO documents (title, classification, summary, pdf_link, embedding)
VALUES ($1, $2, $3, $4, $5)
RETURNING id`

	queryUpdateSummary = `UPDATE documents SET summary = $2, embedding = $3 WHERE id = $1`

	queryList = `SELECT id, title, COALESCE(classification, ''), summary, COALESCE(pdf_link, '')
FROM documents
ORDER BY id ASC`

	queryCount = `SELECT count(*) FROM documents`
)

// pool is the subset of *pgxpool.Pool the store uses.
type pool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Ping(ctx context.Context) error
	Close()
}

// Config holds connection and query settings.
type Config struct {
	DSN          string
	MaxConns     int32
	Dimensions   int
	QueryTimeout time.Duration
}

// Store is a pgvector-backed vector store. Connection pooling and
// multiplexing are delegated to pgxpool.
type Store struct {
	pool         pool
	dim          int
	queryTimeout time.Duration
}

// NewStore opens a connection pool. The vector extension must already exist
// (see Migrate) because every new connection registers the pgvector types.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("dsn is required")
	}
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive, got %d", cfg.Dimensions)
	}

	pcfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = cfg.MaxConns
	}
	pcfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	p, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	return newStoreWithPool(p, cfg.Dimensions, cfg.QueryTimeout), nil
}

func newStoreWithPool(p pool, dim int, queryTimeout time.Duration) *Store {
	return &Store{pool: p, dim: dim, queryTimeout: queryTimeout}
}

// Dimensions returns the fixed vector length of the documents table.
func (s *Store) Dimensions() int { return s.dim }

// Query runs an exact nearest-neighbour scan ordered by L2 distance, ties by id.
// Arguments are validated before any round trip.
func (s *Store) Query(ctx context.Context, vector []float32, k int) ([]domdoc.Match, error) {
	if k < 1 {
		return nil, fmt.Errorf("%w: k must be >= 1, got %d", domain.ErrInvalidArgument, k)
	}
	if len(vector) != s.dim {
		return nil, domain.DimensionMismatch(s.dim, len(vector))
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	matches, err := s.queryKNN(ctx, vector, k)
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.VectorQueryDuration.WithLabelValues(backend, status).Observe(time.Since(start).Seconds())
	return matches, err
}

func (s *Store) queryKNN(ctx context.Context, vector []float32, k int) ([]domdoc.Match, error) {
	rows, err := s.pool.Query(ctx, queryKNN, pgvector.NewVector(vector), k)
	if err != nil {
		return nil, classify(db.OpKNN, err)
	}
	defer rows.Close()

	matches := make([]domdoc.Match, 0, k)
	for rows.Next() {
		var (
			id                                   int64
			title, classification, summary, link string
			distance                             float64
		)
		if err := rows.Scan(&id, &title, &classification, &summary, &link, &distance); err != nil {
			return nil, classify(db.OpKNN, err)
		}
		matches = append(matches, domdoc.Match{
			Document: domdoc.Reconstruct(id, title, classification, summary, link, nil),
			Distance: distance,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, classify(db.OpKNN, err)
	}
	return matches, nil
}

// Insert stores doc and returns it with the assigned id.
func (s *Store) Insert(ctx context.Context, doc domdoc.Document) (domdoc.Document, error) {
	if n := len(doc.Embedding()); n != s.dim {
		return domdoc.Document{}, domain.DimensionMismatch(s.dim, n)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var id int64
	err := s.pool.QueryRow(ctx, queryInsert,
		doc.Title(), doc.Classification(), doc.Summary(), doc.PDFLink(),
		pgvector.NewVector(doc.Embedding()),
	).Scan(&id)
	if err != nil {
		return domdoc.Document{}, classify(db.OpInsert, err)
	}
	return doc.WithID(id), nil
}

// UpdateSummary replaces summary and embedding in one statement, so the
// stored embedding never describes a stale summary.
func (s *Store) UpdateSummary(ctx context.Context, id int64, summary string, embedding []float32) error {
	if len(embedding) != s.dim {
		return domain.DimensionMismatch(s.dim, len(embedding))
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tag, err := s.pool.Exec(ctx, queryUpdateSummary, id, summary, pgvector.NewVector(embedding))
	if err != nil {
		return classify(db.OpUpdate, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: id %d", domain.ErrDocumentNotFound, id)
	}
	return nil
}

// List returns every stored document ordered by id, without embeddings.
func (s *Store) List(ctx context.Context) ([]domdoc.Document, error) {
	rows, err := s.pool.Query(ctx, queryList)
	if err != nil {
		return nil, classify(db.OpList, err)
	}
	defer rows.Close()

	docs := make([]domdoc.Document, 0)
	for rows.Next() {
		var (
			id                                   int64
			title, classification, summary, link string
		)
		if err := rows.Scan(&id, &title, &classification, &summary, &link); err != nil {
			return nil, classify(db.OpList, err)
		}
		docs = append(docs, domdoc.Reconstruct(id, title, classification, summary, link, nil))
	}
	if err := rows.Err(); err != nil {
		return nil, classify(db.OpList, err)
	}
	return docs, nil
}

// Count returns the number of stored documents.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, queryCount).Scan(&n); err != nil {
		return 0, classify(db.OpCount, err)
	}
	return n, nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return classify(db.OpPing, err)
	}
	return nil
}

// Close releases all pooled connections.
func (s *Store) Close() {
	s.pool.Close()
}

// WaitForReady polls Ping until Postgres responds or timeout expires.
func (s *Store) WaitForReady(ctx context.Context, timeout time.Duration) error {
	if err := db.WaitForReady(ctx, s, timeout); err != nil {
		return fmt.Errorf("timeout waiting for database: %w", err)
	}
	return nil
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.queryTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.queryTimeout)
}

// classify maps driver errors onto the domain taxonomy. Data exceptions
// (SQLSTATE class 22) mean the server rejected a parameter; everything else
// is treated as the store being unavailable.
func classify(op string, err error) error {
	wrapped := &db.Error{Op: op, Err: err}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case strings.Contains(pgErr.Message, "different vector dimensions"),
			strings.Contains(pgErr.Message, "expected") && strings.Contains(pgErr.Message, "dimensions"):
			return fmt.Errorf("%w: %w", domain.ErrDimensionMismatch, wrapped)
		case strings.HasPrefix(pgErr.Code, "22"):
			return fmt.Errorf("%w: %w", domain.ErrInvalidArgument, wrapped)
		}
	}
	return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, wrapped)
}
