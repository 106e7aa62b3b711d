// Package pgvector provides a vector index adapter backed by Postgres
// with the pgvector extension. Books share one table partitioned
// logically by book_id, so a "collection" is the set of rows for one
// book and dropping it is a single DELETE.
package pgvector

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgv "github.com/pgvector/pgvector-go"

	"github.com/inkwell-ai/inkwell-core/internal/core/ports/driven"
)

// Ensure Index implements the interface.
var _ driven.VectorIndex = (*Index)(nil)

// Default configuration values.
const (
	DefaultTableName  = "book_vectors"
	DefaultDimensions = 1536
	DefaultTimeout    = 30 * time.Second
)

// Config holds configuration for the pgvector index.
type Config struct {
	// ConnString is the Postgres connection string (required).
	ConnString string

	// TableName is the vectors table (default: book_vectors).
	TableName string

	// Dimensions is the embedding width the table is created with
	// (default: 1536). All books in one deployment share it.
	Dimensions int

	// Timeout bounds schema setup at startup (default: 30s).
	Timeout time.Duration
}

// Index stores and searches embeddings in Postgres.
type Index struct {
	pool       *pgxpool.Pool
	table      string
	dimensions int
}

// NewIndex connects to Postgres and ensures the extension, table and
// indexes exist.
func NewIndex(ctx context.Context, cfg Config) (*Index, error) {
	if cfg.ConnString == "" {
		return nil, fmt.Errorf("pgvector: connection string is required")
	}
	if cfg.TableName == "" {
		cfg.TableName = DefaultTableName
	}
	if cfg.Dimensions == 0 {
		cfg.Dimensions = DefaultDimensions
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	pool, err := pgxpool.New(ctx, cfg.ConnString)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	x := &Index{
		pool:       pool,
		table:      pgx.Identifier{cfg.TableName}.Sanitize(),
		dimensions: cfg.Dimensions,
	}

	setupCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	if err := x.setupSchema(setupCtx, cfg.Dimensions); err != nil {
		pool.Close()
		return nil, err
	}
	return x, nil
}

// setupSchema creates the extension, table and indexes if missing.
func (x *Index) setupSchema(ctx context.Context, dimensions int) error {
	if err := x.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}

	if _, err := x.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("create vector extension: %w", err)
	}

	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id        UUID PRIMARY KEY,
			book_id   TEXT NOT NULL,
			position  INTEGER NOT NULL,
			content   TEXT NOT NULL,
			page      INTEGER NOT NULL DEFAULT 0,
			chapter   TEXT NOT NULL DEFAULT '',
			embedding vector(%d) NOT NULL
		)`, x.table, dimensions)
	if _, err := x.pool.Exec(ctx, createTable); err != nil {
		return fmt.Errorf("create vectors table: %w", err)
	}

	createVectorIndex := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s ON %s
		USING ivfflat (embedding vector_cosine_ops)
		WITH (lists = 100)`,
		pgx.Identifier{"idx_" + DefaultTableName + "_embedding"}.Sanitize(), x.table)
	if _, err := x.pool.Exec(ctx, createVectorIndex); err != nil {
		return fmt.Errorf("create embedding index: %w", err)
	}

	createBookIndex := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s ON %s (book_id)`,
		pgx.Identifier{"idx_" + DefaultTableName + "_book"}.Sanitize(), x.table)
	if _, err := x.pool.Exec(ctx, createBookIndex); err != nil {
		return fmt.Errorf("create book index: %w", err)
	}
	return nil
}

// EnsureCollection validates the requested width against the shared
// table. The table itself is created at startup, so per-book setup is
// a no-op and trivially idempotent.
func (x *Index) EnsureCollection(_ context.Context, _ string, dimensions int) error {
	if dimensions != x.dimensions {
		return fmt.Errorf("pgvector: embedding width %d does not match table width %d",
			dimensions, x.dimensions)
	}
	return nil
}

// Upsert inserts or replaces points for the book in one transaction.
func (x *Index) Upsert(ctx context.Context, bookID string, points []driven.VectorPoint) error {
	if len(points) == 0 {
		return nil
	}

	tx, err := x.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	stmt := fmt.Sprintf(`
		INSERT INTO %s (id, book_id, position, content, page, chapter, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			position  = EXCLUDED.position,
			content   = EXCLUDED.content,
			page      = EXCLUDED.page,
			chapter   = EXCLUDED.chapter,
			embedding = EXCLUDED.embedding`, x.table)

	for _, p := range points {
		_, err := tx.Exec(ctx, stmt,
			p.SegmentID,
			bookID,
			p.Payload.Index,
			p.Payload.Text,
			p.Payload.Page,
			p.Payload.Chapter,
			pgv.NewVector(p.Vector),
		)
		if err != nil {
			return fmt.Errorf("insert point %s: %w", p.SegmentID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Search finds the k nearest neighbours for the book, ordered by
// cosine similarity descending. A book with no rows yields an empty
// result.
func (x *Index) Search(ctx context.Context, bookID string, query []float32, k int) ([]driven.VectorHit, error) {
	if k <= 0 {
		return nil, nil
	}

	stmt := fmt.Sprintf(`
		SELECT id, position, content, page, chapter, 1 - (embedding <=> $2) AS score
		FROM %s
		WHERE book_id = $1
		ORDER BY embedding <=> $2
		LIMIT $3`, x.table)

	rows, err := x.pool.Query(ctx, stmt, bookID, pgv.NewVector(query), k)
	if err != nil {
		return nil, fmt.Errorf("query vectors: %w", err)
	}
	defer rows.Close()

	var hits []driven.VectorHit
	for rows.Next() {
		var hit driven.VectorHit
		if err := rows.Scan(
			&hit.SegmentID,
			&hit.Payload.Index,
			&hit.Payload.Text,
			&hit.Payload.Page,
			&hit.Payload.Chapter,
			&hit.Score,
		); err != nil {
			return nil, fmt.Errorf("scan hit: %w", err)
		}
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate hits: %w", err)
	}
	return hits, nil
}

// DropCollection removes every point for the book. Dropping a book
// with no rows is not an error.
func (x *Index) DropCollection(ctx context.Context, bookID string) error {
	stmt := fmt.Sprintf("DELETE FROM %s WHERE book_id = $1", x.table)
	if _, err := x.pool.Exec(ctx, stmt, bookID); err != nil {
		return fmt.Errorf("delete points: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (x *Index) Close() error {
	x.pool.Close()
	return nil
}
