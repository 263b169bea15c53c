// Package pgvector implements the vector index port on PostgreSQL with the
// pgvector extension.
package pgvector

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/custodia-labs/knowledge-server/internal/core/domain"
	"github.com/custodia-labs/knowledge-server/internal/core/ports/driven"
)

// DefaultTable holds the embeddings.
const DefaultTable = "knowledge_vectors"

var _ driven.VectorIndex = (*Index)(nil)

var tableName = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// pool is the subset of *pgxpool.Pool the index uses.
type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	Close()
}

// Index is a pgvector-backed vector index using cosine distance.
type Index struct {
	pool  pool
	table string
	dims  int
}

// New connects to connString, verifies the connection and ensures the
// schema exists for vectors of dims dimensions.
func New(ctx context.Context, connString string, dims int, table string) (*Index, error) {
	if dims <= 0 {
		return nil, fmt.Errorf("invalid vector dimensions %d", dims)
	}
	if table == "" {
		table = DefaultTable
	}
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}

	pgPool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pgPool.Ping(ctx); err != nil {
		pgPool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	idx := &Index{pool: pgPool, table: table, dims: dims}
	if err := idx.ensureSchema(ctx); err != nil {
		pgPool.Close()
		return nil, err
	}
	return idx, nil
}

func (i *Index) ensureSchema(ctx context.Context) error {
	stmts := []string{
		"CREATE EXTENSION IF NOT EXISTS vector",
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id         TEXT PRIMARY KEY,
			embedding  vector(%d) NOT NULL,
			metadata   JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, i.table, i.dims),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_embedding_idx ON %s USING hnsw (embedding vector_cosine_ops)", i.table, i.table),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_metadata_idx ON %s USING gin (metadata)", i.table, i.table),
	}
	for _, stmt := range stmts {
		if _, err := i.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", err)
		}
	}
	return nil
}

// Upsert inserts or replaces records by ID in one batch.
func (i *Index) Upsert(ctx context.Context, records []domain.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	query := fmt.Sprintf(`
		INSERT INTO %s (id, embedding, metadata, updated_at)
		VALUES ($1, $2, $3::jsonb, now())
		ON CONFLICT (id) DO UPDATE SET
			embedding = excluded.embedding,
			metadata = excluded.metadata,
			updated_at = excluded.updated_at`, i.table)

	for _, rec := range records {
		if len(rec.Values) != i.dims {
			return fmt.Errorf("vector %s has %d dimensions, index expects %d", rec.ID, len(rec.Values), i.dims)
		}
		md, err := json.Marshal(rec.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata for %s: %w", rec.ID, err)
		}
		batch.Queue(query, rec.ID, pgvector.NewVector(rec.Values), string(md))
	}

	if err := i.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to upsert vectors: %w", err)
	}
	return nil
}

// DeleteByIDs removes records. Unknown IDs are ignored.
func (i *Index) DeleteByIDs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := i.pool.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ANY($1)", i.table), ids); err != nil {
		return fmt.Errorf("failed to delete vectors: %w", err)
	}
	return nil
}

// Query returns up to opts.TopK nearest records by cosine similarity.
func (i *Index) Query(ctx context.Context, vector []float32, opts driven.QueryOptions) ([]domain.VectorMatch, error) {
	if len(vector) != i.dims {
		return nil, fmt.Errorf("query vector has %d dimensions, index expects %d", len(vector), i.dims)
	}
	topK := opts.TopK
	if topK <= 0 {
		topK = domain.DefaultTopK
	}

	where, args := buildFilter(opts.Filter, 2)
	args = append([]any{pgvector.NewVector(vector)}, args...)
	args = append(args, topK)

	query := fmt.Sprintf(`
		SELECT id, 1 - (embedding <=> $1) AS score, metadata
		FROM %s
		%s
		ORDER BY embedding <=> $1
		LIMIT $%d`, i.table, where, len(args))

	rows, err := i.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query vectors: %w", err)
	}
	defer rows.Close()

	matches := make([]domain.VectorMatch, 0, topK)
	for rows.Next() {
		var (
			m   domain.VectorMatch
			raw []byte
		)
		if err := rows.Scan(&m.ID, &m.Score, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan vector match: %w", err)
		}
		if err := json.Unmarshal(raw, &m.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata for %s: %w", m.ID, err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read vector matches: %w", err)
	}
	return matches, nil
}

// Close releases the connection pool.
func (i *Index) Close() error {
	i.pool.Close()
	return nil
}

// buildFilter renders f as a WHERE clause over the JSONB metadata.
// Placeholders start at $next. Tags match when any requested tag is in
// the comma-joined tag list.
func buildFilter(f domain.VectorFilter, next int) (string, []any) {
	if f.IsEmpty() {
		return "", nil
	}

	var (
		clauses []string
		args    []any
	)
	eq := func(field, value string) {
		if value == "" {
			return
		}
		clauses = append(clauses, fmt.Sprintf("metadata->>'%s' = $%d", field, next))
		args = append(args, value)
		next++
	}
	eq("contentType", f.ContentType)
	eq("group", f.Group)
	eq("release", f.Release)
	eq("status", f.Status)

	if len(f.Tags) > 0 {
		clauses = append(clauses, fmt.Sprintf(
			"string_to_array(metadata->>'tags', '%s') && $%d::text[]", domain.TagSeparator, next))
		args = append(args, f.Tags)
	}

	return "WHERE " + strings.Join(clauses, " AND "), args
}
