package driven

import (
	"context"

	"github.com/custodia-labs/knowledge-server/internal/core/domain"
)

// VectorIndex stores embeddings with metadata and answers filtered
// similarity queries. Upsert and DeleteByIDs are idempotent.
type VectorIndex interface {
	// Upsert inserts or replaces records by ID.
	Upsert(ctx context.Context, records []domain.VectorRecord) error

	// DeleteByIDs removes records. Unknown IDs are ignored.
	DeleteByIDs(ctx context.Context, ids []string) error

	// Query returns up to opts.TopK nearest records, most similar first.
	Query(ctx context.Context, vector []float32, opts QueryOptions) ([]domain.VectorMatch, error)

	// Close releases resources.
	Close() error
}

// QueryOptions configures a similarity query.
type QueryOptions struct {
	TopK   int
	Filter domain.VectorFilter
}
