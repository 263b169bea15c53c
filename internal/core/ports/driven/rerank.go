package driven

import (
	"context"
	"time"

	"github.com/custodia-labs/knowledge-server/internal/core/domain"
)

// Reranker scores query/context pairs in one batched call.
type Reranker interface {
	// Rerank returns up to topN scores. Index refers to the position in
	// contexts; Score is the raw logit.
	Rerank(ctx context.Context, query string, contexts []string, topN int) ([]RerankScore, error)
}

// RerankScore is one scored context.
type RerankScore struct {
	Index int
	Score float64
}

// RerankCache holds rerank results for a (query, candidate set) key.
type RerankCache interface {
	Get(ctx context.Context, key string) ([]domain.RankedMatch, bool, error)
	Put(ctx context.Context, key string, value []domain.RankedMatch, ttl time.Duration) error
}
