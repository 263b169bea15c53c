package driving

import (
	"context"

	"github.com/custodia-labs/knowledge-server/internal/core/domain"
)

// SearchService answers natural-language queries over the corpus.
type SearchService interface {
	// Search returns reranked results, best first. No matches is an empty
	// slice, not an error.
	Search(ctx context.Context, query string, filters domain.SearchFilters, opts domain.SearchOptions) ([]domain.SearchResult, error)
}
