package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/knowledge-server/internal/core/domain"
	"github.com/custodia-labs/knowledge-server/internal/core/ports/driven"
	"github.com/custodia-labs/knowledge-server/internal/core/ports/driving"
	"github.com/custodia-labs/knowledge-server/internal/logger"
)

// Ensure SearchService implements the interface.
var _ driving.SearchService = (*SearchService)(nil)

const rerankCachePrefix = "rerank:"

// SearchConfig tunes the retrieval pipeline.
type SearchConfig struct {
	// TopK is the number of vector candidates.
	TopK int
	// RerankTopN is the number of results the reranker returns.
	RerankTopN int
	// MinRerankScore drops results whose normalised score is below it.
	MinRerankScore float64
	// CacheTTL is how long rerank results are cached.
	CacheTTL time.Duration
	// JoinConcurrency bounds concurrent document fetches.
	JoinConcurrency int
}

// DefaultSearchConfig returns the production retrieval settings.
func DefaultSearchConfig() SearchConfig {
	return SearchConfig{
		TopK:            domain.DefaultTopK,
		RerankTopN:      domain.DefaultRerankTopN,
		MinRerankScore:  domain.DefaultRerankMinScore,
		CacheTTL:        time.Hour,
		JoinConcurrency: 50,
	}
}

// SearchService runs the embed, filtered vector search, rerank and optional
// document join pipeline.
type SearchService struct {
	embedder driven.EmbeddingService
	index    driven.VectorIndex
	reranker driven.Reranker
	cache    driven.RerankCache
	store    driven.DocumentStore
	cfg      SearchConfig
}

// NewSearchService creates a new search service.
// cache and store are optional: without a cache every query is reranked,
// without a store documents are never joined.
func NewSearchService(
	embedder driven.EmbeddingService,
	index driven.VectorIndex,
	reranker driven.Reranker,
	cache driven.RerankCache,
	store driven.DocumentStore,
	cfg SearchConfig,
) *SearchService {
	defaults := DefaultSearchConfig()
	if cfg.TopK <= 0 {
		cfg.TopK = defaults.TopK
	}
	if cfg.RerankTopN <= 0 {
		cfg.RerankTopN = defaults.RerankTopN
	}
	if cfg.JoinConcurrency <= 0 {
		cfg.JoinConcurrency = defaults.JoinConcurrency
	}
	return &SearchService{
		embedder: embedder,
		index:    index,
		reranker: reranker,
		cache:    cache,
		store:    store,
		cfg:      cfg,
	}
}

// Search answers query. An empty query or an empty candidate set yields an
// empty slice.
func (s *SearchService) Search(
	ctx context.Context, query string, filters domain.SearchFilters, opts domain.SearchOptions,
) ([]domain.SearchResult, error) {
	ctx, span := tracer.Start(ctx, "SearchService.Search", trace.WithAttributes(
		attribute.String("filter.contentType", string(filters.ContentType)),
		attribute.Bool("includeDocuments", opts.IncludeDocuments),
	))
	results, err := s.search(ctx, query, filters, opts)
	span.SetAttributes(attribute.Int("results", len(results)))
	endSpan(span, err)
	return results, err
}

func (s *SearchService) search(
	ctx context.Context, query string, filters domain.SearchFilters, opts domain.SearchOptions,
) ([]domain.SearchResult, error) {
	logger.Section("Search Execution")
	logger.Debug("Query: %q, filters: %+v", query, filters)

	query = strings.TrimSpace(query)
	if query == "" {
		return []domain.SearchResult{}, nil
	}
	if s.embedder == nil {
		return nil, domain.ErrEmbeddingUnavailable
	}
	if s.index == nil {
		return nil, domain.ErrVectorIndexUnavailable
	}

	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		logger.Warn("Query embedding failed: %v", err)
		return nil, fmt.Errorf("embed query: %w", err)
	}

	matches, err := s.index.Query(ctx, vector, driven.QueryOptions{
		TopK:   s.cfg.TopK,
		Filter: filters.VectorFilter(),
	})
	if err != nil {
		return nil, fmt.Errorf("vector query: %w", err)
	}
	logger.Debug("Vector search: %d candidates", len(matches))
	if len(matches) == 0 {
		return []domain.SearchResult{}, nil
	}

	ranked, err := s.rerank(ctx, query, matches)
	if err != nil {
		return nil, err
	}

	results := make([]domain.SearchResult, len(ranked))
	for i, r := range ranked {
		md := r.Match.Metadata
		results[i] = domain.SearchResult{
			ID:          r.Match.ID,
			ContentType: domain.ContentType(md.ContentType),
			Title:       md.Title,
			Description: md.Description,
			Score:       r.Match.Score,
			RerankScore: r.RerankScore,
		}
	}

	if opts.IncludeDocuments {
		s.joinDocuments(ctx, ranked, results)
	}
	logger.Debug("Final results: %d", len(results))
	return results, nil
}

// rerank scores candidates, keeping the ones at or above MinRerankScore.
func (s *SearchService) rerank(ctx context.Context, query string, matches []domain.VectorMatch) ([]domain.RankedMatch, error) {
	ids := make([]string, len(matches))
	for i, m := range matches {
		ids[i] = m.ID
	}
	key := RerankCacheKey(query, ids)

	if s.cache != nil {
		cached, ok, err := s.cache.Get(ctx, key)
		switch {
		case err != nil:
			logger.Warn("Rerank cache read failed: %v", err)
		case ok:
			logger.Debug("Rerank cache hit: %s", key)
			return cached, nil
		}
	}

	if s.reranker == nil {
		return nil, domain.ErrRerankUnavailable
	}

	contexts := make([]string, len(matches))
	for i, m := range matches {
		contexts[i] = rerankContext(m.Metadata)
	}

	scores, err := s.reranker.Rerank(ctx, query, contexts, s.cfg.RerankTopN)
	if err != nil {
		return nil, fmt.Errorf("rerank: %w", err)
	}

	ranked := make([]domain.RankedMatch, 0, len(scores))
	for _, sc := range scores {
		if sc.Index < 0 || sc.Index >= len(matches) {
			logger.Warn("Rerank returned out of range index %d", sc.Index)
			continue
		}
		m := matches[sc.Index]
		if err := m.Metadata.Validate(); err != nil {
			logger.Warn("Skipping %s: %v", m.ID, err)
			continue
		}
		normalised := domain.Sigmoid(sc.Score)
		if normalised < s.cfg.MinRerankScore {
			continue
		}
		ranked = append(ranked, domain.RankedMatch{Match: m, RerankScore: normalised})
	}
	sortRanked(ranked)

	if s.cache != nil {
		if err := s.cache.Put(ctx, key, ranked, s.cfg.CacheTTL); err != nil {
			logger.Warn("Rerank cache write failed: %v", err)
		}
	}
	return ranked, nil
}

// joinDocuments attaches full documents. Failed lookups leave Document nil.
func (s *SearchService) joinDocuments(ctx context.Context, ranked []domain.RankedMatch, results []domain.SearchResult) {
	if s.store == nil {
		return
	}

	var g errgroup.Group
	g.SetLimit(s.cfg.JoinConcurrency)
	for i := range ranked {
		key := ranked[i].Match.Metadata.Path
		g.Go(func() error {
			doc, err := s.store.Get(ctx, key)
			if err != nil {
				logger.Debug("Join %s: %v", key, err)
				return nil
			}
			results[i].Document = doc
			return nil
		})
	}
	_ = g.Wait()
}

// RerankCacheKey derives the cache key for a query and candidate set.
// The key does not depend on candidate order.
func RerankCacheKey(query string, ids []string) string {
	sorted := make([]string, len(ids))
	copy(sorted, ids)
	sort.Strings(sorted)

	sum := sha256.Sum256([]byte(query + ":" + strings.Join(sorted, ",")))
	return rerankCachePrefix + hex.EncodeToString(sum[:])[:16]
}

func rerankContext(md domain.VectorMetadata) string {
	if md.Content != "" {
		return md.Content
	}
	return md.Description
}

// sortRanked orders by rerank score, then similarity, both descending.
func sortRanked(ranked []domain.RankedMatch) {
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].RerankScore != ranked[j].RerankScore {
			return ranked[i].RerankScore > ranked[j].RerankScore
		}
		return ranked[i].Match.Score > ranked[j].Match.Score
	})
}
