package domain

import "math"

// Retrieval defaults.
const (
	DefaultTopK           = 20
	DefaultRerankTopN     = 5
	DefaultRerankMinScore = 0.5
)

// SearchFilters narrows a search to matching metadata.
// Only non-zero fields are applied.
type SearchFilters struct {
	ContentType ContentType `json:"contentType,omitempty"`
	Group       string      `json:"group,omitempty"`
	Release     string      `json:"release,omitempty"`
	Status      string      `json:"status,omitempty"`
	Tags        []string    `json:"tags,omitempty"`
}

// VectorFilter converts the filters to the index representation.
func (f SearchFilters) VectorFilter() VectorFilter {
	return VectorFilter{
		ContentType: string(f.ContentType),
		Group:       f.Group,
		Release:     f.Release,
		Status:      f.Status,
		Tags:        f.Tags,
	}
}

// SearchOptions configures a search call.
type SearchOptions struct {
	// IncludeDocuments joins full documents onto results.
	IncludeDocuments bool
}

// RankedMatch is a candidate that survived reranking.
// Slices of RankedMatch are what the rerank cache stores.
type RankedMatch struct {
	Match       VectorMatch `json:"match"`
	RerankScore float64     `json:"rerankScore"`
}

// SearchResult is a ranked hit returned to callers.
type SearchResult struct {
	ID          string      `json:"id"`
	ContentType ContentType `json:"contentType"`
	Title       string      `json:"title"`
	Description string      `json:"description,omitempty"`
	// Score is the vector similarity.
	Score float64 `json:"score"`
	// RerankScore is the sigmoid-normalised relevance in [0,1].
	RerankScore float64   `json:"rerankScore"`
	Document    *Document `json:"document,omitempty"`
}

// Sigmoid maps a raw rerank logit onto (0,1).
func Sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
