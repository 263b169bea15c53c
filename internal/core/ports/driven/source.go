package driven

import (
	"context"

	"github.com/custodia-labs/knowledge-server/internal/core/domain"
)

// SourceFetcher reads files from the source repository.
type SourceFetcher interface {
	// FetchFile returns the content of path at ref. Failures are
	// *domain.TerminalFetchError or *domain.RetryableFetchError.
	FetchFile(ctx context.Context, path, ref string) (string, error)
}

// FrontmatterParser splits a markdown file into metadata and body.
// Parse failures are returned in ParsedMarkdown.Err.
type FrontmatterParser interface {
	Parse(raw string) domain.ParsedMarkdown
}

// DeliveryLog remembers webhook delivery ids for a bounded window.
type DeliveryLog interface {
	// Remember records id and reports whether it was already present.
	Remember(id string) bool
}
