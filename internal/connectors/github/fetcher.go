package github

import (
	"context"

	"github.com/custodia-labs/knowledge-server/internal/core/domain"
	"github.com/custodia-labs/knowledge-server/internal/core/ports/driven"
)

// Verify interface compliance.
var _ driven.SourceFetcher = (*Fetcher)(nil)

// Fetcher reads corpus files for the sync service.
type Fetcher struct {
	client *Client
}

// NewFetcher creates a Fetcher backed by client.
func NewFetcher(client *Client) *Fetcher {
	return &Fetcher{client: client}
}

// FetchFile returns path at ref. Missing files and denied access are
// terminal; rate limits, server errors and network failures are retryable.
func (f *Fetcher) FetchFile(ctx context.Context, path, ref string) (string, error) {
	content, err := f.client.GetFileContent(ctx, path, ref)
	if err == nil {
		return content, nil
	}

	status := statusOf(err)
	switch {
	case IsRateLimited(err):
		return "", &domain.RetryableFetchError{Path: path, StatusCode: 429, Err: err}
	case IsNotFound(err), IsForbidden(err), IsUnauthorized(err):
		return "", &domain.TerminalFetchError{Path: path, StatusCode: status, Err: err}
	default:
		return "", &domain.RetryableFetchError{Path: path, StatusCode: status, Err: err}
	}
}
