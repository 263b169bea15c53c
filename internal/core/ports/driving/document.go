package driving

import (
	"context"

	"github.com/custodia-labs/knowledge-server/internal/core/domain"
)

// DocumentService reads stored documents.
type DocumentService interface {
	// Get returns one document or domain.ErrNotFound.
	Get(ctx context.Context, contentType domain.ContentType, id string) (*domain.Document, error)

	// List returns documents matching params.
	List(ctx context.Context, params domain.ListParams) (*domain.DocumentPage, error)
}
