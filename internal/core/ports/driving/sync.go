package driving

import (
	"context"

	"github.com/custodia-labs/knowledge-server/internal/core/domain"
)

// SyncService applies a set of repository changes to the document store.
type SyncService interface {
	// Sync processes every file independently. The returned error is only
	// non-nil for invalid params; per-file failures are in the report.
	Sync(ctx context.Context, params domain.SyncParams) (*domain.SyncReport, error)
}

// IndexSynchronizer keeps the vector index consistent with the store.
type IndexSynchronizer interface {
	// Handle processes one notification body and decides its fate.
	Handle(ctx context.Context, body []byte) (domain.MessageResult, error)

	// Run consumes the change queue until ctx is cancelled.
	Run(ctx context.Context) error
}
