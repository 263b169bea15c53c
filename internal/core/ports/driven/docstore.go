package driven

import (
	"context"

	"github.com/custodia-labs/knowledge-server/internal/core/domain"
)

// MaxListLimit caps a single List page.
const MaxListLimit = 1000

// DocumentStore persists documents under string keys.
// Every Put and effective Delete emits a domain.ChangeNotification.
type DocumentStore interface {
	// Get returns the document at key or domain.ErrNotFound.
	Get(ctx context.Context, key string) (*domain.Document, error)

	// Head reports whether key exists without loading it.
	Head(ctx context.Context, key string) (bool, error)

	// Put creates or overwrites the document at key.
	Put(ctx context.Context, key string, doc *domain.Document) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// List returns keys with the given prefix in lexical order.
	List(ctx context.Context, opts ListOptions) (*ListPage, error)
}

// ListOptions selects a page of keys.
type ListOptions struct {
	Prefix string
	// Cursor is the opaque value from a previous ListPage.
	Cursor string
	// Limit is clamped to (0, MaxListLimit].
	Limit int
}

// ListPage is one page of keys.
type ListPage struct {
	Keys      []string
	Cursor    string
	Truncated bool
}

// ClampLimit applies the List limit bounds.
func ClampLimit(limit int) int {
	if limit <= 0 || limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}
