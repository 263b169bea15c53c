package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/custodia-labs/knowledge-server/internal/core/domain"
	"github.com/custodia-labs/knowledge-server/internal/core/ports/driven"
	"github.com/custodia-labs/knowledge-server/internal/core/ports/driving"
	"github.com/custodia-labs/knowledge-server/internal/logger"
)

// Ensure DocumentService implements the interface.
var _ driving.DocumentService = (*DocumentService)(nil)

// Listing limits.
const (
	DefaultListLimit = 50
	// MaxListScan caps how many keys a single listing examines.
	MaxListScan = driven.MaxListLimit
)

// DocumentService reads documents from the store.
type DocumentService struct {
	store driven.DocumentStore
}

// NewDocumentService creates a new document service.
func NewDocumentService(store driven.DocumentStore) *DocumentService {
	return &DocumentService{store: store}
}

// Get retrieves a document by content type and id.
func (s *DocumentService) Get(ctx context.Context, contentType domain.ContentType, id string) (*domain.Document, error) {
	key, err := domain.StoreKey(contentType, id)
	if err != nil {
		return nil, err
	}
	return s.store.Get(ctx, key)
}

// List returns documents under one content type (or all of them), filtered
// by group and release and paged by offset and limit. At most MaxListScan
// keys are examined.
func (s *DocumentService) List(ctx context.Context, params domain.ListParams) (*domain.DocumentPage, error) {
	prefix := domain.ContentPrefix
	if params.ContentType != "" {
		if !params.ContentType.IsValid() {
			return nil, &domain.ValidationError{Field: "contentType", Reason: fmt.Sprintf("unknown %q", params.ContentType)}
		}
		prefix = domain.ContentTypePrefix(params.ContentType)
	}

	limit := params.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	limit = driven.ClampLimit(limit)
	offset := max(params.Offset, 0)

	keys, err := s.scan(ctx, prefix)
	if err != nil {
		return nil, err
	}

	matched := make([]domain.Document, 0, len(keys))
	for _, key := range keys {
		doc, err := s.store.Get(ctx, key)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("get %s: %w", key, err)
		}
		if params.Group != "" && doc.Metadata.String("group") != params.Group {
			continue
		}
		if params.Release != "" && doc.Metadata.String("release") != params.Release {
			continue
		}
		matched = append(matched, *doc)
	}

	page := &domain.DocumentPage{Total: len(matched), Limit: limit, Offset: offset, Documents: []domain.Document{}}
	if offset < len(matched) {
		end := min(offset+limit, len(matched))
		page.Documents = matched[offset:end]
	}
	return page, nil
}

// scan follows list cursors until the prefix is exhausted or MaxListScan
// keys were collected.
func (s *DocumentService) scan(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	cursor := ""
	for len(keys) < MaxListScan {
		page, err := s.store.List(ctx, driven.ListOptions{
			Prefix: prefix,
			Cursor: cursor,
			Limit:  MaxListScan - len(keys),
		})
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", prefix, err)
		}
		keys = append(keys, page.Keys...)
		if !page.Truncated || page.Cursor == "" {
			return keys, nil
		}
		cursor = page.Cursor
	}
	logger.Debug("Listing %s stopped at %d keys", prefix, MaxListScan)
	return keys, nil
}
