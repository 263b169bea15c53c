package memory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/custodia-labs/knowledge-server/internal/core/domain"
	"github.com/custodia-labs/knowledge-server/internal/core/ports/driven"
)

// Ensure DocumentStore implements the interface.
var _ driven.DocumentStore = (*DocumentStore)(nil)

// Notifier receives the change notifications a store emits.
type Notifier interface {
	Notify(ctx context.Context, n domain.ChangeNotification) error
}

// StoreOption configures a DocumentStore.
type StoreOption func(*DocumentStore)

// WithNotifier publishes change notifications to n.
func WithNotifier(n Notifier) StoreOption {
	return func(s *DocumentStore) { s.notifier = n }
}

// WithBucket sets the account and bucket reported in notifications.
func WithBucket(account, bucket string) StoreOption {
	return func(s *DocumentStore) {
		s.account = account
		s.bucket = bucket
	}
}

type storedObject struct {
	raw  []byte
	etag string
}

// DocumentStore is an in-memory implementation of driven.DocumentStore.
// Documents are held in serialised form so callers never share state.
type DocumentStore struct {
	mu       sync.RWMutex
	objects  map[string]storedObject
	notifier Notifier
	account  string
	bucket   string
	now      func() time.Time
}

// NewDocumentStore creates a new in-memory document store.
func NewDocumentStore(opts ...StoreOption) *DocumentStore {
	s := &DocumentStore{
		objects: make(map[string]storedObject),
		account: "local",
		bucket:  "knowledge",
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get retrieves the document at key.
func (s *DocumentStore) Get(_ context.Context, key string) (*domain.Document, error) {
	s.mu.RLock()
	obj, ok := s.objects[key]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.ErrNotFound
	}

	var doc domain.Document
	if err := json.Unmarshal(obj.raw, &doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return &doc, nil
}

// Head reports whether key exists.
func (s *DocumentStore) Head(_ context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.objects[key]
	return ok, nil
}

// Put stores or replaces the document at key.
func (s *DocumentStore) Put(ctx context.Context, key string, doc *domain.Document) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	sum := sha256.Sum256(raw)
	obj := storedObject{raw: raw, etag: hex.EncodeToString(sum[:16])}

	s.mu.Lock()
	s.objects[key] = obj
	s.mu.Unlock()

	return s.notify(ctx, key, int64(len(raw)), obj.etag, domain.EventObjectCreate)
}

// Delete removes key. Missing keys are ignored and emit nothing.
func (s *DocumentStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	obj, ok := s.objects[key]
	delete(s.objects, key)
	s.mu.Unlock()

	if !ok {
		return nil
	}
	if err := s.notify(ctx, key, 0, obj.etag, domain.EventObjectDelete); err != nil {
		// Restore the object so a retried delete notifies again.
		s.mu.Lock()
		if _, replaced := s.objects[key]; !replaced {
			s.objects[key] = obj
		}
		s.mu.Unlock()
		return err
	}
	return nil
}

// List returns keys under opts.Prefix in lexical order, starting after
// opts.Cursor.
func (s *DocumentStore) List(_ context.Context, opts driven.ListOptions) (*driven.ListPage, error) {
	limit := driven.ClampLimit(opts.Limit)

	s.mu.RLock()
	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		if strings.HasPrefix(k, opts.Prefix) && k > opts.Cursor {
			keys = append(keys, k)
		}
	}
	s.mu.RUnlock()
	sort.Strings(keys)

	page := &driven.ListPage{Keys: keys}
	if len(keys) > limit {
		page.Keys = keys[:limit]
		page.Truncated = true
		page.Cursor = page.Keys[limit-1]
	}
	return page, nil
}

// Len returns the number of stored documents.
func (s *DocumentStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}

func (s *DocumentStore) notify(ctx context.Context, key string, size int64, etag string, event domain.EventType) error {
	if s.notifier == nil {
		return nil
	}
	n := domain.NewChangeNotification(s.account, s.bucket, key, size, etag, event, s.now())
	if err := s.notifier.Notify(ctx, n); err != nil {
		return fmt.Errorf("notify %s: %w", key, err)
	}
	return nil
}
