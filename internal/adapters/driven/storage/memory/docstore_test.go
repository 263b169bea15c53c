package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/knowledge-server/internal/core/domain"
	"github.com/custodia-labs/knowledge-server/internal/core/ports/driven"
)

func testDoc(id string) *domain.Document {
	return &domain.Document{
		ID:          id,
		ContentType: domain.ContentTypePattern,
		Path:        "artifacts/patterns/" + id + ".md",
		Metadata:    domain.Metadata{"title": "Title " + id, "publish": true, "tags": []any{"a"}},
		Content:     "body of " + id,
		SyncedAt:    time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		CommitSHA:   "abc",
	}
}

func TestDocumentStore_PutGet(t *testing.T) {
	store := NewDocumentStore()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "content/pattern/a.json", testDoc("a")))

	got, err := store.Get(ctx, "content/pattern/a.json")
	require.NoError(t, err)
	assert.Equal(t, "a", got.ID)
	assert.Equal(t, "Title a", got.Title())
	assert.True(t, got.SyncedAt.Equal(testDoc("a").SyncedAt))
	assert.Equal(t, []string{"a"}, got.Metadata.Strings("tags"))

	exists, err := store.Head(ctx, "content/pattern/a.json")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestDocumentStore_GetMissing(t *testing.T) {
	store := NewDocumentStore()
	_, err := store.Get(context.Background(), "content/pattern/none.json")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	exists, err := store.Head(context.Background(), "content/pattern/none.json")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestDocumentStore_PutIsIdempotent(t *testing.T) {
	store := NewDocumentStore()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "content/pattern/a.json", testDoc("a")))
	require.NoError(t, store.Put(ctx, "content/pattern/a.json", testDoc("a")))
	assert.Equal(t, 1, store.Len())
}

func TestDocumentStore_ReturnsCopies(t *testing.T) {
	store := NewDocumentStore()
	ctx := context.Background()
	doc := testDoc("a")
	require.NoError(t, store.Put(ctx, "content/pattern/a.json", doc))

	doc.Metadata["title"] = "changed"
	got, err := store.Get(ctx, "content/pattern/a.json")
	require.NoError(t, err)
	assert.Equal(t, "Title a", got.Title())
}

func TestDocumentStore_Delete(t *testing.T) {
	queue := NewQueue()
	store := NewDocumentStore(WithNotifier(queue))
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "content/pattern/a.json", testDoc("a")))
	require.NoError(t, store.Delete(ctx, "content/pattern/a.json"))
	require.NoError(t, store.Delete(ctx, "content/pattern/a.json"))

	assert.Zero(t, store.Len())
	assert.Equal(t, 2, queue.Pending(), "missing key delete emits nothing")
}

// failingNotifier fails its first n notifications, then forwards.
type failingNotifier struct {
	n    int
	next Notifier
}

func (f *failingNotifier) Notify(ctx context.Context, n domain.ChangeNotification) error {
	if f.n > 0 {
		f.n--
		return domain.ErrQueueClosed
	}
	return f.next.Notify(ctx, n)
}

func TestDocumentStore_DeleteKeepsObjectWhenNotifyFails(t *testing.T) {
	queue := NewQueue()
	notifier := &failingNotifier{next: queue}
	store := NewDocumentStore(WithNotifier(notifier))
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "content/pattern/a.json", testDoc("a")))
	msgs, err := queue.Receive(ctx, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	notifier.n = 1
	err = store.Delete(ctx, "content/pattern/a.json")
	assert.ErrorIs(t, err, domain.ErrQueueClosed)
	assert.Equal(t, 1, store.Len())

	require.NoError(t, store.Delete(ctx, "content/pattern/a.json"))
	assert.Zero(t, store.Len())

	msgs, err = queue.Receive(ctx, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	n, err := domain.DecodeChangeNotification(msgs[0].Body())
	require.NoError(t, err)
	assert.Equal(t, domain.EventObjectDelete, n.EventType)
}

func TestDocumentStore_Notifications(t *testing.T) {
	queue := NewQueue()
	store := NewDocumentStore(WithNotifier(queue), WithBucket("acct", "bucket"))
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "content/pattern/a.json", testDoc("a")))
	require.NoError(t, store.Delete(ctx, "content/pattern/a.json"))

	msgs, err := queue.Receive(ctx, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	created, err := domain.DecodeChangeNotification(msgs[0].Body())
	require.NoError(t, err)
	assert.Equal(t, domain.EventObjectCreate, created.EventType)
	assert.Equal(t, "acct", created.Account)
	assert.Equal(t, "bucket", created.Bucket)
	assert.Equal(t, "content/pattern/a.json", created.Object.Key)
	assert.Positive(t, created.Object.Size)
	assert.NotEmpty(t, created.Object.ETag)

	deleted, err := domain.DecodeChangeNotification(msgs[1].Body())
	require.NoError(t, err)
	assert.Equal(t, domain.EventObjectDelete, deleted.EventType)
}

func TestDocumentStore_List(t *testing.T) {
	store := NewDocumentStore()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		key := fmt.Sprintf("content/pattern/p%d.json", i)
		require.NoError(t, store.Put(ctx, key, testDoc(fmt.Sprintf("p%d", i))))
	}
	require.NoError(t, store.Put(ctx, "content/study/s.json", testDoc("s")))

	page, err := store.List(ctx, driven.ListOptions{Prefix: "content/pattern/", Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"content/pattern/p0.json", "content/pattern/p1.json"}, page.Keys)
	assert.True(t, page.Truncated)

	var all []string
	cursor := ""
	for {
		page, err := store.List(ctx, driven.ListOptions{Prefix: "content/pattern/", Cursor: cursor, Limit: 2})
		require.NoError(t, err)
		all = append(all, page.Keys...)
		if !page.Truncated {
			break
		}
		cursor = page.Cursor
	}
	assert.Len(t, all, 5)

	page, err = store.List(ctx, driven.ListOptions{Prefix: "content/"})
	require.NoError(t, err)
	assert.Len(t, page.Keys, 6)
	assert.False(t, page.Truncated)
}

func TestDocumentStore_StoredFormIsJSON(t *testing.T) {
	store := NewDocumentStore()
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "content/pattern/a.json", testDoc("a")))

	raw := store.objects["content/pattern/a.json"].raw
	var fields map[string]any
	require.NoError(t, json.Unmarshal(raw, &fields))
	for _, k := range []string{"id", "contentType", "path", "metadata", "content", "syncedAt", "commitSha"} {
		assert.Contains(t, fields, k)
	}
}
