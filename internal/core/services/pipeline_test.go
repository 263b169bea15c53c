package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/knowledge-server/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/knowledge-server/internal/core/domain"
	"github.com/custodia-labs/knowledge-server/internal/normalisers/frontmatter"
)

// pipeline wires sync, indexing and search over in-memory adapters.
type pipeline struct {
	fetcher  *syncMockFetcher
	queue    *memory.Queue
	store    *memory.DocumentStore
	index    *memory.VectorIndex
	embedder *mockEmbeddingService
	reranker *mockReranker
	sync     *SyncService
	indexer  *IndexSynchronizer
	search   *SearchService
}

func newPipeline(t *testing.T) *pipeline {
	t.Helper()
	p := &pipeline{
		fetcher:  newSyncMockFetcher(),
		queue:    memory.NewQueue(),
		index:    memory.NewVectorIndex(2),
		embedder: &mockEmbeddingService{vectors: map[string][]float32{}},
		reranker: &mockReranker{logits: map[string]float64{}},
	}
	p.store = memory.NewDocumentStore(memory.WithNotifier(p.queue))
	p.sync = NewSyncService(p.fetcher, frontmatter.New(), p.store, testSyncConfig())
	p.indexer = NewIndexSynchronizer(p.store, p.embedder, p.index, p.queue, IndexerConfig{})
	p.search = NewSearchService(p.embedder, p.index, p.reranker, newMockRerankCache(), p.store, DefaultSearchConfig())
	return p
}

// drain delivers every pending notification to the indexer.
func (p *pipeline) drain(t *testing.T) {
	t.Helper()
	for p.queue.Pending() > 0 {
		msgs, err := p.queue.Receive(context.Background(), 10)
		require.NoError(t, err)
		stats := p.indexer.HandleBatch(context.Background(), msgs)
		require.Zero(t, stats.Retried)
	}
}

func TestPipeline_PushToSearch(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()

	p.fetcher.files["artifacts/patterns/commons.md"] = "---\ntitle: Commons\npublish: true\ndate: 2024-03-01\ntags: [governance, land]\n---\nShared stewardship of resources"
	p.fetcher.files["artifacts/studies/housing.md"] = "---\ntitle: Housing\npublish: true\ndate: 2024-03-02\n---\nCooperative housing study"
	p.fetcher.files["notes/private.md"] = "---\ntitle: Private\npublish: false\ndate: 2024-03-03\n---\nNot for the index"

	report, err := p.sync.Sync(ctx, domain.SyncParams{
		ChangedFiles: []string{"artifacts/patterns/commons.md", "artifacts/studies/housing.md", "notes/private.md"},
		CommitSHA:    "abc123",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Count(domain.OutcomeStored))
	assert.Equal(t, 1, report.Count(domain.OutcomeSkipped))

	p.drain(t)
	require.Equal(t, 2, p.index.Len())

	rec, ok := p.index.Get("commons")
	require.True(t, ok)
	assert.Equal(t, "content/pattern/commons.json", rec.Metadata.Path)
	assert.Equal(t, "governance,land", rec.Metadata.Tags)

	p.embedder.vectors["who stewards land"] = []float32{0.2, 0.1}
	p.reranker.logits["Shared stewardship of resources"] = 2.0
	p.reranker.logits["Cooperative housing study"] = -3.0

	results, err := p.search.Search(ctx, "who stewards land", domain.SearchFilters{}, domain.SearchOptions{IncludeDocuments: true})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "commons", results[0].ID)
	assert.Equal(t, "Commons", results[0].Title)
	assert.InDelta(t, domain.Sigmoid(2.0), results[0].RerankScore, 1e-9)
	require.NotNil(t, results[0].Document)
	assert.Equal(t, "abc123", results[0].Document.CommitSHA)

	results, err = p.search.Search(ctx, "who stewards land", domain.SearchFilters{Tags: []string{"land"}}, domain.SearchOptions{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Nil(t, results[0].Document)
}

func TestPipeline_UnpublishRemovesVector(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()
	path := "artifacts/patterns/commons.md"

	p.fetcher.files[path] = "---\ntitle: Commons\npublish: true\ndate: 2024-03-01\n---\nBody"
	_, err := p.sync.Sync(ctx, domain.SyncParams{ChangedFiles: []string{path}, CommitSHA: "one"})
	require.NoError(t, err)
	p.drain(t)
	require.Equal(t, 1, p.index.Len())

	p.fetcher.files[path] = "---\ntitle: Commons\npublish: true\ndraft: true\ndate: 2024-03-01\n---\nBody"
	report, err := p.sync.Sync(ctx, domain.SyncParams{ChangedFiles: []string{path}, CommitSHA: "two"})
	require.NoError(t, err)
	step, ok := report.Step(path)
	require.True(t, ok)
	assert.Equal(t, domain.OutcomeDeleted, step.Outcome)

	p.drain(t)
	assert.Zero(t, p.index.Len())
	assert.Zero(t, p.store.Len())
}

func TestPipeline_RemovedFileRemovesVector(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()
	path := "artifacts/studies/housing.md"

	p.fetcher.files[path] = "---\ntitle: Housing\npublish: true\ndate: 2024-03-01\n---\nBody"
	_, err := p.sync.Sync(ctx, domain.SyncParams{ChangedFiles: []string{path}, CommitSHA: "one"})
	require.NoError(t, err)
	p.drain(t)
	require.Equal(t, 1, p.index.Len())

	_, err = p.sync.Sync(ctx, domain.SyncParams{DeletedFiles: []string{path}, CommitSHA: "two"})
	require.NoError(t, err)
	p.drain(t)
	assert.Zero(t, p.index.Len())
}

func TestPipeline_RunLoop(t *testing.T) {
	p := newPipeline(t)
	p.indexer = NewIndexSynchronizer(p.store, p.embedder, p.index, p.queue, IndexerConfig{PollInterval: time.Millisecond})
	p.fetcher.files["links/site.md"] = "---\ntitle: Site\npublish: true\ndate: 2024-03-01\nurl: https://example.org\n---\nA link"

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = p.indexer.Run(ctx) }()

	_, err := p.sync.Sync(ctx, domain.SyncParams{ChangedFiles: []string{"links/site.md"}, CommitSHA: "one"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, ok := p.index.Get("site")
		return ok
	}, time.Second, 5*time.Millisecond)
}
