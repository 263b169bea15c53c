package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/knowledge-server/internal/adapters/driven/ai"
	"github.com/custodia-labs/knowledge-server/internal/adapters/driven/cache/lru"
	"github.com/custodia-labs/knowledge-server/internal/adapters/driven/config/file"
	"github.com/custodia-labs/knowledge-server/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/knowledge-server/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/knowledge-server/internal/connectors/github"
	"github.com/custodia-labs/knowledge-server/internal/core/domain"
	"github.com/custodia-labs/knowledge-server/internal/core/ports/driven"
	"github.com/custodia-labs/knowledge-server/internal/core/ports/driving"
	"github.com/custodia-labs/knowledge-server/internal/core/services"
	"github.com/custodia-labs/knowledge-server/internal/logger"
	"github.com/custodia-labs/knowledge-server/internal/normalisers/frontmatter"
)

// changeSource lists repository changes for one-shot syncs.
type changeSource interface {
	CompareCommits(ctx context.Context, base, head string) (domain.SyncParams, error)
	ListMarkdown(ctx context.Context, ref string) (domain.SyncParams, error)
}

// App holds the wired services. Fields are nil when their dependencies
// are not configured.
type App struct {
	Config     *file.Config
	Search     driving.SearchService
	Documents  driving.DocumentService
	Sync       driving.SyncService
	Indexer    driving.IndexSynchronizer
	Deliveries driven.DeliveryLog
	Source     changeSource

	closers []func() error
}

// Close releases everything the app opened, last opened first.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

// app is set by tests; commands otherwise build one from the config.
var app *App

// loadApp returns the injected app or builds one. The returned func
// releases what was built.
func loadApp(cmd *cobra.Command) (*App, func(), error) {
	if app != nil {
		return app, func() {}, nil
	}
	cfg, err := file.Load(configPath, envFile)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	a, err := buildApp(cmd.Context(), cfg)
	if err != nil {
		return nil, nil, err
	}
	return a, func() {
		if err := a.Close(); err != nil {
			logger.Warn("closing: %v", err)
		}
	}, nil
}

// buildApp wires adapters to services. A missing embedding provider or
// repository disables the services that need them rather than failing.
func buildApp(ctx context.Context, cfg *file.Config) (*App, error) {
	a := &App{Config: cfg}

	store, queue, err := openStore(a, cfg)
	if err != nil {
		return nil, err
	}
	a.Documents = services.NewDocumentService(store)
	a.Deliveries = lru.NewDeliveryLog(0, cfg.Server.DeliveryWindow.Duration)

	oracles, err := ai.Init(ctx, ai.InitConfig{
		Embedding: cfg.EmbeddingSettings(),
		Rerank:    ai.RerankSettings{BaseURL: cfg.Rerank.BaseURL, APIKey: cfg.Rerank.APIKey},
		Vector: ai.VectorSettings{
			Backend:     domain.VectorBackend(cfg.Vector.Backend),
			DatabaseURL: cfg.Vector.DatabaseURL,
			Table:       cfg.Vector.Table,
		},
	})
	if err != nil {
		logger.Warn("search and indexing disabled: %v", err)
	} else {
		a.closers = append(a.closers, func() error { oracles.Close(); return nil })
		cache := lru.NewRerankCache(cfg.Search.CacheEntries, cfg.Search.CacheTTL.Duration)
		a.Search = services.NewSearchService(
			oracles.EmbeddingService, oracles.VectorIndex, oracles.Reranker, cache, store,
			services.SearchConfig{
				TopK:           cfg.Search.TopK,
				RerankTopN:     cfg.Search.RerankTopN,
				MinRerankScore: cfg.Search.MinRerankScore,
				CacheTTL:       cfg.Search.CacheTTL.Duration,
			})
		a.Indexer = services.NewIndexSynchronizer(
			store, oracles.EmbeddingService, oracles.VectorIndex, queue,
			services.IndexerConfig{
				BatchSize:    cfg.Indexer.BatchSize,
				PollInterval: cfg.Indexer.PollInterval.Duration,
			})
	}

	if cfg.GitHub.Owner == "" || cfg.GitHub.Repo == "" {
		logger.Warn("github.owner and github.repo not set: sync disabled")
		return a, nil
	}
	client, err := github.NewClient(ctx, github.Config{
		Owner:   cfg.GitHub.Owner,
		Repo:    cfg.GitHub.Repo,
		Token:   cfg.GitHub.Token,
		BaseURL: cfg.GitHub.BaseURL,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("creating github client: %w", err)
	}
	a.Source = client
	a.Sync = services.NewSyncService(github.NewFetcher(client), frontmatter.New(), store, services.SyncConfig{
		MaxRetries:   cfg.Sync.MaxRetries,
		InitialDelay: cfg.Sync.InitialDelay.Duration,
		MaxDelay:     cfg.Sync.MaxDelay.Duration,
		StepTimeout:  cfg.Sync.StepTimeout.Duration,
		Workers:      cfg.Sync.Workers,
	})
	return a, nil
}

// openStore opens the document store and the queue its mutations feed.
func openStore(a *App, cfg *file.Config) (driven.DocumentStore, driven.ChangeQueue, error) {
	switch domain.StoreBackend(cfg.Store.Backend) {
	case domain.StoreBackendMemory:
		queue := memory.NewQueue(memory.WithRetryDelay(cfg.Indexer.RetryDelay.Duration))
		return memory.NewDocumentStore(memory.WithNotifier(queue)), queue, nil
	default:
		store, err := sqlite.NewStore(cfg.Store.DataDir,
			sqlite.WithVisibilityTimeout(cfg.Indexer.VisibilityTimeout.Duration),
			sqlite.WithRetryDelay(cfg.Indexer.RetryDelay.Duration),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("opening store: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		logger.Debug("store: %s", store.Path())
		return store.DocumentStore(), store.Queue(), nil
	}
}
