// Package ai creates the model-backed oracles: the embedding service, the
// reranker and the vector index sized for the embedder.
package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	ollamaembed "github.com/custodia-labs/knowledge-server/internal/adapters/driven/embedding/ollama"
	openaiembed "github.com/custodia-labs/knowledge-server/internal/adapters/driven/embedding/openai"
	"github.com/custodia-labs/knowledge-server/internal/adapters/driven/rerank/tei"
	"github.com/custodia-labs/knowledge-server/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/knowledge-server/internal/adapters/driven/vector/pgvector"
	"github.com/custodia-labs/knowledge-server/internal/core/domain"
	"github.com/custodia-labs/knowledge-server/internal/core/ports/driven"
)

// pingTimeout is the maximum time to wait for service connectivity validation.
const pingTimeout = 5 * time.Second

// RerankSettings locates the reranking service.
type RerankSettings struct {
	BaseURL string
	APIKey  string
}

// VectorSettings selects and locates the vector index.
type VectorSettings struct {
	Backend     domain.VectorBackend
	DatabaseURL string
	Table       string
}

// InitConfig is everything Init needs.
type InitConfig struct {
	Embedding domain.EmbeddingSettings
	Rerank    RerankSettings
	Vector    VectorSettings
	// Ping checks the embedding service before it is returned.
	Ping bool
}

// InitResult contains the result of AI service initialisation.
type InitResult struct {
	EmbeddingService driven.EmbeddingService
	Reranker         driven.Reranker
	VectorIndex      driven.VectorIndex
}

// Close releases all resources held by InitResult.
func (r *InitResult) Close() {
	if r.EmbeddingService != nil {
		r.EmbeddingService.Close()
	}
	if r.VectorIndex != nil {
		r.VectorIndex.Close()
	}
}

// Init creates the embedder, then a vector index sized for it, then the
// reranker. Anything created before a failure is closed.
func Init(ctx context.Context, cfg InitConfig) (*InitResult, error) {
	var embedder driven.EmbeddingService
	var err error
	if cfg.Ping {
		embedder, err = CreateAndValidateEmbeddingService(ctx, cfg.Embedding)
	} else {
		embedder, err = CreateEmbeddingService(cfg.Embedding)
	}
	if err != nil {
		return nil, err
	}

	result := &InitResult{EmbeddingService: embedder}
	result.VectorIndex, err = CreateVectorIndex(ctx, cfg.Vector, embedder.Dimensions())
	if err != nil {
		result.Close()
		return nil, err
	}
	result.Reranker = CreateReranker(cfg.Rerank)
	return result, nil
}

// CreateAndValidateEmbeddingService creates an embedding service and validates connectivity.
func CreateAndValidateEmbeddingService(ctx context.Context, settings domain.EmbeddingSettings) (driven.EmbeddingService, error) {
	svc, err := CreateEmbeddingService(settings)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := svc.Ping(ctx); err != nil {
		svc.Close()
		return nil, fmt.Errorf("%w: service unreachable (%w)", domain.ErrEmbeddingUnavailable, err)
	}
	return svc, nil
}

// CreateEmbeddingService creates the embedding service named by settings.
func CreateEmbeddingService(settings domain.EmbeddingSettings) (driven.EmbeddingService, error) {
	if !settings.Provider.IsValid() {
		return nil, fmt.Errorf("%w: unsupported embedding provider %q", domain.ErrEmbeddingUnavailable, settings.Provider)
	}
	if !settings.IsConfigured() {
		return nil, fmt.Errorf("%w: %s requires an API key", domain.ErrEmbeddingUnavailable, settings.Provider)
	}

	switch settings.Provider {
	case domain.EmbeddingProviderOllama:
		return createOllamaEmbedding(settings), nil
	default:
		return createOpenAIEmbedding(settings)
	}
}

func createOllamaEmbedding(settings domain.EmbeddingSettings) driven.EmbeddingService {
	return ollamaembed.NewEmbeddingService(ollamaembed.Config{
		BaseURL:    settings.BaseURL,
		Model:      settings.Model,
		Dimensions: settings.Dimensions,
	})
}

func createOpenAIEmbedding(settings domain.EmbeddingSettings) (driven.EmbeddingService, error) {
	svc, err := openaiembed.NewEmbeddingService(openaiembed.Config{
		APIKey:     settings.APIKey,
		BaseURL:    settings.BaseURL,
		Model:      settings.Model,
		Dimensions: settings.Dimensions,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrEmbeddingUnavailable, err)
	}
	return svc, nil
}

// CreateReranker creates the cross-encoder client.
func CreateReranker(settings RerankSettings) driven.Reranker {
	return tei.New(tei.Config{BaseURL: settings.BaseURL, APIKey: settings.APIKey})
}

// CreateVectorIndex creates the index selected by settings for vectors of
// dims dimensions.
func CreateVectorIndex(ctx context.Context, settings VectorSettings, dims int) (driven.VectorIndex, error) {
	if dims <= 0 {
		return nil, errors.New("embedding dimensions unknown: set embedding.dimensions")
	}
	switch settings.Backend {
	case domain.VectorBackendMemory, "":
		return memory.NewVectorIndex(dims), nil
	case domain.VectorBackendPGVector:
		if settings.DatabaseURL == "" {
			return nil, fmt.Errorf("%w: pgvector requires a database url", domain.ErrVectorIndexUnavailable)
		}
		idx, err := pgvector.New(ctx, settings.DatabaseURL, dims, settings.Table)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrVectorIndexUnavailable, err)
		}
		return idx, nil
	default:
		return nil, fmt.Errorf("unsupported vector backend %q", settings.Backend)
	}
}
