package domain

// EmbeddingProvider identifies an embedding oracle implementation.
type EmbeddingProvider string

// Available embedding providers.
const (
	// EmbeddingProviderOpenAI is the OpenAI embeddings API or a compatible gateway.
	EmbeddingProviderOpenAI EmbeddingProvider = "openai"

	// EmbeddingProviderOllama is a local Ollama instance.
	EmbeddingProviderOllama EmbeddingProvider = "ollama"
)

// IsValid returns true if the provider is recognised.
func (p EmbeddingProvider) IsValid() bool {
	return p == EmbeddingProviderOpenAI || p == EmbeddingProviderOllama
}

// RequiresAPIKey returns true if this provider needs an API key.
func (p EmbeddingProvider) RequiresAPIKey() bool {
	return p == EmbeddingProviderOpenAI
}

// EmbeddingSettings holds embedding provider configuration.
type EmbeddingSettings struct {
	Provider   EmbeddingProvider
	Model      string
	BaseURL    string
	APIKey     string
	Dimensions int
}

// IsConfigured returns true if the embedding provider is set up.
func (e EmbeddingSettings) IsConfigured() bool {
	if !e.Provider.IsValid() {
		return false
	}
	return !e.Provider.RequiresAPIKey() || e.APIKey != ""
}

// DefaultEmbeddingModels returns default models for each provider.
func DefaultEmbeddingModels() map[EmbeddingProvider]string {
	return map[EmbeddingProvider]string{
		EmbeddingProviderOllama: "nomic-embed-text",
		EmbeddingProviderOpenAI: "text-embedding-3-small",
	}
}

// EmbeddingDimensions returns the vector dimensions for known models.
func EmbeddingDimensions() map[string]int {
	return map[string]int{
		"nomic-embed-text":       768,
		"mxbai-embed-large":      1024,
		"bge-base-en-v1.5":       768,
		"text-embedding-3-small": 1536,
		"text-embedding-3-large": 3072,
	}
}

// StoreBackend selects the document store implementation.
type StoreBackend string

const (
	StoreBackendMemory StoreBackend = "memory"
	StoreBackendSQLite StoreBackend = "sqlite"
)

// VectorBackend selects the vector index implementation.
type VectorBackend string

const (
	VectorBackendMemory   VectorBackend = "memory"
	VectorBackendPGVector VectorBackend = "pgvector"
)
