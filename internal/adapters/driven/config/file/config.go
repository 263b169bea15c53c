package file

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	"github.com/custodia-labs/knowledge-server/internal/core/domain"
)

// Environment variables that override secrets and endpoints.
const (
	EnvGitHubToken   = "GITHUB_TOKEN"
	EnvWebhookSecret = "GITHUB_WEBHOOK_SECRET"
	EnvOpenAIKey     = "OPENAI_API_KEY"
	EnvDatabaseURL   = "DATABASE_URL"
	EnvEmbeddingDims = "EMBEDDING_DIMENSIONS"
)

// Duration is a time.Duration written as "30s" or "2m" in TOML.
type Duration struct {
	time.Duration
}

// UnmarshalText parses a Go duration string.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText formats the duration.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config is the complete server configuration.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	GitHub    GitHubConfig    `toml:"github"`
	Sync      SyncConfig      `toml:"sync"`
	Indexer   IndexerConfig   `toml:"indexer"`
	Search    SearchConfig    `toml:"search"`
	Embedding EmbeddingConfig `toml:"embedding"`
	Rerank    RerankConfig    `toml:"rerank"`
	Store     StoreConfig     `toml:"store"`
	Vector    VectorConfig    `toml:"vector"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr string `toml:"addr"`
	// DeliveryWindow is how long webhook delivery ids are remembered.
	DeliveryWindow Duration `toml:"delivery_window"`
}

// GitHubConfig identifies the knowledge repository.
type GitHubConfig struct {
	Owner         string `toml:"owner"`
	Repo          string `toml:"repo"`
	Branch        string `toml:"branch"`
	Token         string `toml:"token"`
	WebhookSecret string `toml:"webhook_secret"`
	BaseURL       string `toml:"base_url"`
}

// SyncConfig bounds the per-file retry driver.
type SyncConfig struct {
	MaxRetries   int      `toml:"max_retries"`
	InitialDelay Duration `toml:"initial_delay"`
	MaxDelay     Duration `toml:"max_delay"`
	StepTimeout  Duration `toml:"step_timeout"`
	Workers      int      `toml:"workers"`
}

// IndexerConfig configures the queue consumer.
type IndexerConfig struct {
	BatchSize         int      `toml:"batch_size"`
	PollInterval      Duration `toml:"poll_interval"`
	VisibilityTimeout Duration `toml:"visibility_timeout"`
	RetryDelay        Duration `toml:"retry_delay"`
}

// SearchConfig configures retrieval.
type SearchConfig struct {
	TopK           int      `toml:"top_k"`
	RerankTopN     int      `toml:"rerank_top_n"`
	MinRerankScore float64  `toml:"min_rerank_score"`
	CacheTTL       Duration `toml:"cache_ttl"`
	CacheEntries   int      `toml:"cache_entries"`
}

// EmbeddingConfig selects the embedding oracle.
type EmbeddingConfig struct {
	Provider   string `toml:"provider"`
	Model      string `toml:"model"`
	BaseURL    string `toml:"base_url"`
	APIKey     string `toml:"api_key"`
	Dimensions int    `toml:"dimensions"`
}

// RerankConfig locates the rerank oracle.
type RerankConfig struct {
	BaseURL string `toml:"base_url"`
	APIKey  string `toml:"api_key"`
}

// StoreConfig selects the document store.
type StoreConfig struct {
	Backend string `toml:"backend"`
	DataDir string `toml:"data_dir"`
}

// VectorConfig selects the vector index.
type VectorConfig struct {
	Backend     string `toml:"backend"`
	DatabaseURL string `toml:"database_url"`
	Table       string `toml:"table"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:           ":8080",
			DeliveryWindow: Duration{10 * time.Minute},
		},
		GitHub: GitHubConfig{Branch: "main"},
		Sync: SyncConfig{
			MaxRetries:   domain.DefaultSyncRetries,
			InitialDelay: Duration{domain.DefaultSyncInitialDelay},
			MaxDelay:     Duration{time.Hour},
			StepTimeout:  Duration{domain.DefaultSyncStepTimeout},
			Workers:      domain.DefaultSyncWorkers,
		},
		Indexer: IndexerConfig{
			BatchSize:         10,
			PollInterval:      Duration{time.Second},
			VisibilityTimeout: Duration{5 * time.Minute},
			RetryDelay:        Duration{10 * time.Second},
		},
		Search: SearchConfig{
			TopK:           domain.DefaultTopK,
			RerankTopN:     domain.DefaultRerankTopN,
			MinRerankScore: domain.DefaultRerankMinScore,
			CacheTTL:       Duration{time.Hour},
			CacheEntries:   1024,
		},
		Embedding: EmbeddingConfig{Provider: string(domain.EmbeddingProviderOpenAI)},
		Store:     StoreConfig{Backend: string(domain.StoreBackendSQLite)},
		Vector:    VectorConfig{Backend: string(domain.VectorBackendMemory)},
	}
}

// DefaultPath returns ~/.knowledge/config.toml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, ".knowledge", "config.toml"), nil
}

// Load reads path on top of the defaults. An empty path uses DefaultPath
// and tolerates a missing file; an explicit path must exist. envFile, when
// set, is loaded into the process environment first; a missing .env file
// is not an error.
func Load(path, envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", envFile, err)
		}
	}

	cfg := Default()

	explicit := path != ""
	if !explicit {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv lets the environment override secrets.
func (c *Config) applyEnv() error {
	override := func(dst *string, key string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	override(&c.GitHub.Token, EnvGitHubToken)
	override(&c.GitHub.WebhookSecret, EnvWebhookSecret)
	override(&c.Embedding.APIKey, EnvOpenAIKey)
	override(&c.Vector.DatabaseURL, EnvDatabaseURL)

	if v := os.Getenv(EnvEmbeddingDims); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvEmbeddingDims, err)
		}
		c.Embedding.Dimensions = n
	}
	return nil
}

// Validate rejects values the services cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Sync.MaxRetries < 0 {
		errs = append(errs, &domain.ValidationError{Field: "sync.max_retries", Reason: "negative"})
	}
	if c.Sync.Workers <= 0 {
		errs = append(errs, &domain.ValidationError{Field: "sync.workers", Reason: "must be positive"})
	}
	if c.Search.TopK <= 0 {
		errs = append(errs, &domain.ValidationError{Field: "search.top_k", Reason: "must be positive"})
	}
	if c.Search.MinRerankScore < 0 || c.Search.MinRerankScore > 1 {
		errs = append(errs, &domain.ValidationError{Field: "search.min_rerank_score", Reason: "must be within [0, 1]"})
	}
	if !domain.EmbeddingProvider(c.Embedding.Provider).IsValid() {
		errs = append(errs, &domain.ValidationError{Field: "embedding.provider", Reason: fmt.Sprintf("unknown %q", c.Embedding.Provider)})
	}
	switch domain.StoreBackend(c.Store.Backend) {
	case domain.StoreBackendMemory, domain.StoreBackendSQLite:
	default:
		errs = append(errs, &domain.ValidationError{Field: "store.backend", Reason: fmt.Sprintf("unknown %q", c.Store.Backend)})
	}
	switch domain.VectorBackend(c.Vector.Backend) {
	case domain.VectorBackendMemory:
	case domain.VectorBackendPGVector:
		if c.Vector.DatabaseURL == "" {
			errs = append(errs, &domain.ValidationError{Field: "vector.database_url", Reason: "required for pgvector"})
		}
	default:
		errs = append(errs, &domain.ValidationError{Field: "vector.backend", Reason: fmt.Sprintf("unknown %q", c.Vector.Backend)})
	}
	return errors.Join(errs...)
}

// EmbeddingSettings converts the embedding section to the domain type.
func (c *Config) EmbeddingSettings() domain.EmbeddingSettings {
	return domain.EmbeddingSettings{
		Provider:   domain.EmbeddingProvider(c.Embedding.Provider),
		Model:      c.Embedding.Model,
		BaseURL:    c.Embedding.BaseURL,
		APIKey:     c.Embedding.APIKey,
		Dimensions: c.Embedding.Dimensions,
	}
}

// Save writes c to path as TOML with owner-only permissions.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}
