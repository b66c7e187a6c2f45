// Package config loads manualrag configuration from YAML, .env files and
// environment variables, in that order of precedence (lowest first).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/dshills/manualrag/internal/logger"
)

// DefaultFileName is looked up in the working directory when no path is given
const DefaultFileName = "manualrag.yaml"

// Environment overrides
const (
	EnvDBPath            = "MANUALRAG_DB_PATH"
	EnvEmbeddingProvider = "MANUALRAG_EMBEDDING_PROVIDER"
	EnvOpenAIAPIKey      = "OPENAI_API_KEY"
	EnvJinaAPIKey        = "JINA_API_KEY"
	EnvCommercialAPIKey  = "MANUALRAG_COMMERCIAL_API_KEY"
	EnvLLMAPIKey         = "MANUALRAG_LLM_API_KEY"
	EnvLogLevel          = "MANUALRAG_LOG_LEVEL"
)

// Cache backends
const (
	CacheMemory = "memory"
	CacheBolt   = "bolt"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds all configuration for manualrag.
type Config struct {
	Storage     StorageConfig     `yaml:"storage"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	Chunking    ChunkingConfig    `yaml:"chunking"`
	Acquisition AcquisitionConfig `yaml:"acquisition"`
	LLM         LLMConfig         `yaml:"llm"`
	Indexing    IndexingConfig    `yaml:"indexing"`
	Logging     LoggingConfig     `yaml:"logging"`
}

type StorageConfig struct {
	DBPath string `yaml:"db_path"`
}

// EmbeddingConfig selects the embedding provider. An empty provider is
// resolved from whichever API key is present, falling back to local.
type EmbeddingConfig struct {
	Provider  string        `yaml:"provider"` // jina, openai, local
	APIKey    string        `yaml:"api_key,omitempty"`
	BaseURL   string        `yaml:"base_url,omitempty"`
	Model     string        `yaml:"model,omitempty"`
	CacheSize int           `yaml:"cache_size"`
	Timeout   time.Duration `yaml:"timeout"`
}

type RetrievalConfig struct {
	DefaultLimit   int           `yaml:"default_limit"`
	LexicalWeight  float64       `yaml:"lexical_weight"`
	SemanticWeight float64       `yaml:"semantic_weight"`
	RRFConstant    int           `yaml:"rrf_k"`
	Threshold      float64       `yaml:"similarity_threshold"`
	CacheSize      int           `yaml:"cache_size"`
	CacheTTL       time.Duration `yaml:"cache_ttl"`
}

type ChunkingConfig struct {
	MinTextLength int `yaml:"min_text_length"`
	OverlapTokens int `yaml:"overlap_tokens"`
}

type TimeoutsConfig struct {
	Commercial   time.Duration `yaml:"commercial"`
	Manufacturer time.Duration `yaml:"manufacturer"`
	AIDiscovery  time.Duration `yaml:"ai_discovery"`
	Verify       time.Duration `yaml:"verify"`
	Download     time.Duration `yaml:"download"`
}

type CommercialConfig struct {
	BaseURL           string  `yaml:"base_url"`
	APIKey            string  `yaml:"api_key,omitempty"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

type AcquisitionConfig struct {
	Timeouts      TimeoutsConfig   `yaml:"timeouts"`
	CacheBackend  string           `yaml:"cache_backend"`
	CachePath     string           `yaml:"cache_path"`
	CacheTTL      time.Duration    `yaml:"cache_ttl"`
	BlobDir       string           `yaml:"blob_dir"`
	BlobBaseURL   string           `yaml:"blob_base_url"`
	Commercial    CommercialConfig `yaml:"commercial"`
	Manufacturers bool             `yaml:"manufacturers"`
	SearchURL     string           `yaml:"search_url"`
}

// LLMConfig configures AI-assisted discovery; it is skipped without a key
type LLMConfig struct {
	APIKey  string        `yaml:"api_key,omitempty"`
	BaseURL string        `yaml:"base_url,omitempty"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

type IndexingConfig struct {
	Workers     int           `yaml:"workers"`
	QueueSize   int           `yaml:"queue_size"`
	TaskTimeout time.Duration `yaml:"task_timeout"`
	PDFToText   string        `yaml:"pdftotext"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			DBPath: filepath.Join(".manualrag", "manuals.db"),
		},
		Embedding: EmbeddingConfig{
			CacheSize: 10000,
			Timeout:   30 * time.Second,
		},
		Retrieval: RetrievalConfig{
			DefaultLimit:   10,
			LexicalWeight:  0.4,
			SemanticWeight: 0.6,
			RRFConstant:    60,
			Threshold:      0.65,
			CacheSize:      1000,
			CacheTTL:       time.Hour,
		},
		Chunking: ChunkingConfig{
			MinTextLength: 200,
			OverlapTokens: 40,
		},
		Acquisition: AcquisitionConfig{
			Timeouts: TimeoutsConfig{
				Commercial:   10 * time.Second,
				Manufacturer: 8 * time.Second,
				AIDiscovery:  20 * time.Second,
				Verify:       8 * time.Second,
				Download:     20 * time.Second,
			},
			CacheBackend: CacheBolt,
			CachePath:    filepath.Join(".manualrag", "cache.db"),
			CacheTTL:     30 * 24 * time.Hour,
			BlobDir:      filepath.Join(".manualrag", "pdfs"),
			Commercial: CommercialConfig{
				RequestsPerSecond: 2,
				Burst:             4,
			},
			Manufacturers: true,
			SearchURL:     "https://www.google.com/search",
		},
		LLM: LLMConfig{
			Model:   "gpt-4o-mini",
			Timeout: 60 * time.Second,
		},
		Indexing: IndexingConfig{
			Workers:     2,
			QueueSize:   64,
			TaskTimeout: 10 * time.Minute,
			PDFToText:   "pdftotext",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads path over the defaults, loads .env from the working directory
// if present, applies environment overrides and validates the result. An
// empty path means DefaultFileName; a missing file is not an error.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultFileName
	}

	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, err
	}

	// .env never overrides variables already set in the environment
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg.ApplyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overlays environment values read through getenv
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv(EnvDBPath); v != "" {
		c.Storage.DBPath = v
	}
	if v := getenv(EnvEmbeddingProvider); v != "" {
		c.Embedding.Provider = strings.ToLower(v)
	}
	if c.Embedding.Provider == "" {
		switch {
		case getenv(EnvJinaAPIKey) != "":
			c.Embedding.Provider = "jina"
		case getenv(EnvOpenAIAPIKey) != "":
			c.Embedding.Provider = "openai"
		default:
			c.Embedding.Provider = "local"
		}
	}
	if c.Embedding.APIKey == "" {
		switch c.Embedding.Provider {
		case "jina":
			c.Embedding.APIKey = getenv(EnvJinaAPIKey)
		case "openai":
			c.Embedding.APIKey = getenv(EnvOpenAIAPIKey)
		}
	}
	if v := getenv(EnvCommercialAPIKey); v != "" {
		c.Acquisition.Commercial.APIKey = v
	}
	if v := getenv(EnvLLMAPIKey); v != "" {
		c.LLM.APIKey = v
	} else if c.LLM.APIKey == "" {
		c.LLM.APIKey = getenv(EnvOpenAIAPIKey)
	}
	if v := getenv(EnvLogLevel); v != "" {
		c.Logging.Level = v
	}
}

// Validate checks the configuration is usable
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
		}
	}

	check(c.Storage.DBPath != "", "storage.db_path is required")

	switch c.Embedding.Provider {
	case "jina", "openai":
		check(c.Embedding.APIKey != "", "embedding provider %s needs an API key", c.Embedding.Provider)
	case "local", "":
	default:
		check(false, "unknown embedding provider %q", c.Embedding.Provider)
	}

	r := c.Retrieval
	check(r.LexicalWeight >= 0 && r.SemanticWeight >= 0, "retrieval weights must be non-negative")
	check(r.LexicalWeight+r.SemanticWeight > 0, "retrieval weights cannot both be zero")
	check(r.RRFConstant > 0, "retrieval.rrf_k must be positive")
	check(r.Threshold >= 0 && r.Threshold <= 1, "retrieval.similarity_threshold must be within [0,1]")
	check(r.DefaultLimit > 0, "retrieval.default_limit must be positive")

	check(c.Chunking.MinTextLength >= 0, "chunking.min_text_length must be non-negative")
	check(c.Chunking.OverlapTokens >= 0, "chunking.overlap_tokens must be non-negative")

	a := c.Acquisition
	t := a.Timeouts
	check(t.Commercial > 0 && t.Manufacturer > 0 && t.AIDiscovery > 0 && t.Verify > 0 && t.Download > 0,
		"acquisition timeouts must be positive")
	switch a.CacheBackend {
	case CacheMemory:
	case CacheBolt:
		check(a.CachePath != "", "acquisition.cache_path is required for the bolt cache")
	default:
		check(false, "unknown cache backend %q", a.CacheBackend)
	}
	check(a.CacheTTL > 0, "acquisition.cache_ttl must be positive")
	check(a.SearchURL != "", "acquisition.search_url is required")

	check(c.Indexing.Workers > 0, "indexing.workers must be positive")
	check(c.Indexing.QueueSize > 0, "indexing.queue_size must be positive")

	if _, err := logger.ParseLevel(c.Logging.Level); err != nil {
		check(false, "%v", err)
	}

	return errors.Join(errs...)
}

// Save writes the configuration as YAML, creating parent directories.
// Secrets are written only if they were set in the file or environment.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// LoggerConfig adapts the logging section
func (c *Config) LoggerConfig() logger.Config {
	return logger.Config{Level: c.Logging.Level, Format: c.Logging.Format}
}
