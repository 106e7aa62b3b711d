// Package config loads server configuration from a TOML file with
// environment overrides. Secrets (API keys, connection strings) come
// from the environment only; a .env file is honoured when present.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// DefaultPath is where the server looks for its config file.
const DefaultPath = "inkwell.toml"

// Config is the full server configuration.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Storage   StorageConfig   `toml:"storage"`
	Vector    VectorConfig    `toml:"vector"`
	Embedding EmbeddingConfig `toml:"embedding"`
	LLM       LLMConfig       `toml:"llm"`
	Ingestion IngestionConfig `toml:"ingestion"`
	Chat      ChatConfig      `toml:"chat"`
	Filter    FilterConfig    `toml:"filter"`
	Inbox     InboxConfig     `toml:"inbox"`
	Events    EventsConfig    `toml:"events"`
	Log       LogConfig       `toml:"log"`
}

// ServerConfig tunes the HTTP listener.
type ServerConfig struct {
	// Addr is the listen address (default: ":8000").
	Addr string `toml:"addr"`

	// BodyLimitMB caps upload size in MiB (default: 50).
	BodyLimitMB int `toml:"body_limit_mb"`
}

// StorageConfig selects the record and blob stores.
type StorageConfig struct {
	// Driver is "sqlite" or "memory" (default: sqlite).
	Driver string `toml:"driver"`

	// DataDir holds the SQLite database (default: ./data).
	DataDir string `toml:"data_dir"`

	// BlobDir holds uploaded files (default: <data_dir>/blobs).
	BlobDir string `toml:"blob_dir"`
}

// VectorConfig selects the vector index backend.
type VectorConfig struct {
	// Backend is "memory", "qdrant" or "pgvector" (default: memory).
	Backend string `toml:"backend"`

	Qdrant   QdrantConfig   `toml:"qdrant"`
	Postgres PostgresConfig `toml:"postgres"`
}

// QdrantConfig points at a Qdrant instance. The API key comes from
// QDRANT_API_KEY.
type QdrantConfig struct {
	URL              string `toml:"url"`
	APIKey           string `toml:"-"`
	CollectionPrefix string `toml:"collection_prefix"`
}

// PostgresConfig points at a pgvector-enabled Postgres. The connection
// string comes from DATABASE_URL.
type PostgresConfig struct {
	DSN        string `toml:"-"`
	Table      string `toml:"table"`
	Dimensions int    `toml:"dimensions"`
}

// EmbeddingConfig selects and tunes the embedding provider. The OpenAI
// key comes from OPENAI_API_KEY.
type EmbeddingConfig struct {
	// Provider is "openai" or "ollama" (default: openai).
	Provider string `toml:"provider"`

	Model             string  `toml:"model"`
	BaseURL           string  `toml:"base_url"`
	APIKey            string  `toml:"-"`
	Dimensions        int     `toml:"dimensions"`
	RequestsPerSecond float64 `toml:"requests_per_second"`

	// CacheSize bounds the embedding cache (default: 4096 entries).
	CacheSize int `toml:"cache_size"`
}

// LLMConfig declares the generation fallback chain. Providers are
// tried in list order; keys come from OPENAI_API_KEY, ANTHROPIC_API_KEY
// and GEMINI_API_KEY.
type LLMConfig struct {
	// Providers orders the chain (default: every provider with a key,
	// openai first).
	Providers []string `toml:"providers"`

	OpenAI    ProviderConfig `toml:"openai"`
	Anthropic ProviderConfig `toml:"anthropic"`
	Gemini    ProviderConfig `toml:"gemini"`
	Ollama    ProviderConfig `toml:"ollama"`
}

// ProviderConfig tunes one generation provider.
type ProviderConfig struct {
	Model   string `toml:"model"`
	BaseURL string `toml:"base_url"`
	APIKey  string `toml:"-"`
}

// IngestionConfig tunes the ingestion pipeline.
type IngestionConfig struct {
	Workers               int     `toml:"workers"`
	QueueSize             int     `toml:"queue_size"`
	ChunkSize             int     `toml:"chunk_size"`
	ChunkOverlap          int     `toml:"chunk_overlap"`
	EmbedBatchSize        int     `toml:"embed_batch_size"`
	MaxEmbedAttempts      int     `toml:"max_embed_attempts"`
	EmbedFailureThreshold float64 `toml:"embed_failure_threshold"`
}

// ChatConfig tunes the conversation pipeline.
type ChatConfig struct {
	HistoryWindow     int     `toml:"history_window"`
	CostEstimate      int     `toml:"cost_estimate"`
	MaxResponseTokens int     `toml:"max_response_tokens"`
	Temperature       float64 `toml:"temperature"`
	TopK              int     `toml:"top_k"`
	MinScore          float64 `toml:"min_score"`
}

// FilterConfig extends the disallowed-content list.
type FilterConfig struct {
	Patterns    []string `toml:"patterns"`
	Expressions []string `toml:"expressions"`
	Refusal     string   `toml:"refusal"`
}

// InboxConfig enables the drop-directory watcher.
type InboxConfig struct {
	Enabled            bool   `toml:"enabled"`
	Dir                string `toml:"dir"`
	Owner              string `toml:"owner"`
	SettleDelaySeconds int    `toml:"settle_delay_seconds"`
}

// EventsConfig wires pipeline events to a webhook. The secret comes
// from WEBHOOK_SECRET.
type EventsConfig struct {
	WebhookURL    string `toml:"webhook_url"`
	WebhookSecret string `toml:"-"`
}

// LogConfig tunes log output.
type LogConfig struct {
	Verbose bool `toml:"verbose"`
	JSON    bool `toml:"json"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server:  ServerConfig{Addr: ":8000", BodyLimitMB: 50},
		Storage: StorageConfig{Driver: "sqlite", DataDir: "data"},
		Vector:  VectorConfig{Backend: "memory"},
		Embedding: EmbeddingConfig{
			Provider: "openai",
		},
	}
}

// Load reads the config file at path, falling back to defaults when
// the file does not exist. Environment variables override afterwards.
func Load(path string) (*Config, error) {
	// A .env beside the binary feeds the overrides below. Missing is
	// fine; production injects real environment variables.
	_ = godotenv.Load()

	cfg := Default()

	if path == "" {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// No config file yet, run on defaults.
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv layers environment variables over the file values. Secrets
// are environment-only.
func (c *Config) applyEnv() {
	if v := os.Getenv("INKWELL_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("PORT"); v != "" {
		c.Server.Addr = ":" + v
	}
	if v := os.Getenv("INKWELL_DATA_DIR"); v != "" {
		c.Storage.DataDir = v
	}

	if v := os.Getenv("QDRANT_URL"); v != "" {
		c.Vector.Qdrant.URL = v
	}
	c.Vector.Qdrant.APIKey = os.Getenv("QDRANT_API_KEY")
	c.Vector.Postgres.DSN = os.Getenv("DATABASE_URL")

	c.Embedding.APIKey = os.Getenv("OPENAI_API_KEY")
	c.LLM.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	c.LLM.Anthropic.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	c.LLM.Gemini.APIKey = os.Getenv("GEMINI_API_KEY")
	if c.LLM.Gemini.APIKey == "" {
		c.LLM.Gemini.APIKey = os.Getenv("GOOGLE_API_KEY")
	}

	if v := os.Getenv("WEBHOOK_URL"); v != "" {
		c.Events.WebhookURL = v
	}
	c.Events.WebhookSecret = os.Getenv("WEBHOOK_SECRET")

	if v := os.Getenv("INKWELL_VERBOSE"); v != "" {
		verbose, err := strconv.ParseBool(v)
		if err == nil {
			c.Log.Verbose = verbose
		}
	}
}

// validate rejects combinations the server cannot start with.
func (c *Config) validate() error {
	switch c.Storage.Driver {
	case "", "sqlite", "memory":
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}

	switch c.Vector.Backend {
	case "", "memory", "qdrant":
	case "pgvector":
		if c.Vector.Postgres.DSN == "" {
			return fmt.Errorf("vector backend pgvector needs DATABASE_URL")
		}
	default:
		return fmt.Errorf("unknown vector backend %q", c.Vector.Backend)
	}

	switch c.Embedding.Provider {
	case "", "openai", "ollama":
	default:
		return fmt.Errorf("unknown embedding provider %q", c.Embedding.Provider)
	}

	for _, name := range c.LLM.Providers {
		switch name {
		case "openai", "anthropic", "gemini", "ollama":
		default:
			return fmt.Errorf("unknown llm provider %q", name)
		}
	}

	if c.Inbox.Enabled && c.Inbox.Owner == "" {
		return fmt.Errorf("inbox needs an owner")
	}
	return nil
}

// BodyLimit returns the upload cap in bytes.
func (c *ServerConfig) BodyLimit() int {
	return c.BodyLimitMB << 20
}
