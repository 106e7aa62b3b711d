package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "inkwell.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)

	assert.Equal(t, ":8000", cfg.Server.Addr)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, "memory", cfg.Vector.Backend)
	assert.Equal(t, "openai", cfg.Embedding.Provider)
}

func TestLoad_ParsesFile(t *testing.T) {
	path := writeConfig(t, `
[server]
addr = ":9090"
body_limit_mb = 10

[storage]
driver = "memory"

[vector]
backend = "qdrant"

[vector.qdrant]
url = "http://qdrant.internal:6333"
collection_prefix = "lib_"

[llm]
providers = ["anthropic", "openai"]

[llm.anthropic]
model = "claude-3-5-haiku-latest"

[ingestion]
workers = 4
chunk_size = 800
chunk_overlap = 120

[chat]
history_window = 5
temperature = 0.4

[filter]
patterns = ["forget everything"]

[inbox]
enabled = true
dir = "/srv/inbox"
owner = "shelf"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 10<<20, cfg.Server.BodyLimit())
	assert.Equal(t, "memory", cfg.Storage.Driver)
	assert.Equal(t, "qdrant", cfg.Vector.Backend)
	assert.Equal(t, "http://qdrant.internal:6333", cfg.Vector.Qdrant.URL)
	assert.Equal(t, "lib_", cfg.Vector.Qdrant.CollectionPrefix)
	assert.Equal(t, []string{"anthropic", "openai"}, cfg.LLM.Providers)
	assert.Equal(t, "claude-3-5-haiku-latest", cfg.LLM.Anthropic.Model)
	assert.Equal(t, 4, cfg.Ingestion.Workers)
	assert.Equal(t, 800, cfg.Ingestion.ChunkSize)
	assert.Equal(t, 5, cfg.Chat.HistoryWindow)
	assert.InDelta(t, 0.4, cfg.Chat.Temperature, 1e-9)
	assert.Equal(t, []string{"forget everything"}, cfg.Filter.Patterns)
	assert.True(t, cfg.Inbox.Enabled)
	assert.Equal(t, "shelf", cfg.Inbox.Owner)
}

func TestLoad_MalformedFile(t *testing.T) {
	path := writeConfig(t, "[server\naddr=")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PORT", "3000")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("ANTHROPIC_API_KEY", "ak-test")
	t.Setenv("QDRANT_URL", "http://qdrant.env:6333")
	t.Setenv("QDRANT_API_KEY", "qk-test")
	t.Setenv("WEBHOOK_SECRET", "hook")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)

	assert.Equal(t, ":3000", cfg.Server.Addr)
	assert.Equal(t, "sk-test", cfg.Embedding.APIKey)
	assert.Equal(t, "sk-test", cfg.LLM.OpenAI.APIKey)
	assert.Equal(t, "ak-test", cfg.LLM.Anthropic.APIKey)
	assert.Equal(t, "http://qdrant.env:6333", cfg.Vector.Qdrant.URL)
	assert.Equal(t, "qk-test", cfg.Vector.Qdrant.APIKey)
	assert.Equal(t, "hook", cfg.Events.WebhookSecret)
}

func TestLoad_GeminiKeyFallsBackToGoogleKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "gk-test")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)

	assert.Equal(t, "gk-test", cfg.LLM.Gemini.APIKey)
}

func TestLoad_RejectsUnknownDriver(t *testing.T) {
	path := writeConfig(t, `
[storage]
driver = "oracle"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown storage driver")
}

func TestLoad_RejectsUnknownLLMProvider(t *testing.T) {
	path := writeConfig(t, `
[llm]
providers = ["openai", "watson"]
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown llm provider "watson"`)
}

func TestLoad_PgvectorNeedsDSN(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	path := writeConfig(t, `
[vector]
backend = "pgvector"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestLoad_InboxNeedsOwner(t *testing.T) {
	path := writeConfig(t, `
[inbox]
enabled = true
dir = "/srv/inbox"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "owner")
}
