package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/inkwell-ai/inkwell-core/internal/adapters/driven/blob/fs"
	"github.com/inkwell-ai/inkwell-core/internal/adapters/driven/embedding/cached"
	ollamaembed "github.com/inkwell-ai/inkwell-core/internal/adapters/driven/embedding/ollama"
	openaiembed "github.com/inkwell-ai/inkwell-core/internal/adapters/driven/embedding/openai"
	"github.com/inkwell-ai/inkwell-core/internal/adapters/driven/events/lognotify"
	"github.com/inkwell-ai/inkwell-core/internal/adapters/driven/events/webhook"
	"github.com/inkwell-ai/inkwell-core/internal/adapters/driven/extractor"
	"github.com/inkwell-ai/inkwell-core/internal/adapters/driven/llm/anthropic"
	"github.com/inkwell-ai/inkwell-core/internal/adapters/driven/llm/chain"
	"github.com/inkwell-ai/inkwell-core/internal/adapters/driven/llm/gemini"
	ollamallm "github.com/inkwell-ai/inkwell-core/internal/adapters/driven/llm/ollama"
	openaillm "github.com/inkwell-ai/inkwell-core/internal/adapters/driven/llm/openai"
	"github.com/inkwell-ai/inkwell-core/internal/adapters/driven/storage/memory"
	"github.com/inkwell-ai/inkwell-core/internal/adapters/driven/storage/sqlite"
	"github.com/inkwell-ai/inkwell-core/internal/adapters/driven/tokencount"
	vectormemory "github.com/inkwell-ai/inkwell-core/internal/adapters/driven/vector/memory"
	"github.com/inkwell-ai/inkwell-core/internal/adapters/driven/vector/pgvector"
	"github.com/inkwell-ai/inkwell-core/internal/adapters/driven/vector/qdrant"
	"github.com/inkwell-ai/inkwell-core/internal/chunker"
	"github.com/inkwell-ai/inkwell-core/internal/config"
	"github.com/inkwell-ai/inkwell-core/internal/core/ports/driven"
	"github.com/inkwell-ai/inkwell-core/internal/core/services"
	"github.com/inkwell-ai/inkwell-core/internal/logger"
	"github.com/inkwell-ai/inkwell-core/internal/promptfilter"
)

// stack is everything a command needs, with teardown in reverse build
// order.
type stack struct {
	cfg       *config.Config
	library   *services.LibraryService
	ingestion *services.IngestionService
	chat      *services.ChatService
	closers   []func()
}

func (s *stack) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// currentStack is set by ensureServices for commands that need more
// than the driving interfaces (serve starts the workers directly).
var currentStack *stack

// ensureServices builds the full stack on first use. Tests that preset
// the service variables skip construction entirely.
func ensureServices() error {
	if libraryService != nil {
		return nil
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	built, err := buildStack(cfg)
	if err != nil {
		return err
	}

	currentStack = built
	libraryService = built.library
	ingestionService = built.ingestion
	chatService = built.chat
	stackCleanup = func() {
		built.close()
		currentStack = nil
		libraryService = nil
		ingestionService = nil
		chatService = nil
	}
	return nil
}

// buildStack assembles the driven adapters and core services from the
// configuration.
func buildStack(cfg *config.Config) (*stack, error) {
	logger.SetJSON(cfg.Log.JSON)
	if cfg.Log.Verbose {
		logger.SetVerbose(true)
	}

	s := &stack{cfg: cfg}

	// Record stores.
	var (
		books    driven.BookStore
		sessions driven.SessionStore
		budgets  driven.BudgetStore
	)
	switch cfg.Storage.Driver {
	case "memory":
		books = memory.NewBookStore()
		sessionStore := memory.NewSessionStore()
		sessions, budgets = sessionStore, sessionStore
	default:
		store, err := sqlite.NewStore(cfg.Storage.DataDir)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		s.closers = append(s.closers, func() { _ = store.Close() })
		books = store.BookStore()
		sessions = store.SessionStore()
		budgets = store.BudgetStore()
	}

	// Blob store for the raw uploads.
	blobDir := cfg.Storage.BlobDir
	if blobDir == "" && cfg.Storage.DataDir != "" {
		blobDir = filepath.Join(cfg.Storage.DataDir, "blobs")
	}
	blobs, err := fs.NewStore(blobDir)
	if err != nil {
		return nil, fmt.Errorf("open blob store: %w", err)
	}

	// Vector index.
	var index driven.VectorIndex
	switch cfg.Vector.Backend {
	case "qdrant":
		index = qdrant.NewIndex(qdrant.Config{
			BaseURL:          cfg.Vector.Qdrant.URL,
			APIKey:           cfg.Vector.Qdrant.APIKey,
			CollectionPrefix: cfg.Vector.Qdrant.CollectionPrefix,
		})
	case "pgvector":
		setupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		pg, err := pgvector.NewIndex(setupCtx, pgvector.Config{
			ConnString: cfg.Vector.Postgres.DSN,
			TableName:  cfg.Vector.Postgres.Table,
			Dimensions: cfg.Vector.Postgres.Dimensions,
		})
		if err != nil {
			return nil, fmt.Errorf("connect vector index: %w", err)
		}
		s.closers = append(s.closers, func() { _ = pg.Close() })
		index = pg
	default:
		index = vectormemory.NewIndex()
	}

	// Embedder, wrapped in the query cache.
	var embedder driven.EmbeddingService
	switch cfg.Embedding.Provider {
	case "ollama":
		embedder = ollamaembed.NewEmbeddingService(ollamaembed.Config{
			BaseURL:    cfg.Embedding.BaseURL,
			Model:      cfg.Embedding.Model,
			Dimensions: cfg.Embedding.Dimensions,
		})
	default:
		svc, err := openaiembed.NewEmbeddingService(openaiembed.Config{
			APIKey:            cfg.Embedding.APIKey,
			BaseURL:           cfg.Embedding.BaseURL,
			Model:             cfg.Embedding.Model,
			Dimensions:        cfg.Embedding.Dimensions,
			RequestsPerSecond: cfg.Embedding.RequestsPerSecond,
		})
		if err != nil {
			return nil, fmt.Errorf("embedding service: %w", err)
		}
		embedder = svc
	}
	embedder = cached.New(embedder, cfg.Embedding.CacheSize)

	// Event sinks. The log sink is always on; the webhook joins when
	// configured.
	sinks := []driven.EventSink{lognotify.New()}
	if cfg.Events.WebhookURL != "" {
		hook, err := webhook.New(webhook.Config{
			URL:    cfg.Events.WebhookURL,
			Secret: cfg.Events.WebhookSecret,
		})
		if err != nil {
			return nil, fmt.Errorf("webhook sink: %w", err)
		}
		sinks = append(sinks, hook)
	}

	// Content filter.
	filter, err := promptfilter.New(promptfilter.Config{
		Patterns:    cfg.Filter.Patterns,
		Expressions: cfg.Filter.Expressions,
		Refusal:     cfg.Filter.Refusal,
	})
	if err != nil {
		return nil, fmt.Errorf("content filter: %w", err)
	}

	// Text splitter.
	var splitOpts []chunker.Option
	if cfg.Ingestion.ChunkSize > 0 {
		splitOpts = append(splitOpts, chunker.WithChunkSize(cfg.Ingestion.ChunkSize))
	}
	if cfg.Ingestion.ChunkOverlap > 0 {
		splitOpts = append(splitOpts, chunker.WithOverlap(cfg.Ingestion.ChunkOverlap))
	}
	splitter := chunker.New(splitOpts...)

	s.ingestion = services.NewIngestionService(
		books,
		blobs,
		extractor.Default(),
		splitter,
		embedder,
		index,
		nil,
		sinks,
		services.IngestConfig{
			Workers:               cfg.Ingestion.Workers,
			QueueSize:             cfg.Ingestion.QueueSize,
			EmbedBatchSize:        cfg.Ingestion.EmbedBatchSize,
			MaxEmbedAttempts:      cfg.Ingestion.MaxEmbedAttempts,
			EmbedFailureThreshold: cfg.Ingestion.EmbedFailureThreshold,
		},
	)

	s.library = services.NewLibraryService(books, blobs, index, s.ingestion)

	retriever := services.NewRetriever(embedder, index, services.RetrieverConfig{
		TopK:     cfg.Chat.TopK,
		MinScore: cfg.Chat.MinScore,
	})

	generator, err := buildGenerator(&cfg.LLM)
	if err != nil {
		return nil, err
	}

	s.chat = services.NewChatService(
		books,
		sessions,
		budgets,
		retriever,
		services.NewPromptBuilder(cfg.Chat.HistoryWindow),
		generator,
		tokencount.New(),
		filter,
		sinks,
		services.ChatConfig{
			HistoryWindow:     cfg.Chat.HistoryWindow,
			CostEstimate:      cfg.Chat.CostEstimate,
			MaxResponseTokens: cfg.Chat.MaxResponseTokens,
			Temperature:       cfg.Chat.Temperature,
		},
	)

	return s, nil
}

// buildGenerator assembles the provider fallback chain. Even a single
// provider goes through the chain so retry behaviour is uniform.
func buildGenerator(cfg *config.LLMConfig) (driven.LLMService, error) {
	order := cfg.Providers
	if len(order) == 0 {
		// No explicit order: every provider with a key, hosted APIs
		// first, then the local fallback.
		if cfg.OpenAI.APIKey != "" {
			order = append(order, "openai")
		}
		if cfg.Anthropic.APIKey != "" {
			order = append(order, "anthropic")
		}
		if cfg.Gemini.APIKey != "" {
			order = append(order, "gemini")
		}
		if len(order) == 0 {
			order = []string{"ollama"}
		}
	}

	providers := make([]driven.LLMService, 0, len(order))
	for _, name := range order {
		switch name {
		case "openai":
			svc, err := openaillm.NewLLMService(openaillm.Config{
				APIKey:  cfg.OpenAI.APIKey,
				BaseURL: cfg.OpenAI.BaseURL,
				Model:   cfg.OpenAI.Model,
			})
			if err != nil {
				return nil, fmt.Errorf("openai provider: %w", err)
			}
			providers = append(providers, svc)
		case "anthropic":
			svc, err := anthropic.NewLLMService(anthropic.Config{
				APIKey:  cfg.Anthropic.APIKey,
				BaseURL: cfg.Anthropic.BaseURL,
				Model:   cfg.Anthropic.Model,
			})
			if err != nil {
				return nil, fmt.Errorf("anthropic provider: %w", err)
			}
			providers = append(providers, svc)
		case "gemini":
			svc, err := gemini.NewLLMService(gemini.Config{
				APIKey:  cfg.Gemini.APIKey,
				BaseURL: cfg.Gemini.BaseURL,
				Model:   cfg.Gemini.Model,
			})
			if err != nil {
				return nil, fmt.Errorf("gemini provider: %w", err)
			}
			providers = append(providers, svc)
		case "ollama":
			providers = append(providers, ollamallm.NewLLMService(ollamallm.LLMConfig{
				BaseURL: cfg.Ollama.BaseURL,
				Model:   cfg.Ollama.Model,
			}))
		}
	}

	return chain.New(chain.Config{}, providers...)
}
