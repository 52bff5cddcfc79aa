package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/matsen/docchat/internal/config"
	"github.com/matsen/docchat/internal/embed"
	"github.com/matsen/docchat/internal/index"
	"github.com/matsen/docchat/internal/index/qdrant"
	"github.com/matsen/docchat/internal/index/sqlitestore"
	"github.com/matsen/docchat/internal/llm"
	"github.com/matsen/docchat/internal/rag"
)

// app bundles everything a command needs. Service handles are constructed
// once here and passed by reference; nothing is global.
type app struct {
	cfg     *config.Config
	service *rag.Service
	logger  *slog.Logger
	closer  func() error
}

// newApp loads configuration and wires the store backend, model clients,
// cache, and service. The returned closer releases the store.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	// Logs go to stderr so command output on stdout stays machine-readable.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	var (
		store  index.Store
		closer = func() error { return nil }
	)
	switch cfg.Store.Backend {
	case config.BackendSQLite:
		s, err := sqlitestore.Open(cfg.Store.SQLitePath, cfg.Store.Collection, cfg.Ollama.Dimension)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite store: %w", err)
		}
		store = s
		closer = s.Close
	default:
		store = qdrant.New(cfg.Store.URL(), cfg.Store.Collection, cfg.Ollama.Dimension)
	}

	if err := store.EnsureCollection(ctx); err != nil {
		closer()
		return nil, fmt.Errorf("preparing collection: %w", err)
	}

	embedder := embed.NewOllamaProvider(cfg.Ollama.EmbeddingModel, cfg.Ollama.Dimension,
		embed.WithBaseURL(cfg.Ollama.URL))
	generator := llm.NewOllamaGenerator(cfg.Ollama.URL, cfg.Ollama.GenerationModel, llm.Options{
		Temperature: cfg.Generation.Temperature,
		TopP:        cfg.Generation.TopP,
		MaxTokens:   cfg.Generation.MaxTokens,
	})
	cache := embed.NewCache(cfg.CachePath)

	return &app{
		cfg:     cfg,
		service: rag.New(embedder, generator, store, cache, cfg),
		logger:  logger,
		closer:  closer,
	}, nil
}

// close releases resources held by the app.
func (a *app) close() {
	if err := a.closer(); err != nil {
		a.logger.Error("closing store", "error", err)
	}
}
