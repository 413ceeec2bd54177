package cmd

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/mfarouk/repochat/internal/cache"
	"github.com/mfarouk/repochat/internal/chat"
	"github.com/mfarouk/repochat/internal/config"
	"github.com/mfarouk/repochat/internal/db"
	"github.com/mfarouk/repochat/internal/embeddings"
	"github.com/mfarouk/repochat/internal/embedindex"
	"github.com/mfarouk/repochat/internal/gitrepo"
	"github.com/mfarouk/repochat/internal/indexer"
	"github.com/mfarouk/repochat/internal/llm"
	"github.com/mfarouk/repochat/internal/progress"
	"github.com/mfarouk/repochat/internal/summarize"
	"github.com/mfarouk/repochat/internal/vectordb"
)

// app bundles the wired-up services the commands share.
type app struct {
	cfg        *config.Config
	db         *db.DB
	repos      *db.RepoStore
	sessions   *db.ChatStore
	store      vectordb.VectorStore
	workspace  *gitrepo.Workspace
	summarizer *summarize.Service
	embedSvc   *embedindex.Service
	pipeline   *indexer.Pipeline
	chat       *chat.Service
}

// buildApp loads the config and wires every service. The reporter controls
// indexing progress output and may be nil.
func buildApp(ctx context.Context, reporter progress.Reporter) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	database, err := db.Open(filepath.Join(cfg.DataDir, "repochat.db"))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Drop expired cache entries on startup.
	if _, err := cache.Purge(ctx, database); err != nil {
		database.Close()
		return nil, fmt.Errorf("purging cache: %w", err)
	}

	provider, err := llm.NewProvider(string(cfg.Provider), cfg.Model)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("creating LLM provider: %w", err)
	}

	embedder, err := createEmbedderFromConfig(cfg)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("creating embedder: %w", err)
	}

	store, err := vectordb.NewChromemStore(embedder)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("creating vector store: %w", err)
	}
	if err := indexer.LoadIndex(ctx, store, cfg.DataDir); err != nil {
		database.Close()
		return nil, err
	}

	workspace, err := gitrepo.NewWorkspace(filepath.Join(cfg.DataDir, "repos"))
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("creating workspace: %w", err)
	}

	opts := cfg.EngineOptions()

	summarizer, err := summarize.New(provider, cfg.Model, opts)
	if err != nil {
		database.Close()
		return nil, err
	}
	summarizer.SetCache(cache.New[string](database, "summaries"))

	embedSvc, err := embedindex.New(embedder, opts)
	if err != nil {
		database.Close()
		return nil, err
	}
	embedSvc.SetCache(cache.New[[]float32](database, "embeddings"))

	repos := db.NewRepoStore(database)
	sessions := db.NewChatStore(database)

	return &app{
		cfg:        cfg,
		db:         database,
		repos:      repos,
		sessions:   sessions,
		store:      store,
		workspace:  workspace,
		summarizer: summarizer,
		embedSvc:   embedSvc,
		pipeline:   indexer.NewPipeline(repos, store, summarizer, embedSvc, cfg, reporter),
		chat:       chat.New(store, provider, cfg.Model, sessions),
	}, nil
}

func (a *app) Close() {
	a.db.Close()
}

// createEmbedderFromConfig creates an embeddings.Embedder based on config.
// The embedding provider defaults to the chat provider.
func createEmbedderFromConfig(cfg *config.Config) (embeddings.Embedder, error) {
	provider := cfg.EmbeddingProvider
	if provider == "" {
		provider = cfg.Provider
	}
	return embeddings.NewEmbedder(string(provider), cfg.EmbeddingModel)
}

// loadConfig loads and validates the config, providing a user-friendly error.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w\nRun `repochat init` to create a config file", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
