package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/victorgambert/repoindex/internal/cache"
	"github.com/victorgambert/repoindex/internal/config"
	"github.com/victorgambert/repoindex/internal/embed"
	"github.com/victorgambert/repoindex/internal/errors"
	"github.com/victorgambert/repoindex/internal/store"
	"github.com/victorgambert/repoindex/internal/vcs"
)

// embedCacheSize bounds the per-process embedding cache.
const embedCacheSize = 4096

// app holds the wired components shared by the CLI commands.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	vectors  store.VectorStore
	metadata store.MetadataStore
	keywords store.KeywordIndex
	embedder embed.Embedder
	cache    cache.QueryCache
}

// newApp wires stores and providers from config. Components that fail to
// connect fail the command immediately rather than at first use.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger := slog.Default()

	vectors, err := store.NewQdrantStore(ctx, store.QdrantConfig{
		Host:       cfg.VectorStore.Host,
		Port:       cfg.VectorStore.Port,
		Collection: cfg.VectorStore.Collection,
		Dimensions: cfg.VectorStore.Dimensions,
	})
	if err != nil {
		return nil, fmt.Errorf("connect vector store: %w", err)
	}

	metadata, err := store.NewSQLiteStore(cfg.Metadata.Path)
	if err != nil {
		vectors.Close()
		return nil, fmt.Errorf("open metadata store: %w", err)
	}

	keywordPath := filepath.Join(filepath.Dir(cfg.Metadata.Path), "keyword.bleve")
	keywords, err := store.NewBleveKeywordIndex(keywordPath)
	if err != nil {
		metadata.Close()
		vectors.Close()
		return nil, fmt.Errorf("open keyword index: %w", err)
	}

	client := embed.NewClient(embed.Config{
		BaseURL:    cfg.Embedding.BaseURL,
		APIKey:     cfg.Embedding.APIKey,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.VectorStore.Dimensions,
		Timeout:    time.Duration(cfg.Embedding.TimeoutSeconds) * time.Second,
	})
	embedder := embed.NewCachedEmbedder(
		embed.NewRetryingEmbedder(client, errors.DefaultRetryConfig()),
		embedCacheSize,
	)

	queryCache, err := newQueryCache(ctx, cfg)
	if err != nil {
		logger.Warn("query_cache_unavailable", slog.String("error", err.Error()))
		queryCache = cache.NewMemoryCache(0, cfg.Cache.TTL)
	}

	return &app{
		cfg:      cfg,
		logger:   logger,
		vectors:  vectors,
		metadata: metadata,
		keywords: keywords,
		embedder: embedder,
		cache:    queryCache,
	}, nil
}

func newQueryCache(ctx context.Context, cfg *config.Config) (cache.QueryCache, error) {
	if cfg.Cache.Backend == "redis" {
		addr := fmt.Sprintf("%s:%d", cfg.Cache.Host, cfg.Cache.Port)
		return cache.NewRedisCache(ctx, addr, "", 0)
	}
	return cache.NewMemoryCache(0, cfg.Cache.TTL), nil
}

func newVCSClient() vcs.Client {
	return vcs.NewGitHubClient(vcs.StaticToken(os.Getenv("REPOINDEX_GITHUB_TOKEN")))
}

func (a *app) Close() {
	a.cache.Close()
	a.embedder.Close()
	a.keywords.Close()
	a.metadata.Close()
	a.vectors.Close()
}
