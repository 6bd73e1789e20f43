// Package main implements the newsragd server: a retrieval-augmented
// chat backend over live news feeds.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vooshlabs/newsrag/internal/broadcast"
	"github.com/vooshlabs/newsrag/internal/cache"
	"github.com/vooshlabs/newsrag/internal/config"
	"github.com/vooshlabs/newsrag/internal/embeddings"
	"github.com/vooshlabs/newsrag/internal/feeds"
	"github.com/vooshlabs/newsrag/internal/generation"
	"github.com/vooshlabs/newsrag/internal/httpapi"
	"github.com/vooshlabs/newsrag/internal/index"
	"github.com/vooshlabs/newsrag/internal/logging"
	"github.com/vooshlabs/newsrag/internal/pipeline"
	"github.com/vooshlabs/newsrag/internal/session"
)

var (
	configPath string
	version    = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "newsragd",
	Short:   "Retrieval-augmented news chat server",
	Long:    `newsragd indexes news articles from RSS feeds into a vector store and answers chat questions grounded in the retrieved articles.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config file (optional)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(refreshCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the chat API server",
	Long: `Run the HTTP chat API server.

The news index is built in the background at startup; chat requests
arriving before the first index completes receive 503.`,
	RunE: runServe,
}

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Rebuild the news index once and exit",
	RunE:  runRefresh,
}

func loadConfig() (*config.Config, *zap.Logger, error) {
	// Missing .env is fine; environment may be set externally.
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, nil, fmt.Errorf("creating logger: %w", err)
	}
	return cfg, logger, nil
}

// buildPipeline wires the fetcher, embedder, index, and generator. The
// generator may be nil for ingest-only use.
func buildPipeline(cfg *config.Config, generator pipeline.Generator, logger *zap.Logger) (*pipeline.Pipeline, index.Client, error) {
	sources := make([]feeds.Source, len(cfg.Feeds.Sources))
	for i, s := range cfg.Feeds.Sources {
		sources[i] = feeds.Source{Name: s.Name, URL: s.URL}
	}
	fetcher := feeds.NewFetcher(sources, logger, feeds.WithMinContentLen(cfg.Feeds.MinContentLen))

	embedder, err := embeddings.NewFastEmbedProvider(embeddings.FastEmbedConfig{
		Model:    cfg.Embeddings.Model,
		CacheDir: cfg.Embeddings.CacheDir,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("loading embedding model: %w", err)
	}

	idx, err := index.NewClient(index.Config{
		Backend: cfg.Index.Backend,
		Qdrant: index.QdrantConfig{
			Host:   cfg.Index.Qdrant.Host,
			Port:   cfg.Index.Qdrant.Port,
			UseTLS: cfg.Index.Qdrant.UseTLS,
			APIKey: cfg.Index.Qdrant.APIKey,
		},
		Chromem: index.ChromemConfig{Path: cfg.Index.Chromem.Path},
	}, logger)
	if err != nil {
		embedder.Close()
		return nil, nil, fmt.Errorf("creating index client: %w", err)
	}

	p, err := pipeline.New(fetcher, embedder, idx, generator, pipeline.Config{
		Collection: cfg.Index.Collection,
		Dimension:  embedder.Dimension(),
		FetchLimit: cfg.Pipeline.FetchLimit,
		TopK:       cfg.Pipeline.TopK,
	}, logger)
	if err != nil {
		idx.Close()
		embedder.Close()
		return nil, nil, fmt.Errorf("creating pipeline: %w", err)
	}
	return p, idx, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()

	generator, err := generation.NewGemini(generation.GeminiConfig{
		APIKey:  cfg.Generation.APIKey,
		Model:   cfg.Generation.Model,
		BaseURL: cfg.Generation.BaseURL,
	})
	if err != nil {
		return fmt.Errorf("creating generation client: %w", err)
	}

	p, idx, err := buildPipeline(cfg, generator, logger)
	if err != nil {
		return err
	}
	defer idx.Close()

	var sessions session.Store
	if cfg.Database.DSN != "" {
		store, err := session.Open(cfg.Database.DSN)
		if err != nil {
			return fmt.Errorf("opening session store: %w", err)
		}
		sessions = store
		logger.Info("using postgres session store")
	} else {
		sessions = session.NewMemoryStore()
		logger.Warn("no database DSN configured, sessions are in-memory only")
	}

	var transcriptCache cache.Cache
	if cfg.Redis.URL != "" {
		redisCache, err := cache.NewRedisCache(cmd.Context(), cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("connecting transcript cache: %w", err)
		}
		defer redisCache.Close()
		transcriptCache = redisCache
		logger.Info("transcript cache enabled")
	}

	var broadcaster broadcast.Broadcaster = broadcast.Noop{}
	if cfg.NATS.URL != "" {
		natsBroadcaster, err := broadcast.NewNATSBroadcaster(cfg.NATS.URL, logger)
		if err != nil {
			return fmt.Errorf("connecting broadcaster: %w", err)
		}
		broadcaster = natsBroadcaster
		logger.Info("answer broadcasting enabled", zap.String("subject", cfg.NATS.Subject))
	}
	defer broadcaster.Close()

	server, err := httpapi.NewServer(p, sessions, transcriptCache, broadcaster, logger, &httpapi.Config{
		Host:             cfg.Server.Host,
		Port:             cfg.Server.Port,
		CacheTTL:         time.Duration(cfg.Redis.TTLSeconds) * time.Second,
		BroadcastSubject: cfg.NATS.Subject,
	})
	if err != nil {
		return fmt.Errorf("creating http server: %w", err)
	}

	// Index in the background so the API comes up immediately; queries
	// before the first successful build get 503 from the pipeline.
	go func() {
		if err := p.Initialize(context.Background()); err != nil {
			logger.Error("initial news indexing failed", zap.Error(err))
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	case sig := <-quit:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func runRefresh(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()

	// Ingest-only: no generation client needed.
	p, idx, err := buildPipeline(cfg, nil, logger)
	if err != nil {
		return err
	}
	defer idx.Close()

	if err := p.Refresh(cmd.Context()); err != nil {
		return fmt.Errorf("refreshing news index: %w", err)
	}
	return nil
}
