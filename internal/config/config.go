// Package config provides configuration loading for newsrag.
package config

import (
	"fmt"

	"github.com/vooshlabs/newsrag/internal/logging"
)

// Config is the root configuration for the newsrag server.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Logging    logging.Config   `koanf:"logging"`
	Feeds      FeedsConfig      `koanf:"feeds"`
	Embeddings EmbeddingsConfig `koanf:"embeddings"`
	Index      IndexConfig      `koanf:"index"`
	Generation GenerationConfig `koanf:"generation"`
	Pipeline   PipelineConfig   `koanf:"pipeline"`
	Database   DatabaseConfig   `koanf:"database"`
	Redis      RedisConfig      `koanf:"redis"`
	NATS       NATSConfig       `koanf:"nats"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`
}

// FeedSource names one RSS feed.
type FeedSource struct {
	Name string `koanf:"name"`
	URL  string `koanf:"url"`
}

// FeedsConfig holds article source settings.
type FeedsConfig struct {
	// Sources are fetched in order until the article limit is reached.
	Sources []FeedSource `koanf:"sources"`

	// MinContentLen is the minimum cleaned content length for an
	// article to be kept. Shorter entries are teaser stubs that
	// degrade embedding quality.
	MinContentLen int `koanf:"min_content_len"`
}

// EmbeddingsConfig holds embedding model settings.
type EmbeddingsConfig struct {
	Model    string `koanf:"model"`
	CacheDir string `koanf:"cache_dir"`
}

// IndexConfig holds vector index settings.
type IndexConfig struct {
	// Backend selects the index implementation: "qdrant" or "chromem".
	Backend string `koanf:"backend"`

	// Collection is the collection name holding indexed articles.
	Collection string `koanf:"collection"`

	Qdrant  QdrantConfig  `koanf:"qdrant"`
	Chromem ChromemConfig `koanf:"chromem"`
}

// QdrantConfig holds Qdrant gRPC connection settings.
type QdrantConfig struct {
	Host   string `koanf:"host"`
	Port   int    `koanf:"port"`
	UseTLS bool   `koanf:"use_tls"`
	APIKey string `koanf:"api_key"`
}

// ChromemConfig holds embedded chromem-go settings.
type ChromemConfig struct {
	// Path is the persistence directory. Empty means in-memory only.
	Path string `koanf:"path"`
}

// GenerationConfig holds the Gemini generation endpoint settings.
type GenerationConfig struct {
	APIKey  string `koanf:"api_key"`
	Model   string `koanf:"model"`
	BaseURL string `koanf:"base_url"`
}

// PipelineConfig holds RAG orchestration settings.
type PipelineConfig struct {
	// FetchLimit is the number of articles ingested per refresh.
	FetchLimit int `koanf:"fetch_limit"`

	// TopK is the number of articles retrieved per query.
	TopK int `koanf:"top_k"`
}

// DatabaseConfig holds the session store settings.
type DatabaseConfig struct {
	// DSN is the Postgres connection string. Empty selects the
	// in-memory session store (dev mode).
	DSN string `koanf:"dsn"`
}

// RedisConfig holds transcript cache settings.
type RedisConfig struct {
	// URL is a redis:// connection URL. Empty disables the cache.
	URL string `koanf:"url"`

	// TTLSeconds is the transcript cache expiry.
	TTLSeconds int `koanf:"ttl_seconds"`
}

// NATSConfig holds live-update channel settings.
type NATSConfig struct {
	// URL is the NATS server URL. Empty disables broadcasting.
	URL string `koanf:"url"`

	// Subject is the subject answers are published on.
	Subject string `koanf:"subject"`
}

// Default returns the configuration defaults, matching the feeds and
// pipeline constants of the production deployment.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 5050,
		},
		Logging: logging.Config{
			Level:  "info",
			Format: "json",
		},
		Feeds: FeedsConfig{
			Sources: []FeedSource{
				{Name: "Reuters", URL: "https://www.reuters.com/arc/outboundfeeds/news-sitemap-index/?outputType=xml"},
				{Name: "BBC World", URL: "https://feeds.bbci.co.uk/news/world/rss.xml"},
				{Name: "NY Times World", URL: "https://rss.nytimes.com/services/xml/rss/nyt/World.xml"},
			},
			MinContentLen: 100,
		},
		Embeddings: EmbeddingsConfig{
			Model:    "sentence-transformers/all-MiniLM-L6-v2",
			CacheDir: "local_cache",
		},
		Index: IndexConfig{
			Backend:    "qdrant",
			Collection: "news_articles",
			Qdrant: QdrantConfig{
				Host: "localhost",
				Port: 6334,
			},
		},
		Generation: GenerationConfig{
			Model: "gemini-2.5-flash",
		},
		Pipeline: PipelineConfig{
			FetchLimit: 50,
			TopK:       3,
		},
		Redis: RedisConfig{
			TTLSeconds: 3600,
		},
		NATS: NATSConfig{
			Subject: "chat.responses",
		},
	}
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	if len(c.Feeds.Sources) == 0 {
		return fmt.Errorf("at least one feed source is required")
	}
	for i, s := range c.Feeds.Sources {
		if s.Name == "" || s.URL == "" {
			return fmt.Errorf("feed source %d: name and url are required", i)
		}
	}
	if c.Feeds.MinContentLen < 0 {
		return fmt.Errorf("min_content_len must be >= 0")
	}
	switch c.Index.Backend {
	case "qdrant", "chromem":
	default:
		return fmt.Errorf("unknown index backend %q", c.Index.Backend)
	}
	if c.Index.Collection == "" {
		return fmt.Errorf("index collection name is required")
	}
	if c.Pipeline.FetchLimit <= 0 {
		return fmt.Errorf("fetch_limit must be positive")
	}
	if c.Pipeline.TopK <= 0 {
		return fmt.Errorf("top_k must be positive")
	}
	if c.Redis.TTLSeconds <= 0 {
		return fmt.Errorf("redis ttl_seconds must be positive")
	}
	return nil
}
