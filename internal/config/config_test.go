package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 5050, cfg.Server.Port)
	assert.Equal(t, "news_articles", cfg.Index.Collection)
	assert.Equal(t, "qdrant", cfg.Index.Backend)
	assert.Equal(t, 50, cfg.Pipeline.FetchLimit)
	assert.Equal(t, 3, cfg.Pipeline.TopK)
	assert.Equal(t, 100, cfg.Feeds.MinContentLen)
	assert.Equal(t, 3600, cfg.Redis.TTLSeconds)
	assert.Len(t, cfg.Feeds.Sources, 3)
	assert.NoError(t, cfg.Validate())
}

func TestLoadNoFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Server.Port, cfg.Server.Port)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  port: 8088
index:
  backend: chromem
  collection: test_articles
pipeline:
  fetch_limit: 5
  top_k: 2
feeds:
  sources:
    - name: Example
      url: https://example.com/rss.xml
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8088, cfg.Server.Port)
	assert.Equal(t, "chromem", cfg.Index.Backend)
	assert.Equal(t, "test_articles", cfg.Index.Collection)
	assert.Equal(t, 5, cfg.Pipeline.FetchLimit)
	assert.Equal(t, 2, cfg.Pipeline.TopK)
	require.Len(t, cfg.Feeds.Sources, 1)
	assert.Equal(t, "Example", cfg.Feeds.Sources[0].Name)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("NEWSRAG_SERVER__PORT", "9999")
	t.Setenv("NEWSRAG_INDEX__QDRANT__HOST", "qdrant.internal")
	t.Setenv("NEWSRAG_GENERATION__API_KEY", "test-key")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "qdrant.internal", cfg.Index.Qdrant.Host)
	assert.Equal(t, "test-key", cfg.Generation.APIKey)
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"no sources", func(c *Config) { c.Feeds.Sources = nil }},
		{"source without url", func(c *Config) { c.Feeds.Sources[0].URL = "" }},
		{"unknown backend", func(c *Config) { c.Index.Backend = "weaviate" }},
		{"empty collection", func(c *Config) { c.Index.Collection = "" }},
		{"zero fetch limit", func(c *Config) { c.Pipeline.FetchLimit = 0 }},
		{"zero top k", func(c *Config) { c.Pipeline.TopK = 0 }},
		{"zero ttl", func(c *Config) { c.Redis.TTLSeconds = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
