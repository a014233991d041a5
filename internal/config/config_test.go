package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, "localhost:6379", cfg.Redis.Addr)
	require.Equal(t, "articles:queue", cfg.Redis.QueuePrefix)
	require.Equal(t, "articles", cfg.Postgres.Table)
	require.Equal(t, 3, cfg.Scraper.Request.MaxRetries)
	require.Equal(t, []string{"title"}, cfg.Scraper.RequiredElements)
	require.False(t, cfg.Scraper.Headless.Enabled)
	require.Equal(t, 10, cfg.Consumer.BatchSize)
	require.Equal(t, 0, cfg.Consumer.MaxArticles)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
server:
  port: 9090
redis:
  addr: redis:6379
  queue_prefix: "test:queue"
scraper:
  request:
    timeout_seconds: 5
    max_retries: 2
  headless:
    enabled: true
    nav_timeout_seconds: 20
consumer:
  batch_size: 3
  poll_interval_seconds: 1
  max_articles: 50
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "redis:6379", cfg.Redis.Addr)
	require.Equal(t, "test:queue", cfg.Redis.QueuePrefix)
	require.Equal(t, 2, cfg.Scraper.Request.MaxRetries)
	require.True(t, cfg.Scraper.Headless.Enabled)
	require.Equal(t, 3, cfg.Consumer.BatchSize)
	require.Equal(t, 50, cfg.Consumer.MaxArticles)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("consumer:\n  batch_size: 0\n"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "batch_size")
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("HARVESTER_REDIS_ADDR", "envhost:6380")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "envhost:6380", cfg.Redis.Addr)
}

func TestDurationHelpers(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, cfg.RequestTimeout().Seconds(), float64(cfg.Scraper.Request.TimeoutSeconds))
	require.Equal(t, cfg.PollInterval().Seconds(), float64(cfg.Consumer.PollIntervalSeconds))
}
