package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)

	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, "data/carmarket.db", cfg.Database.Path)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "https://www.ss.lv", cfg.Source.BaseURL)
	assert.Equal(t, 14*24*time.Hour, cfg.Crawl.StaleAfter.Std())
	assert.Equal(t, 3, cfg.Fetch.Retries)
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  path: /tmp/other.db
server:
  port: 9090
crawl:
  max_brands: 5
  target_brands: [BMW, Audi]
  stale_after: 168h
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/other.db", cfg.Database.Path)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 5, cfg.Crawl.MaxBrands)
	assert.Equal(t, []string{"BMW", "Audi"}, cfg.Crawl.TargetBrands)
	assert.Equal(t, 7*24*time.Hour, cfg.Crawl.StaleAfter.Std())
	// Untouched sections keep their defaults.
	assert.Equal(t, "https://www.ss.lv", cfg.Source.BaseURL)
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("CARMARKET_PORT", "7070")
	t.Setenv("CARMARKET_DB_PATH", "/tmp/env.db")
	t.Setenv("CARMARKET_LOG_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "/tmp/env.db", cfg.Database.Path)
	assert.Equal(t, "debug", cfg.Log.Level)
}
