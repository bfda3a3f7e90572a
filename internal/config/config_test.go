package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeYAML(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kcal.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaultsFromEnvOnly(t *testing.T) {
	t.Setenv(EnvPath, "")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 250, cfg.Cache.MaxItems)
	assert.Equal(t, 168*time.Hour, cfg.Cache.TTL)
	assert.Equal(t, 365, cfg.Sync.RetentionDays)
	assert.Equal(t, 365*24*time.Hour, cfg.Sync.Retention())
	assert.Equal(t, []string{"openfoodfacts", "usda", "upcitemdb"}, cfg.Lookup.ProviderNames())
	assert.Equal(t, 15*time.Second, cfg.Lookup.Timeout)
	assert.Equal(t, "default", cfg.Goals.Scope)
	assert.False(t, cfg.Health.Enabled)
}

func TestLoadYAMLWithEnvOverride(t *testing.T) {
	path := writeYAML(t, `
database:
  path: "/tmp/custom.db"
cache:
  max_items: 50
  ttl: "1h"
sync:
  retention_days: 730
lookup:
  providers: "usda"
  limit: 3
log:
  level: "debug"
  format: "json"
`)
	t.Setenv("KCAL_CACHE_MAX_ITEMS", "75")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/custom.db", cfg.Database.Path)
	assert.Equal(t, 75, cfg.Cache.MaxItems)
	assert.Equal(t, time.Hour, cfg.Cache.TTL)
	assert.Equal(t, 730, cfg.Sync.RetentionDays)
	assert.Equal(t, []string{"usda"}, cfg.Lookup.ProviderNames())
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadPathFromEnv(t *testing.T) {
	path := writeYAML(t, "goals:\n  scope: \"alice\"\n")
	t.Setenv(EnvPath, path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "alice", cfg.Goals.Scope)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestValidateRejects(t *testing.T) {
	t.Parallel()

	base := func() Config {
		return Config{
			Cache:  CacheConfig{MaxItems: 10, TTL: time.Hour},
			Sync:   SyncConfig{RetentionDays: 30},
			Lookup: LookupConfig{Providers: "usda", Limit: 5},
			Goals:  GoalsConfig{Scope: "default"},
			Log:    LogConfig{Level: "info", Format: "console"},
		}
	}
	good := base()
	require.NoError(t, good.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero cache", func(c *Config) { c.Cache.MaxItems = 0 }},
		{"zero ttl", func(c *Config) { c.Cache.TTL = 0 }},
		{"zero retention", func(c *Config) { c.Sync.RetentionDays = 0 }},
		{"negative window", func(c *Config) { c.Sync.ExportWindowDays = -1 }},
		{"unknown provider", func(c *Config) { c.Lookup.Providers = "usda,nutritionix" }},
		{"health without url", func(c *Config) { c.Health.Enabled = true }},
		{"blank scope", func(c *Config) { c.Goals.Scope = " " }},
		{"bad format", func(c *Config) { c.Log.Format = "pretty" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := base()
			tt.mutate(&c)
			require.Error(t, c.Validate())
		})
	}
}
