package config

import (
	"fmt"
	"strings"

	"github.com/saadjs/kcal-core/internal/logger"
)

var knownProviders = map[string]bool{"openfoodfacts": true, "usda": true, "upcitemdb": true}

// Validate checks business rules after loading. Load calls it automatically.
func (c *Config) Validate() error {
	if c.Cache.MaxItems <= 0 {
		return fmt.Errorf("cache.max_items must be > 0 (got %d)", c.Cache.MaxItems)
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be > 0 (got %s)", c.Cache.TTL)
	}
	if c.Sync.RetentionDays <= 0 {
		return fmt.Errorf("sync.retention_days must be > 0 (got %d)", c.Sync.RetentionDays)
	}
	if c.Sync.ExportWindowDays < 0 {
		return fmt.Errorf("sync.export_window_days must be >= 0 (got %d)", c.Sync.ExportWindowDays)
	}
	if c.Lookup.Limit <= 0 {
		return fmt.Errorf("lookup.limit must be > 0 (got %d)", c.Lookup.Limit)
	}
	for _, p := range c.Lookup.ProviderNames() {
		if !knownProviders[p] {
			return fmt.Errorf("lookup.providers: unknown provider %q", p)
		}
	}
	if c.Health.Enabled && strings.TrimSpace(c.Health.BaseURL) == "" {
		return fmt.Errorf("health.base_url is required when health.enabled is true")
	}
	if strings.TrimSpace(c.Goals.Scope) == "" {
		return fmt.Errorf("goals.scope must not be empty")
	}
	if f := strings.ToLower(c.Log.Format); f != logger.FormatConsole && f != logger.FormatJSON {
		return fmt.Errorf("log.format must be %q or %q (got %q)", logger.FormatConsole, logger.FormatJSON, c.Log.Format)
	}
	return nil
}
