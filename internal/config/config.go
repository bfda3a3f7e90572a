package config

import (
	"strings"
	"time"
)

// Config is the root configuration of the nutrition core.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Cache    CacheConfig    `yaml:"cache"`
	Sync     SyncConfig     `yaml:"sync"`
	Lookup   LookupConfig   `yaml:"lookup"`
	Health   HealthConfig   `yaml:"health"`
	Goals    GoalsConfig    `yaml:"goals"`
	Log      LogConfig      `yaml:"log"`
}

// DatabaseConfig locates the SQLite file. An empty path resolves to the
// user config directory.
type DatabaseConfig struct {
	Path string `yaml:"path" env:"KCAL_DB_PATH"`
}

type CacheConfig struct {
	MaxItems int           `yaml:"max_items" env:"KCAL_CACHE_MAX_ITEMS" env-default:"250"`
	TTL      time.Duration `yaml:"ttl"       env:"KCAL_CACHE_TTL"       env-default:"168h"`
}

type SyncConfig struct {
	RetentionDays int `yaml:"retention_days" env:"KCAL_RETENTION_DAYS" env-default:"365"`
	// ExportWindowDays limits exported logs to the last N days; 0 exports everything.
	ExportWindowDays int `yaml:"export_window_days" env:"KCAL_EXPORT_WINDOW_DAYS" env-default:"0"`
}

type LookupConfig struct {
	Providers       string        `yaml:"providers"         env:"KCAL_LOOKUP_PROVIDERS" env-default:"openfoodfacts,usda,upcitemdb"`
	USDAAPIKey      string        `yaml:"usda_api_key"      env:"KCAL_USDA_API_KEY"`
	UPCItemDBAPIKey string        `yaml:"upcitemdb_api_key" env:"KCAL_UPCITEMDB_API_KEY"`
	Timeout         time.Duration `yaml:"timeout"           env:"KCAL_LOOKUP_TIMEOUT"   env-default:"15s"`
	Limit           int           `yaml:"limit"             env:"KCAL_LOOKUP_LIMIT"     env-default:"10"`
}

// ProviderNames returns the configured provider order, lower-cased.
func (l LookupConfig) ProviderNames() []string {
	var out []string
	for _, p := range strings.Split(l.Providers, ",") {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			out = append(out, p)
		}
	}
	return out
}

type HealthConfig struct {
	Enabled bool          `yaml:"enabled"  env:"KCAL_HEALTH_ENABLED"  env-default:"false"`
	BaseURL string        `yaml:"base_url" env:"KCAL_HEALTH_BASE_URL"`
	Token   string        `yaml:"token"    env:"KCAL_HEALTH_TOKEN"`
	Timeout time.Duration `yaml:"timeout"  env:"KCAL_HEALTH_TIMEOUT"  env-default:"5s"`
}

type GoalsConfig struct {
	Scope string `yaml:"scope" env:"KCAL_GOALS_SCOPE" env-default:"default"`
}

type LogConfig struct {
	Level  string `yaml:"level"  env:"KCAL_LOG_LEVEL"  env-default:"warn"`
	Format string `yaml:"format" env:"KCAL_LOG_FORMAT" env-default:"console"`
}

// Retention is the age beyond which food logs are eligible for cleanup.
func (s SyncConfig) Retention() time.Duration {
	return time.Duration(s.RetentionDays) * 24 * time.Hour
}
