// Package config loads and validates aggregator configuration via Viper.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/repack-aggregator/internal/provider"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig              `mapstructure:"server"`
	Crawler   CrawlerConfig             `mapstructure:"crawler"`
	Providers map[string]ProviderConfig `mapstructure:"providers"`
	HTTP      HTTPConfig                `mapstructure:"http"`
	Storage   StorageConfig             `mapstructure:"storage"`
	Games     GamesConfig               `mapstructure:"games"`
	Logging   LoggingConfig             `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// CrawlerConfig governs aggregation runs.
type CrawlerConfig struct {
	CrawlOnStart   bool     `mapstructure:"crawl_on_start"`
	Workers        int      `mapstructure:"workers"`
	QueueDepth     int      `mapstructure:"queue_depth"`
	PersistWorkers int      `mapstructure:"persist_workers"`
	MinBodyBytes   int      `mapstructure:"min_body_bytes"`
	Providers      []string `mapstructure:"providers"`
}

// ProviderConfig holds per-provider overrides and credentials.
type ProviderConfig struct {
	Workers  int    `mapstructure:"workers"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	BaseURL  string `mapstructure:"base_url"`
}

// HTTPConfig configures outbound requests to provider sites.
type HTTPConfig struct {
	TimeoutSeconds    int     `mapstructure:"timeout_seconds"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
	// UserAgent pins the agent; empty picks a random one per request.
	UserAgent string `mapstructure:"user_agent"`
}

// StorageConfig selects the record store.
type StorageConfig struct {
	Driver        string `mapstructure:"driver"`
	Path          string `mapstructure:"path"`
	DSN           string `mapstructure:"dsn"`
	Table         string `mapstructure:"table"`
	UniqueRecords bool   `mapstructure:"unique_records"`
	MaxConns      int32  `mapstructure:"max_conns"`
}

// GamesConfig points the metadata proxy at its upstream.
type GamesConfig struct {
	APIBaseURL   string `mapstructure:"api_base_url"`
	KeySourceURL string `mapstructure:"key_source_url"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("REPACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("crawler.crawl_on_start", true)
	v.SetDefault("crawler.workers", 4)
	v.SetDefault("crawler.queue_depth", 10)
	v.SetDefault("crawler.persist_workers", 8)
	v.SetDefault("crawler.min_body_bytes", 100)
	kinds := make([]string, 0, len(provider.Order))
	for _, kind := range provider.Order {
		kinds = append(kinds, string(kind))
		spec, _ := provider.Lookup(kind)
		// Registering every key lets REPACK_PROVIDERS_<KIND>_* env vars bind.
		v.SetDefault("providers."+string(kind)+".workers", spec.Workers)
		v.SetDefault("providers."+string(kind)+".username", "")
		v.SetDefault("providers."+string(kind)+".password", "")
		v.SetDefault("providers."+string(kind)+".base_url", "")
	}
	v.SetDefault("crawler.providers", kinds)
	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("http.requests_per_second", 4)
	v.SetDefault("http.burst", 4)
	v.SetDefault("http.user_agent", "")
	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.path", defaultDBPath())
	v.SetDefault("storage.dsn", "")
	v.SetDefault("storage.table", "repacks")
	v.SetDefault("storage.unique_records", false)
	v.SetDefault("storage.max_conns", 8)
	v.SetDefault("games.api_base_url", "https://api.rawg.io/api")
	v.SetDefault("games.key_source_url", "https://rawg.io/")
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
}

func defaultDBPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "repacks.db"
	}
	return filepath.Join(dir, "repack-aggregator", "repacks.db")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Crawler.Workers <= 0 {
		return fmt.Errorf("crawler.workers must be > 0")
	}
	if c.Crawler.QueueDepth <= 0 {
		return fmt.Errorf("crawler.queue_depth must be > 0")
	}
	if c.Crawler.PersistWorkers <= 0 {
		return fmt.Errorf("crawler.persist_workers must be > 0")
	}
	if c.Crawler.MinBodyBytes < 0 {
		return fmt.Errorf("crawler.min_body_bytes must be >= 0")
	}
	if _, err := c.EnabledProviders(); err != nil {
		return err
	}
	for name, p := range c.Providers {
		if p.Workers < 0 {
			return fmt.Errorf("providers.%s.workers must be >= 0", name)
		}
		if p.BaseURL != "" && !strings.HasPrefix(p.BaseURL, "http") {
			return fmt.Errorf("providers.%s.base_url must be an http(s) url", name)
		}
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.RequestsPerSecond < 0 {
		return fmt.Errorf("http.requests_per_second must be >= 0")
	}
	switch c.Storage.Driver {
	case "sqlite":
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path must be set for the sqlite driver")
		}
	case "postgres":
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn must be set for the postgres driver")
		}
	case "memory":
	default:
		return fmt.Errorf("storage.driver must be one of sqlite, postgres, memory (got %q)", c.Storage.Driver)
	}
	return nil
}

// EnabledProviders resolves crawler.providers into kinds, preserving order.
func (c Config) EnabledProviders() ([]provider.Kind, error) {
	kinds := make([]provider.Kind, 0, len(c.Crawler.Providers))
	for _, name := range c.Crawler.Providers {
		kind, err := provider.ParseKind(name)
		if err != nil {
			return nil, fmt.Errorf("crawler.providers: %w", err)
		}
		kinds = append(kinds, kind)
	}
	return kinds, nil
}

// Provider returns the settings for kind, falling back to crawler.workers.
func (c Config) Provider(kind provider.Kind) ProviderConfig {
	p := c.Providers[string(kind)]
	if p.Workers == 0 {
		p.Workers = c.Crawler.Workers
	}
	return p
}

// HTTPTimeout converts http.timeout_seconds into a duration.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}
