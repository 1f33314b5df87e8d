// Package config loads and validates crawler configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

var dailyAtPattern = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Crawler   CrawlerConfig   `mapstructure:"crawler"`
	Discovery DiscoveryConfig `mapstructure:"discovery"`
	Browser   BrowserConfig   `mapstructure:"browser"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Schedule  ScheduleConfig  `mapstructure:"schedule"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Server    ServerConfig    `mapstructure:"server"`
	Selectors SelectorConfig  `mapstructure:"selectors"`
}

// CrawlerConfig governs the page range and chunked fan-out.
type CrawlerConfig struct {
	ListingURLTemplate string        `mapstructure:"listing_url_template"`
	TotalPages         int           `mapstructure:"total_pages"`
	ChunkSize          int           `mapstructure:"chunk_size"`
	ChunkDelay         time.Duration `mapstructure:"chunk_delay"`
	PageFailurePause   time.Duration `mapstructure:"page_failure_pause"`
	SkipExisting       bool          `mapstructure:"skip_existing"`
}

// DiscoveryConfig controls retries around listing-page rendering.
type DiscoveryConfig struct {
	MaxAttempts  int           `mapstructure:"max_attempts"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
}

// BrowserConfig configures the headless browser session pool.
type BrowserConfig struct {
	Headless      bool          `mapstructure:"headless"`
	Sessions      int           `mapstructure:"sessions"`
	RenderTimeout time.Duration `mapstructure:"render_timeout"`
	ExecPath      string        `mapstructure:"exec_path"`
}

// HTTPConfig configures the page fetcher.
type HTTPConfig struct {
	Timeout      time.Duration `mapstructure:"timeout"`
	UserAgent    string        `mapstructure:"user_agent"`
	RateLimitQPS float64       `mapstructure:"rate_limit_qps"`
}

// StorageConfig selects and configures the product store.
type StorageConfig struct {
	// Provider defaults to memory, which keeps nothing past process exit.
	// Use postgres or mongo for real crawls.
	Provider string         `mapstructure:"provider"`
	Table    string         `mapstructure:"table"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Mongo    MongoConfig    `mapstructure:"mongo"`
}

// PostgresConfig controls the Postgres connection pool.
type PostgresConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// MongoConfig controls the MongoDB client.
type MongoConfig struct {
	URI        string `mapstructure:"uri"`
	Database   string `mapstructure:"database"`
	Collection string `mapstructure:"collection"`
}

// ScheduleConfig sets the daily trigger.
type ScheduleConfig struct {
	DailyAt      string        `mapstructure:"daily_at"`
	Timezone     string        `mapstructure:"timezone"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// ServerConfig controls the operator HTTP server (metrics, health, runs).
type ServerConfig struct {
	Addr   string `mapstructure:"addr"`
	APIKey string `mapstructure:"api_key"`
}

// SelectorConfig holds the storefront CSS selectors.
type SelectorConfig struct {
	ResultCard   string `mapstructure:"result_card"`
	Title        string `mapstructure:"title"`
	Description  string `mapstructure:"description"`
	Price        string `mapstructure:"price"`
	SizeType     string `mapstructure:"size_type"`
	Variant      string `mapstructure:"variant"`
	VariantAttr  string `mapstructure:"variant_attr"`
	VariantParam string `mapstructure:"variant_param"`
	Details      string `mapstructure:"details"`
	Image        string `mapstructure:"image"`
}

// Load builds a Config from disk/environment. A .env file in the working
// directory is loaded first when present.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("CRAWLER")
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
	v.SetDefault("crawler.listing_url_template", "https://www.kickscrew.com/collections/nike?page=%d")
	v.SetDefault("crawler.total_pages", 314)
	v.SetDefault("crawler.chunk_size", 5)
	v.SetDefault("crawler.chunk_delay", time.Second)
	v.SetDefault("crawler.page_failure_pause", time.Minute)
	v.SetDefault("crawler.skip_existing", false)
	v.SetDefault("discovery.max_attempts", 3)
	v.SetDefault("discovery.retry_backoff", time.Minute)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.sessions", 1)
	v.SetDefault("browser.render_timeout", 30*time.Second)
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("http.timeout", 30*time.Second)
	v.SetDefault("http.user_agent", "catalog-crawler/0.1")
	v.SetDefault("http.rate_limit_qps", 0)
	v.SetDefault("storage.provider", "memory")
	v.SetDefault("storage.table", "shoes")
	v.SetDefault("storage.postgres.dsn", "")
	v.SetDefault("storage.postgres.max_conns", 0)
	v.SetDefault("storage.postgres.min_conns", 0)
	v.SetDefault("storage.postgres.max_conn_lifetime", 0)
	v.SetDefault("storage.mongo.uri", "")
	v.SetDefault("storage.mongo.database", "catalog")
	v.SetDefault("storage.mongo.collection", "shoes")
	v.SetDefault("schedule.daily_at", "14:25")
	v.SetDefault("schedule.timezone", "Local")
	v.SetDefault("schedule.poll_interval", time.Minute)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("server.addr", "")
	v.SetDefault("server.api_key", "")
	v.SetDefault("selectors.result_card", ".hit")
	v.SetDefault("selectors.title", "h1.product-area__details__title.product-detail__gap-sm.h2")
	v.SetDefault("selectors.description", "div.product-detail__tab-container.product-detail__gap-lg")
	v.SetDefault("selectors.price", "span.current-price.theme-money")
	v.SetDefault("selectors.size_type", "div.pdpOptionValues")
	v.SetDefault("selectors.variant", `div[onclick="handleVariantClick(event)"]`)
	v.SetDefault("selectors.variant_attr", "data-variant-id")
	v.SetDefault("selectors.variant_param", "variant")
	v.SetDefault("selectors.details", "div.cc-tabs__tab__panel.rte")
	v.SetDefault("selectors.image", "div.product-media.product-media--image")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if !strings.Contains(c.Crawler.ListingURLTemplate, "%d") {
		return fmt.Errorf("crawler.listing_url_template must contain a %%d page placeholder")
	}
	if c.Crawler.TotalPages <= 0 {
		return fmt.Errorf("crawler.total_pages must be > 0")
	}
	if c.Crawler.ChunkSize <= 0 {
		return fmt.Errorf("crawler.chunk_size must be > 0")
	}
	if c.Crawler.ChunkDelay < 0 {
		return fmt.Errorf("crawler.chunk_delay must be >= 0")
	}
	if c.Crawler.PageFailurePause < 0 {
		return fmt.Errorf("crawler.page_failure_pause must be >= 0")
	}
	if c.Discovery.MaxAttempts <= 0 {
		return fmt.Errorf("discovery.max_attempts must be > 0")
	}
	if c.Discovery.RetryBackoff < 0 {
		return fmt.Errorf("discovery.retry_backoff must be >= 0")
	}
	if c.Browser.Sessions <= 0 {
		return fmt.Errorf("browser.sessions must be > 0")
	}
	if c.Browser.RenderTimeout <= 0 {
		return fmt.Errorf("browser.render_timeout must be > 0")
	}
	if c.HTTP.Timeout <= 0 {
		return fmt.Errorf("http.timeout must be > 0")
	}
	if c.HTTP.RateLimitQPS < 0 {
		return fmt.Errorf("http.rate_limit_qps must be >= 0")
	}
	switch c.Storage.Provider {
	case "memory":
	case "postgres":
		if c.Storage.Postgres.DSN == "" {
			return fmt.Errorf("storage.postgres.dsn must be set when storage.provider is postgres")
		}
	case "mongo":
		if c.Storage.Mongo.URI == "" {
			return fmt.Errorf("storage.mongo.uri must be set when storage.provider is mongo")
		}
	default:
		return fmt.Errorf("storage.provider must be one of memory, postgres, mongo (got %q)", c.Storage.Provider)
	}
	if !dailyAtPattern.MatchString(c.Schedule.DailyAt) {
		return fmt.Errorf("schedule.daily_at must be HH:MM (got %q)", c.Schedule.DailyAt)
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("schedule.timezone: %w", err)
	}
	if c.Selectors.ResultCard == "" {
		return fmt.Errorf("selectors.result_card must be set")
	}
	return nil
}

// ListingURL renders the listing URL for a 1-based page number.
func (c Config) ListingURL(page int) string {
	return fmt.Sprintf(c.Crawler.ListingURLTemplate, page)
}

// Location resolves the schedule timezone.
func (c Config) Location() (*time.Location, error) {
	switch c.Schedule.Timezone {
	case "", "Local":
		return time.Local, nil
	default:
		loc, err := time.LoadLocation(c.Schedule.Timezone)
		if err != nil {
			return nil, fmt.Errorf("load location %q: %w", c.Schedule.Timezone, err)
		}
		return loc, nil
	}
}
