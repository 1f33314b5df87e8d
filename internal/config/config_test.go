package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Crawler.TotalPages != 314 || cfg.Crawler.ChunkSize != 5 {
		t.Fatalf("unexpected page range defaults: %+v", cfg.Crawler)
	}
	if cfg.Crawler.ChunkDelay != time.Second || cfg.Crawler.PageFailurePause != time.Minute {
		t.Fatalf("unexpected delay defaults: %+v", cfg.Crawler)
	}
	if cfg.Discovery.MaxAttempts != 3 || cfg.Discovery.RetryBackoff != time.Minute {
		t.Fatalf("unexpected discovery defaults: %+v", cfg.Discovery)
	}
	if cfg.Browser.RenderTimeout != 30*time.Second || cfg.Browser.Sessions != 1 {
		t.Fatalf("unexpected browser defaults: %+v", cfg.Browser)
	}
	if cfg.Schedule.DailyAt != "14:25" || cfg.Schedule.PollInterval != time.Minute {
		t.Fatalf("unexpected schedule defaults: %+v", cfg.Schedule)
	}
	if cfg.Crawler.SkipExisting {
		t.Fatal("existence check must be opt-in")
	}
	if cfg.Server.Addr != "" {
		t.Fatalf("operator server must be off by default, got %q", cfg.Server.Addr)
	}
	if cfg.Storage.Provider != "memory" || cfg.Storage.Table != "shoes" {
		t.Fatalf("unexpected storage defaults: %+v", cfg.Storage)
	}
	if got := cfg.ListingURL(7); got != "https://www.kickscrew.com/collections/nike?page=7" {
		t.Fatalf("unexpected listing url %q", got)
	}
}

func TestLoadWithFileOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
crawler:
  listing_url_template: "https://shop.example.com/c?page=%d"
  total_pages: 12
  chunk_size: 4
  chunk_delay: 250ms
  skip_existing: true
discovery:
  max_attempts: 5
  retry_backoff: 2s
browser:
  sessions: 4
  render_timeout: 10s
http:
  timeout: 5s
  rate_limit_qps: 2.5
storage:
  provider: postgres
  table: sneakers
  postgres:
    dsn: postgres://crawler@localhost/catalog
schedule:
  daily_at: "03:10"
  timezone: UTC
logging:
  development: false
  level: debug
selectors:
  result_card: ".product-card"
server:
  addr: ":9090"
  api_key: s3cret
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Crawler.TotalPages != 12 || cfg.Crawler.ChunkSize != 4 || !cfg.Crawler.SkipExisting {
		t.Fatalf("expected crawler overrides to apply: %+v", cfg.Crawler)
	}
	if cfg.Crawler.ChunkDelay != 250*time.Millisecond {
		t.Fatalf("expected chunk delay 250ms, got %v", cfg.Crawler.ChunkDelay)
	}
	if cfg.Discovery.MaxAttempts != 5 || cfg.Discovery.RetryBackoff != 2*time.Second {
		t.Fatalf("expected discovery overrides: %+v", cfg.Discovery)
	}
	if cfg.Browser.Sessions != 4 || cfg.HTTP.RateLimitQPS != 2.5 {
		t.Fatalf("expected browser/http overrides: %+v %+v", cfg.Browser, cfg.HTTP)
	}
	if cfg.Storage.Provider != "postgres" || cfg.Storage.Table != "sneakers" {
		t.Fatalf("expected storage overrides: %+v", cfg.Storage)
	}
	if cfg.Selectors.ResultCard != ".product-card" || cfg.Selectors.Price != "span.current-price.theme-money" {
		t.Fatalf("expected selector override with defaults kept: %+v", cfg.Selectors)
	}
	if cfg.Server.Addr != ":9090" || cfg.Server.APIKey != "s3cret" {
		t.Fatalf("expected server overrides: %+v", cfg.Server)
	}
	loc, err := cfg.Location()
	if err != nil || loc != time.UTC {
		t.Fatalf("expected UTC location, got %v (%v)", loc, err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"template without placeholder", func(c *Config) { c.Crawler.ListingURLTemplate = "https://x" }, "crawler.listing_url_template"},
		{"zero pages", func(c *Config) { c.Crawler.TotalPages = 0 }, "crawler.total_pages"},
		{"zero chunk", func(c *Config) { c.Crawler.ChunkSize = 0 }, "crawler.chunk_size"},
		{"zero attempts", func(c *Config) { c.Discovery.MaxAttempts = 0 }, "discovery.max_attempts"},
		{"zero sessions", func(c *Config) { c.Browser.Sessions = 0 }, "browser.sessions"},
		{"zero render timeout", func(c *Config) { c.Browser.RenderTimeout = 0 }, "browser.render_timeout"},
		{"zero http timeout", func(c *Config) { c.HTTP.Timeout = 0 }, "http.timeout"},
		{"negative qps", func(c *Config) { c.HTTP.RateLimitQPS = -1 }, "http.rate_limit_qps"},
		{"postgres without dsn", func(c *Config) { c.Storage.Provider = "postgres" }, "storage.postgres.dsn"},
		{"mongo without uri", func(c *Config) { c.Storage.Provider = "mongo" }, "storage.mongo.uri"},
		{"unknown provider", func(c *Config) { c.Storage.Provider = "sqlite" }, "storage.provider"},
		{"bad daily_at", func(c *Config) { c.Schedule.DailyAt = "25:00" }, "schedule.daily_at"},
		{"bad timezone", func(c *Config) { c.Schedule.Timezone = "Mars/Olympus" }, "schedule.timezone"},
		{"no result card", func(c *Config) { c.Selectors.ResultCard = "" }, "selectors.result_card"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := base
			tt.mutate(&c)
			err := c.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
