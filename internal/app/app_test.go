package app_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/catalog-crawler/internal/app"
	"github.com/JakeFAU/catalog-crawler/internal/config"
	"github.com/JakeFAU/catalog-crawler/internal/crawler"
	"github.com/JakeFAU/catalog-crawler/internal/storage/memory"
)

// fakeBrowser lists two products per listing page without launching Chrome.
type fakeBrowser struct {
	base   string
	mu     sync.Mutex
	closed bool
}

func (b *fakeBrowser) ListHrefs(_ context.Context, pageURL, cardSelector string) ([]string, error) {
	if cardSelector != ".hit" {
		return nil, fmt.Errorf("unexpected selector %q", cardSelector)
	}
	u, err := url.Parse(pageURL)
	if err != nil {
		return nil, err
	}
	page := u.Query().Get("page")
	return []string{
		b.base + "/products/p" + page + "-a",
		b.base + "/products/p" + page + "-b",
	}, nil
}

func (b *fakeBrowser) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
}

func catalogServer() *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/products/") {
			http.NotFound(w, r)
			return
		}
		name := strings.TrimPrefix(r.URL.Path, "/products/")
		price := "$100.00"
		if v := r.URL.Query().Get("variant"); v != "" {
			price = "$1" + v + ".00"
		}
		fmt.Fprintf(w, `<html><body>
<h1 class="product-area__details__title product-detail__gap-sm h2">%s</h1>
<span class="current-price theme-money">%s</span>
<div onclick="handleVariantClick(event)" data-variant-id="1"></div>
<div onclick="handleVariantClick(event)" data-variant-id="2"></div>
</body></html>`, name, price)
	}))
}

func testConfig(t *testing.T, base string) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Crawler.ListingURLTemplate = base + "/collections/nike?page=%d"
	cfg.Crawler.TotalPages = 3
	cfg.Crawler.ChunkSize = 2
	cfg.Crawler.ChunkDelay = 0
	cfg.Discovery.RetryBackoff = time.Millisecond
	cfg.HTTP.Timeout = 5 * time.Second
	cfg.Schedule.Timezone = "UTC"
	return cfg
}

func TestCrawlStoresEveryProduct(t *testing.T) {
	srv := catalogServer()
	defer srv.Close()

	store := memory.NewProductStore()
	browser := &fakeBrowser{base: srv.URL}
	a, err := app.NewWithDeps(testConfig(t, srv.URL), zap.NewNop(), store, browser, nil)
	require.NoError(t, err)

	stats := a.Crawl(context.Background())
	a.Close()

	assert.Equal(t, crawler.RunStatusSucceeded, stats.Status)
	assert.NotEmpty(t, stats.RunID)
	assert.Equal(t, 3, stats.Pages)
	assert.Equal(t, 2, stats.Chunks)
	assert.Equal(t, 6, stats.ProductsStored)
	assert.True(t, browser.closed)

	rows := store.Rows()
	require.Len(t, rows, 6)
	titles := map[string]bool{}
	for _, r := range rows {
		require.NotNil(t, r.Title)
		titles[*r.Title] = true
		require.NotNil(t, r.ProductSize)
		assert.Equal(t,
			`{"us(m)3.5/us(w)5/uk3/eu35.5/cm22.5":"$11.00","us(m)4/us(w)5.5/uk3.5/eu36/cm23":"$12.00"}`,
			*r.ProductSize)
		assert.Nil(t, r.ImagesLinks)
	}
	assert.True(t, titles["p1-a"])
	assert.True(t, titles["p3-b"])
}

func TestNewWithDepsRequiresServices(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	_, err = app.NewWithDeps(cfg, nil, nil, &fakeBrowser{}, nil)
	require.Error(t, err)
	_, err = app.NewWithDeps(cfg, nil, memory.NewProductStore(), nil, nil)
	require.Error(t, err)
}

func TestSelectorsMapping(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	sel := app.Selectors(cfg.Selectors)
	assert.Equal(t, cfg.Selectors.Price, sel.Price)
	assert.Equal(t, cfg.Selectors.Variant, sel.Variant)
	assert.Equal(t, cfg.Selectors.Image, sel.Image)
}

func TestScheduleStopsOnCancel(t *testing.T) {
	srv := catalogServer()
	defer srv.Close()

	cfg := testConfig(t, srv.URL)
	cfg.Server.Addr = "127.0.0.1:0"
	a, err := app.NewWithDeps(cfg, zap.NewNop(), memory.NewProductStore(), &fakeBrowser{base: srv.URL}, nil)
	require.NoError(t, err)
	defer a.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	a.StartServer(ctx)
	require.NoError(t, a.Schedule(ctx))
}

func TestScheduleWarnsOnMemoryStore(t *testing.T) {
	srv := catalogServer()
	defer srv.Close()

	core, logs := observer.New(zap.WarnLevel)
	cfg := testConfig(t, srv.URL)
	a, err := app.NewWithDeps(cfg, zap.New(core), memory.NewProductStore(), &fakeBrowser{base: srv.URL}, nil)
	require.NoError(t, err)
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, a.Schedule(ctx))
	assert.Equal(t, 1, logs.FilterMessageSnippet("in-memory store").Len())
}
