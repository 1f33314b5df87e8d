// Package app initializes and holds long-lived application services, acting
// as the dependency injection container for the crawl and schedule commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-crawler/internal/api"
	"github.com/JakeFAU/catalog-crawler/internal/clock/system"
	"github.com/JakeFAU/catalog-crawler/internal/config"
	"github.com/JakeFAU/catalog-crawler/internal/crawler"
	"github.com/JakeFAU/catalog-crawler/internal/discovery"
	"github.com/JakeFAU/catalog-crawler/internal/dispatcher"
	"github.com/JakeFAU/catalog-crawler/internal/extract"
	collyfetcher "github.com/JakeFAU/catalog-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/catalog-crawler/internal/fetcher/headless"
	"github.com/JakeFAU/catalog-crawler/internal/id/uuid"
	"github.com/JakeFAU/catalog-crawler/internal/pipeline"
	"github.com/JakeFAU/catalog-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/catalog-crawler/internal/retry"
	"github.com/JakeFAU/catalog-crawler/internal/scheduler"
	"github.com/JakeFAU/catalog-crawler/internal/storage"
	"github.com/JakeFAU/catalog-crawler/internal/storage/memory"
	mongostore "github.com/JakeFAU/catalog-crawler/internal/storage/mongo"
	"github.com/JakeFAU/catalog-crawler/internal/storage/postgres"
)

// Browser is a Renderer that owns process resources.
type Browser interface {
	crawler.Renderer
	Close()
}

// App holds the shared, long-lived services. It is built once at startup
// and closed when the command finishes.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	store     crawler.ProductStore
	browser   Browser
	fetcher   crawler.Fetcher
	scheduler *scheduler.Scheduler

	server     *http.Server
	cancelRuns context.CancelFunc
}

// New connects the store, launches the browser pool and wires the crawl
// pipeline. It fails fast if any service cannot start.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("initializing application services")

	store, err := openStore(ctx, cfg.Storage, logger)
	if err != nil {
		return nil, err
	}

	browser, err := headless.NewPool(headless.Config{
		Sessions:      cfg.Browser.Sessions,
		Headless:      cfg.Browser.Headless,
		UserAgent:     cfg.HTTP.UserAgent,
		RenderTimeout: cfg.Browser.RenderTimeout,
		ExecPath:      cfg.Browser.ExecPath,
	}, logger.Named("browser"))
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("start browser: %w", err)
	}

	return NewWithDeps(cfg, logger, store, browser, nil)
}

// NewWithDeps wires the pipeline around already-constructed services. A nil
// fetcher selects the colly fetcher built from cfg.
func NewWithDeps(cfg config.Config, logger *zap.Logger, store crawler.ProductStore, browser Browser, fetcher crawler.Fetcher) (*App, error) {
	if store == nil || browser == nil {
		return nil, errors.New("store and browser are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if fetcher == nil {
		var limiter collyfetcher.Waiter
		if cfg.HTTP.RateLimitQPS > 0 {
			limiter = ratelimit.New(ratelimit.Config{DefaultRPS: cfg.HTTP.RateLimitQPS, DefaultBurst: 1})
		}
		fetcher = collyfetcher.New(collyfetcher.Config{
			UserAgent: cfg.HTTP.UserAgent,
			Timeout:   cfg.HTTP.Timeout,
			Limiter:   limiter,
		})
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	clock := system.NewIn(loc)

	disc := discovery.New(browser, fetcher, retry.Policy{
		MaxAttempts: cfg.Discovery.MaxAttempts,
		Backoff:     cfg.Discovery.RetryBackoff,
	}, cfg.Selectors.ResultCard, logger)
	extractor := extract.New(Selectors(cfg.Selectors), fetcher, logger.Named("extract"))
	pipe := pipeline.New(disc, fetcher, extractor, store, pipeline.Options{
		SkipExisting: cfg.Crawler.SkipExisting,
		FailurePause: cfg.Crawler.PageFailurePause,
	}, logger)
	dispatch := dispatcher.New(pipe, dispatcher.Config{
		TotalPages: cfg.Crawler.TotalPages,
		ChunkSize:  cfg.Crawler.ChunkSize,
		ChunkDelay: cfg.Crawler.ChunkDelay,
		ListingURL: cfg.ListingURL,
	}, clock, logger)

	sched, err := scheduler.New(scheduler.Config{
		DailyAt:   cfg.Schedule.DailyAt,
		Location:  loc,
		Heartbeat: cfg.Schedule.PollInterval,
	}, dispatch.Run, uuid.New(), clock, logger)
	if err != nil {
		return nil, fmt.Errorf("build scheduler: %w", err)
	}

	return &App{
		cfg:       cfg,
		logger:    logger,
		store:     store,
		browser:   browser,
		fetcher:   fetcher,
		scheduler: sched,
	}, nil
}

// Selectors maps configured selectors onto the extractor's.
func Selectors(s config.SelectorConfig) extract.Selectors {
	return extract.Selectors{
		Title:        s.Title,
		Description:  s.Description,
		Price:        s.Price,
		SizeType:     s.SizeType,
		Variant:      s.Variant,
		VariantAttr:  s.VariantAttr,
		VariantParam: s.VariantParam,
		Details:      s.Details,
		Image:        s.Image,
	}
}

func openStore(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (crawler.ProductStore, error) {
	switch cfg.Provider {
	case storage.ProviderPostgres:
		logger.Info("connecting to postgres", zap.String("table", cfg.Table))
		s, err := postgres.NewProductStore(ctx, postgres.Config{
			DSN:             cfg.Postgres.DSN,
			Table:           cfg.Table,
			MaxConns:        cfg.Postgres.MaxConns,
			MinConns:        cfg.Postgres.MinConns,
			MaxConnLifetime: cfg.Postgres.MaxConnLifetime,
		})
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
		if err := s.EnsureSchema(ctx); err != nil {
			s.Close()
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
		return s, nil
	case storage.ProviderMongo:
		logger.Info("connecting to mongo",
			zap.String("database", cfg.Mongo.Database),
			zap.String("collection", cfg.Mongo.Collection))
		s, err := mongostore.NewProductStore(ctx, mongostore.Config{
			URI:        cfg.Mongo.URI,
			Database:   cfg.Mongo.Database,
			Collection: cfg.Mongo.Collection,
		})
		if err != nil {
			return nil, fmt.Errorf("init mongo store: %w", err)
		}
		return s, nil
	case storage.ProviderMemory, "":
		logger.Warn("using in-memory product store, rows are discarded on exit")
		return memory.NewProductStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage provider: %s", cfg.Provider)
	}
}

func (a *App) ephemeralStore() bool {
	p := a.cfg.Storage.Provider
	return p == storage.ProviderMemory || p == ""
}

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Store exposes the configured product store.
func (a *App) Store() crawler.ProductStore {
	return a.store
}

// Crawl runs one full crawl now.
func (a *App) Crawl(ctx context.Context) crawler.RunStats {
	return a.scheduler.RunOnce(ctx)
}

// Schedule blocks, triggering a crawl every day until ctx is done.
func (a *App) Schedule(ctx context.Context) error {
	if a.ephemeralStore() {
		a.logger.Warn("scheduling daily crawls on the in-memory store, nothing is kept between runs",
			zap.String("hint", "set storage.provider to postgres or mongo"))
	}
	if err := a.scheduler.Run(ctx); err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}
	return nil
}

// StartServer serves the operator API on server.addr. Runs started through
// the API inherit ctx. It is a no-op when no address is configured.
func (a *App) StartServer(ctx context.Context) {
	if a.cfg.Server.Addr == "" || a.server != nil {
		return
	}
	handler := api.NewServer(a.scheduler, api.Config{APIKey: a.cfg.Server.APIKey}, a.logger).Handler()
	a.server = &http.Server{
		Addr:              a.cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	runCtx, cancel := context.WithCancel(ctx)
	a.cancelRuns = cancel
	a.scheduler.Bind(runCtx)
	srv := a.server
	go func() {
		a.logger.Info("starting operator server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("operator server failed", zap.Error(err))
		}
	}()
}

// Close gracefully shuts down all services in the container.
func (a *App) Close() {
	a.logger.Info("shutting down application services")
	if a.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.server.Shutdown(ctx); err != nil {
			a.logger.Warn("error stopping operator server", zap.Error(err))
		}
		cancel()
	}
	if a.cancelRuns != nil {
		a.cancelRuns()
	}
	a.scheduler.Wait()
	a.browser.Close()
	a.store.Close()
	_ = a.logger.Sync()
}
