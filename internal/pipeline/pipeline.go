// Package pipeline processes one listing page: discover its product links,
// then fetch, extract and store each product in order.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-crawler/internal/crawler"
	"github.com/JakeFAU/catalog-crawler/internal/metrics"
	"github.com/JakeFAU/catalog-crawler/internal/product"
	"github.com/JakeFAU/catalog-crawler/internal/retry"
)

// LinkDiscoverer yields the validated product links of a listing page.
type LinkDiscoverer interface {
	Discover(ctx context.Context, listingURL string) ([]string, error)
}

// RecordExtractor builds a product record from a parsed detail page.
type RecordExtractor interface {
	Extract(ctx context.Context, doc *goquery.Document, productURL string) product.Record
}

// Options tune page processing.
type Options struct {
	// SkipExisting checks the store for the product title before inserting.
	SkipExisting bool
	// FailurePause is slept after a page's discovery fails outright.
	FailurePause time.Duration
}

// Pipeline implements crawler.PageProcessor.
type Pipeline struct {
	discoverer LinkDiscoverer
	fetcher    crawler.Fetcher
	extractor  RecordExtractor
	store      crawler.ProductStore
	opts       Options
	logger     *zap.Logger
}

var _ crawler.PageProcessor = (*Pipeline)(nil)

// New wires a Pipeline.
func New(
	discoverer LinkDiscoverer,
	fetcher crawler.Fetcher,
	extractor RecordExtractor,
	store crawler.ProductStore,
	opts Options,
	logger *zap.Logger,
) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		discoverer: discoverer,
		fetcher:    fetcher,
		extractor:  extractor,
		store:      store,
		opts:       opts,
		logger:     logger.Named("pipeline"),
	}
}

type outcome int

const (
	stored outcome = iota
	skipped
	failed
)

// ProcessPage never returns an error. Product failures are logged and
// counted; siblings keep going.
func (p *Pipeline) ProcessPage(ctx context.Context, listingURL string) crawler.PageStats {
	metrics.IncActivePages()
	defer metrics.DecActivePages()

	stats := crawler.PageStats{ListingURL: listingURL}
	log := p.logger.With(zap.String("listing", listingURL))

	links, err := p.discoverer.Discover(ctx, listingURL)
	if err != nil {
		stats.Abandoned = true
		metrics.ObservePage("abandoned")
		if ctx.Err() != nil {
			log.Info("page canceled during discovery", zap.Error(err))
			return stats
		}
		log.Error("link discovery failed, pausing before moving on",
			zap.Duration("pause", p.opts.FailurePause), zap.Error(err))
		_ = retry.Sleep(ctx, p.opts.FailurePause)
		return stats
	}
	stats.LinksFound = len(links)

	for _, link := range links {
		if ctx.Err() != nil {
			log.Info("page canceled", zap.Error(ctx.Err()))
			break
		}
		switch p.processProduct(ctx, log, link) {
		case stored:
			stats.ProductsStored++
			metrics.ObserveProduct("stored")
		case skipped:
			stats.ProductsSkipped++
			metrics.ObserveProduct("skipped")
		case failed:
			stats.ProductsFailed++
			metrics.ObserveProduct("failed")
		}
	}

	metrics.ObservePage("processed")
	log.Info("listing page done",
		zap.Int("links", stats.LinksFound),
		zap.Int("stored", stats.ProductsStored),
		zap.Int("skipped", stats.ProductsSkipped),
		zap.Int("failed", stats.ProductsFailed))
	return stats
}

func (p *Pipeline) processProduct(ctx context.Context, log *zap.Logger, link string) outcome {
	log = log.With(zap.String("url", link))

	rec, err := p.load(ctx, link)
	if err != nil {
		log.Warn("skipping product", zap.Error(err))
		return failed
	}

	if p.opts.SkipExisting {
		if title, ok := rec.Title.Get(); ok {
			exists, err := p.store.Exists(ctx, title)
			switch {
			case err != nil:
				log.Warn("existence check failed, inserting anyway", zap.Error(err))
			case exists:
				log.Debug("product already stored", zap.String("title", title))
				return skipped
			}
		}
	}

	row, err := rec.Row()
	if err != nil {
		log.Warn("encode product", zap.Error(err))
		return failed
	}
	id, err := p.store.Insert(ctx, row)
	if err != nil {
		log.Error("insert product", zap.Error(err))
		return failed
	}
	log.Debug("product stored", zap.String("id", id))
	return stored
}

func (p *Pipeline) load(ctx context.Context, link string) (product.Record, error) {
	body, err := p.fetcher.Fetch(ctx, link)
	if err != nil {
		return product.Record{}, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return product.Record{}, fmt.Errorf("parse detail page: %w", err)
	}
	return p.extractor.Extract(ctx, doc, link), nil
}
