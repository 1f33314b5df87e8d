// Package dispatcher drives a crawl run over the listing page range.
//
// Pages are split into consecutive chunks. The pages of one chunk run
// concurrently, bounded by a weighted semaphore; chunks run strictly in
// order with a fixed pause between them.
package dispatcher

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/JakeFAU/catalog-crawler/internal/crawler"
	"github.com/JakeFAU/catalog-crawler/internal/metrics"
	"github.com/JakeFAU/catalog-crawler/internal/retry"
)

// Config describes the page range and pacing of a run.
type Config struct {
	TotalPages int
	ChunkSize  int
	ChunkDelay time.Duration
	// ListingURL renders the URL of a 1-based page number.
	ListingURL func(page int) string
}

// Dispatcher fans listing pages out to a PageProcessor.
type Dispatcher struct {
	processor crawler.PageProcessor
	cfg       Config
	clock     crawler.Clock
	logger    *zap.Logger
}

// New creates a Dispatcher.
func New(processor crawler.PageProcessor, cfg Config, clock crawler.Clock, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		processor: processor,
		cfg:       cfg,
		clock:     clock,
		logger:    logger.Named("dispatcher"),
	}
}

// Chunks partitions 1..total into consecutive runs of at most size pages.
func Chunks(total, size int) [][]int {
	if total <= 0 || size <= 0 {
		return nil
	}
	chunks := make([][]int, 0, (total+size-1)/size)
	for start := 1; start <= total; start += size {
		end := min(start+size-1, total)
		chunk := make([]int, 0, end-start+1)
		for page := start; page <= end; page++ {
			chunk = append(chunk, page)
		}
		chunks = append(chunks, chunk)
	}
	return chunks
}

// Run crawls the whole page range and blocks until it finishes or ctx is
// canceled. Cancellation takes effect at the next page or chunk boundary;
// pages already in flight are allowed to return.
func (d *Dispatcher) Run(ctx context.Context, runID string) crawler.RunStats {
	log := d.logger.With(zap.String("run_id", runID))
	stats := crawler.RunStats{
		RunID:   runID,
		Status:  crawler.RunStatusSucceeded,
		Started: d.clock.Now(),
	}

	sem := semaphore.NewWeighted(int64(max(d.cfg.ChunkSize, 1)))
	chunks := Chunks(d.cfg.TotalPages, d.cfg.ChunkSize)
	log.Info("crawl run starting",
		zap.Int("pages", d.cfg.TotalPages),
		zap.Int("chunk_size", d.cfg.ChunkSize),
		zap.Int("chunks", len(chunks)))

	for i, chunk := range chunks {
		if ctx.Err() != nil {
			stats.Status = crawler.RunStatusCanceled
			break
		}
		log.Info("fetching chunk", zap.Int("from", chunk[0]), zap.Int("to", chunk[len(chunk)-1]))

		chunkStart := time.Now()
		d.runChunk(ctx, sem, chunk, &stats)
		stats.Chunks++
		metrics.ObserveChunk(time.Since(chunkStart))

		if i < len(chunks)-1 {
			if err := retry.Sleep(ctx, d.cfg.ChunkDelay); err != nil {
				stats.Status = crawler.RunStatusCanceled
				break
			}
		}
	}
	if ctx.Err() != nil {
		stats.Status = crawler.RunStatusCanceled
	}

	stats.Finished = d.clock.Now()
	stats.Duration = stats.Finished.Sub(stats.Started)
	metrics.ObserveRun(string(stats.Status))
	log.Info("crawl run finished",
		zap.String("status", string(stats.Status)),
		zap.Int("chunks", stats.Chunks),
		zap.Int("pages", stats.Pages),
		zap.Int("pages_abandoned", stats.PagesAbandoned),
		zap.Int("products_stored", stats.ProductsStored),
		zap.Int("products_skipped", stats.ProductsSkipped),
		zap.Int("products_failed", stats.ProductsFailed),
		zap.Duration("duration", stats.Duration))
	return stats
}

func (d *Dispatcher) runChunk(ctx context.Context, sem *semaphore.Weighted, chunk []int, stats *crawler.RunStats) {
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, page := range chunk {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(page int) {
			defer wg.Done()
			defer sem.Release(1)
			result := d.processor.ProcessPage(ctx, d.cfg.ListingURL(page))
			mu.Lock()
			stats.Add(result)
			mu.Unlock()
		}(page)
	}
	wg.Wait()
}
