package crawler

import "time"

// RunStatus is the terminal state of a crawl run.
type RunStatus string

// Run status values reported by the dispatcher and scheduler.
const (
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusCanceled  RunStatus = "canceled"
	RunStatusSkipped   RunStatus = "skipped"
)

// PageStats summarizes one listing page.
type PageStats struct {
	ListingURL      string `json:"listing_url"`
	LinksFound      int    `json:"links_found"`
	ProductsStored  int    `json:"products_stored"`
	ProductsSkipped int    `json:"products_skipped"`
	ProductsFailed  int    `json:"products_failed"`
	Abandoned       bool   `json:"abandoned"`
}

// RunStats aggregates a full crawl run.
type RunStats struct {
	RunID           string        `json:"run_id"`
	Status          RunStatus     `json:"status"`
	Started         time.Time     `json:"started_at"`
	Finished        time.Time     `json:"finished_at"`
	Chunks          int           `json:"chunks"`
	Pages           int           `json:"pages"`
	PagesAbandoned  int           `json:"pages_abandoned"`
	ProductsStored  int           `json:"products_stored"`
	ProductsSkipped int           `json:"products_skipped"`
	ProductsFailed  int           `json:"products_failed"`
	Duration        time.Duration `json:"duration"`
}

// Add folds a page result into the run totals.
func (s *RunStats) Add(p PageStats) {
	s.Pages++
	if p.Abandoned {
		s.PagesAbandoned++
	}
	s.ProductsStored += p.ProductsStored
	s.ProductsSkipped += p.ProductsSkipped
	s.ProductsFailed += p.ProductsFailed
}
