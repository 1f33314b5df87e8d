// Package discovery turns a listing page into the ordered set of product
// detail URLs that can actually be fetched.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-crawler/internal/crawler"
	"github.com/JakeFAU/catalog-crawler/internal/metrics"
	"github.com/JakeFAU/catalog-crawler/internal/retry"
)

// ErrInvalidListingURL is returned for listing URLs that can never render.
var ErrInvalidListingURL = errors.New("invalid listing url")

// Discoverer renders listing pages and validates the links it finds.
type Discoverer struct {
	renderer     crawler.Renderer
	fetcher      crawler.Fetcher
	policy       retry.Policy
	cardSelector string
	logger       *zap.Logger
}

// New builds a Discoverer.
func New(renderer crawler.Renderer, fetcher crawler.Fetcher, policy retry.Policy, cardSelector string, logger *zap.Logger) *Discoverer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Discoverer{
		renderer:     renderer,
		fetcher:      fetcher,
		policy:       policy,
		cardSelector: cardSelector,
		logger:       logger.Named("discovery"),
	}
}

// Discover returns the validated product links on listingURL in page order.
// When every render attempt fails it returns an empty list and a nil error;
// only cancellation and an unusable listing URL are reported as errors.
func (d *Discoverer) Discover(ctx context.Context, listingURL string) ([]string, error) {
	if err := validateListingURL(listingURL); err != nil {
		return nil, err
	}
	log := d.logger.With(zap.String("url", listingURL))

	var hrefs []string
	err := retry.Do(ctx, d.policy, func(ctx context.Context, _ int) error {
		found, err := d.renderer.ListHrefs(ctx, listingURL, d.cardSelector)
		if err != nil {
			return err
		}
		hrefs = found
		return nil
	}, func(tr retry.Transition) {
		switch tr.State {
		case retry.BackingOff:
			metrics.ObserveDiscoveryAttempt("failed")
			log.Warn("listing render failed, retrying",
				zap.Int("attempt", tr.Attempt),
				zap.Duration("backoff", tr.Wait),
				zap.Error(tr.Err))
		case retry.Exhausted:
			metrics.ObserveDiscoveryAttempt("exhausted")
			log.Error("listing render failed, giving up on page",
				zap.Int("attempts", tr.Attempt),
				zap.Error(tr.Err))
		case retry.Succeeded:
			metrics.ObserveDiscoveryAttempt("succeeded")
		}
	})
	switch {
	case errors.Is(err, retry.ErrExhausted):
		return []string{}, nil
	case err != nil:
		return nil, fmt.Errorf("discover %s: %w", listingURL, err)
	}

	return d.validate(ctx, log, hrefs)
}

// validate probes each link once and keeps the ones that return a body.
func (d *Discoverer) validate(ctx context.Context, log *zap.Logger, hrefs []string) ([]string, error) {
	valid := make([]string, 0, len(hrefs))
	for _, href := range hrefs {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("validate links: %w", err)
		}
		body, err := d.fetcher.Fetch(ctx, href)
		if err != nil || body == "" {
			metrics.ObserveLinkDropped()
			log.Info("dropping product link", zap.String("href", href), zap.Error(err))
			continue
		}
		valid = append(valid, href)
	}
	log.Debug("links discovered", zap.Int("found", len(hrefs)), zap.Int("valid", len(valid)))
	return valid, nil
}

func validateListingURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidListingURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidListingURL, raw)
	}
	return nil
}
