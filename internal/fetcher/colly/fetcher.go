// Package collyfetcher implements the page fetcher using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/catalog-crawler/internal/metrics"
)

// Waiter gates outbound requests, e.g. a per-host rate limiter.
type Waiter interface {
	Wait(ctx context.Context, url string) error
}

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	Limiter   Waiter
}

// Fetcher returns page bodies over HTTP. It never retries; callers decide
// what a failure means.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher. Clones share the base collector's HTTP backend, so
// every backend setting is applied here once and never per request.
func New(cfg Config) *Fetcher {
	c := colly.NewCollector(colly.Async(false))
	// Validation probes and detail fetches hit the same URL, and every run
	// re-crawls the full catalog.
	c.AllowURLRevisit = true
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	c.WithTransport(newHTTPTransport())
	f := &Fetcher{cfg: cfg, baseCollector: c}
	c.SetRequestTimeout(f.timeout())
	return f
}

// fetchResult is owned by the goroutine running Visit until it is sent.
type fetchResult struct {
	body   []byte
	status int
	err    error
}

// Fetch executes a single HTTP GET and returns the body as text.
// Transport failures and non-2xx responses are returned as errors.
func (f *Fetcher) Fetch(ctx context.Context, url string) (string, error) {
	if f.cfg.Limiter != nil {
		if err := f.cfg.Limiter.Wait(ctx, url); err != nil {
			return "", fmt.Errorf("fetch %s: %w", url, err)
		}
	}

	res, err := f.runCollector(ctx, f.baseCollector.Clone(), url)
	if err != nil {
		metrics.ObserveFetch(url, "canceled")
		return "", fmt.Errorf("fetch %s: %w", url, err)
	}
	if res.status != 0 {
		metrics.ObserveFetch(url, strconv.Itoa(res.status))
	} else {
		metrics.ObserveFetch(url, "error")
	}
	if res.err != nil {
		return "", fmt.Errorf("fetch %s: %w", url, res.err)
	}
	return string(res.body), nil
}

func (f *Fetcher) configureCollectorHooks(hooks collectorHooks, res *fetchResult) {
	hooks.OnResponse(func(r *colly.Response) {
		res.status = r.StatusCode
		res.body = append([]byte(nil), r.Body...)
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil {
			res.status = r.StatusCode
		}
		if err == nil {
			err = errors.New("unknown colly error")
		}
		res.err = err
	})
}

// runCollector returns the visit result, or the context error when ctx ends
// first. An abandoned visit keeps its result to itself.
func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string) (fetchResult, error) {
	done := make(chan fetchResult, 1)
	go func() {
		var res fetchResult
		f.configureCollectorHooks(collector, &res)
		visitErr := collector.Visit(url)
		switch {
		case res.err != nil:
			res.err = fmt.Errorf("colly response failed: %w", res.err)
		case visitErr != nil:
			res.err = fmt.Errorf("colly visit failed: %w", visitErr)
		}
		done <- res
	}()

	select {
	case <-ctx.Done():
		return fetchResult{}, fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case res := <-done:
		return res, nil
	}
}

func (f *Fetcher) timeout() time.Duration {
	if f.cfg.Timeout > 0 {
		return f.cfg.Timeout
	}
	return 30 * time.Second
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       90 * time.Second,
	}
}
