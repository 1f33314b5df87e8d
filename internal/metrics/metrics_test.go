package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Example.com/path", "example.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSite(tc.input); got != tc.expected {
				t.Errorf("SanitizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestInitIdempotent(t *testing.T) {
	Init()
	Init()

	if crawlerProductsTotal == nil || crawlerPagesTotal == nil ||
		crawlerDiscoveryAttemptsTotal == nil || crawlerRunsTotal == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}
}

func TestObservers(t *testing.T) {
	Init()
	before := testutil.ToFloat64(crawlerProductsTotal.WithLabelValues("stored"))
	ObserveProduct("stored")
	if got := testutil.ToFloat64(crawlerProductsTotal.WithLabelValues("stored")); got != before+1 {
		t.Errorf("expected stored products to grow by 1, got %f -> %f", before, got)
	}

	ObserveDiscoveryAttempt("exhausted")
	if got := testutil.ToFloat64(crawlerDiscoveryAttemptsTotal.WithLabelValues("exhausted")); got < 1 {
		t.Errorf("expected exhausted attempts to be counted, got %f", got)
	}

	IncActivePages()
	IncActivePages()
	DecActivePages()
	if got := testutil.ToFloat64(crawlerActivePages); got < 1 {
		t.Errorf("expected active pages gauge >= 1, got %f", got)
	}
	DecActivePages()

	ObserveChunk(2 * time.Second)
	if got := testutil.CollectAndCount(crawlerChunkDurationSeconds); got != 1 {
		t.Errorf("expected chunk histogram to be collected, got %d", got)
	}
}

// Fuzz test for SanitizeSite.
func FuzzSanitizeSite(f *testing.F) {
	testcases := []string{"http://example.com", "https://www.kickscrew.com", "ftp://example.com"}
	for _, tc := range testcases {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		sanitized := SanitizeSite(orig)
		if sanitized == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
