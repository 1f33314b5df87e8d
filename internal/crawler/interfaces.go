package crawler

import (
	"context"
	"time"

	"github.com/JakeFAU/catalog-crawler/internal/product"
)

// Fetcher retrieves a page body over HTTP. Implementations do not retry.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Renderer loads a page in a browser, waits for cardSelector to appear and
// returns the href of the first anchor inside each matching card, in DOM order.
type Renderer interface {
	ListHrefs(ctx context.Context, pageURL string, cardSelector string) ([]string, error)
}

// ProductStore appends product rows. Insert never deduplicates.
type ProductStore interface {
	Insert(ctx context.Context, row product.Row) (string, error)
	Exists(ctx context.Context, title string) (bool, error)
	Close()
}

// PageProcessor handles one listing page end to end.
type PageProcessor interface {
	ProcessPage(ctx context.Context, listingURL string) PageStats
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
