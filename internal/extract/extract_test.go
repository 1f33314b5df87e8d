package extract

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-crawler/internal/product"
)

const productURL = "https://shop.example.com/products/air-max-1"

const detailPage = `<html><body>
<h1 class="product-area__details__title product-detail__gap-sm h2">
  Air Max 1 '86
</h1>
<span class="current-price theme-money"> $150.00 </span>
<div class="pdpOptionValues"> US Men </div>
<div class="product-detail__tab-container product-detail__gap-lg">
  <p>The original.</p><p>Second paragraph.</p>
</div>
<div onclick="handleVariantClick(event)" data-variant-id="101">3.5</div>
<div onclick="handleVariantClick(event)" data-variant-id="102">4</div>
<div onclick="handleVariantClick(event)">4.5</div>
<div onclick="handleVariantClick(event)" data-variant-id="104">5</div>
<div class="cc-tabs__tab__panel rte">
  <span> DZ4549-001 </span><span>2023-03-26</span><span>Air Max</span>
</div>
<div class="product-media product-media--image"><img src="//cdn.example.com/a.jpg"></div>
<div class="product-media product-media--image"><span>video</span></div>
<div class="product-media product-media--image"><img src="/files/b.jpg"></div>
<div class="product-media product-media--image"><img src="https://img.example.com/c.jpg"></div>
</body></html>`

func defaultSelectors() Selectors {
	return Selectors{
		Title:        "h1.product-area__details__title.product-detail__gap-sm.h2",
		Description:  "div.product-detail__tab-container.product-detail__gap-lg",
		Price:        "span.current-price.theme-money",
		SizeType:     "div.pdpOptionValues",
		Variant:      `div[onclick="handleVariantClick(event)"]`,
		VariantAttr:  "data-variant-id",
		VariantParam: "variant",
		Details:      "div.cc-tabs__tab__panel.rte",
		Image:        "div.product-media.product-media--image",
	}
}

type fakeFetcher struct {
	mu    sync.Mutex
	pages map[string]string
	calls []string
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, url)
	body, ok := f.pages[url]
	if !ok {
		return "", errors.New("not found")
	}
	return body, nil
}

func priceHTML(p string) string {
	return `<span class="current-price theme-money">` + p + `</span>`
}

func parse(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

func TestExtractFullPage(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{pages: map[string]string{
		productURL + "?variant=101": priceHTML("$150.00"),
		productURL + "?variant=102": priceHTML(" $155.00 "),
		productURL + "?variant=104": `<html><body>sold out</body></html>`,
	}}
	e := New(defaultSelectors(), fetcher, zap.NewNop())

	rec := e.Extract(context.Background(), parse(t, detailPage), productURL)

	assert.Equal(t, productURL, rec.SourceURL)
	assert.Equal(t, product.Some("Air Max 1 '86"), rec.Title)
	assert.Equal(t, "The original.", rec.Description)
	assert.Equal(t, product.Some("$150.00"), rec.Price)
	assert.Equal(t, product.Some(" US Men "), rec.SizeType)

	chart, ok := rec.ProductSize.Get()
	require.True(t, ok)
	require.Len(t, chart, 4)
	assert.Equal(t, "$150.00", chart[0].Value)
	assert.Equal(t, "$155.00", chart[1].Value)
	assert.Equal(t, product.OutOfStock, chart[2].Value, "variant without id")
	assert.Equal(t, product.OutOfStock, chart[3].Value, "variant without price")
	assert.Len(t, fetcher.calls, 3)

	details, ok := rec.ProductDetails.Get()
	require.True(t, ok)
	assert.Equal(t, product.Some("DZ4549-001"), details.ModelNo)
	assert.Equal(t, product.Some("2023-03-26"), details.ReleaseDate)
	assert.Equal(t, product.Some("Air Max"), details.Series)
	assert.False(t, details.Nickname.Present())
	assert.False(t, details.ColorWay.Present())

	images, ok := rec.ImagesLinks.Get()
	require.True(t, ok)
	assert.Equal(t, []string{
		"https://cdn.example.com/a.jpg",
		"https://shop.example.com/files/b.jpg",
		"https://img.example.com/c.jpg",
	}, images)
}

func TestExtractEmptyDocumentFallsBack(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{}
	e := New(defaultSelectors(), fetcher, nil)

	rec := e.Extract(context.Background(), parse(t, `<html><body><p>nothing here</p></body></html>`), productURL)

	assert.False(t, rec.Title.Present())
	assert.Equal(t, product.NoDescription, rec.Description)
	assert.False(t, rec.Price.Present())
	assert.False(t, rec.SizeType.Present())
	assert.False(t, rec.ProductSize.Present())
	assert.False(t, rec.ProductDetails.Present())
	assert.False(t, rec.ImagesLinks.Present())
	assert.Empty(t, fetcher.calls)
}

func TestDescription(t *testing.T) {
	t.Parallel()

	e := New(defaultSelectors(), nil, nil)
	tests := []struct {
		name string
		html string
		want string
	}{
		{"missing container", `<div></div>`, product.NoDescription},
		{"container without paragraph", `<div class="product-detail__tab-container product-detail__gap-lg">text</div>`, product.NoDescription},
		{"empty paragraph", `<div class="product-detail__tab-container product-detail__gap-lg"><p></p></div>`, ""},
		{"untrimmed paragraph", `<div class="product-detail__tab-container product-detail__gap-lg"><p> hi </p></div>`, " hi "},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, e.Description(parse(t, tt.html)))
		})
	}
}

func TestTitleEmptyTextIsPresent(t *testing.T) {
	t.Parallel()

	e := New(defaultSelectors(), nil, nil)
	got := e.Title(parse(t, `<h1 class="product-area__details__title product-detail__gap-sm h2">   </h1>`))
	assert.Equal(t, product.Some(""), got)
}

func TestProductSizeCapsAtChartRows(t *testing.T) {
	t.Parallel()

	var b strings.Builder
	pages := map[string]string{}
	for i := 0; i < 40; i++ {
		id := string(rune('a'+i%26)) + strings.Repeat("x", i/26)
		b.WriteString(`<div onclick="handleVariantClick(event)" data-variant-id="` + id + `"></div>`)
		pages[productURL+"?variant="+id] = priceHTML("$" + id)
	}
	fetcher := &fakeFetcher{pages: pages}
	e := New(defaultSelectors(), fetcher, nil)

	chart, ok := e.ProductSize(context.Background(), parse(t, b.String()), productURL).Get()
	require.True(t, ok)
	assert.Len(t, chart, product.SizeChartRows)
	assert.Len(t, fetcher.calls, product.SizeChartRows)
	assert.Equal(t, "$a", chart[0].Value)
}

func TestProductDetailsWithoutSpansIsAbsent(t *testing.T) {
	t.Parallel()

	e := New(defaultSelectors(), nil, nil)
	got := e.ProductDetails(parse(t, `<div class="cc-tabs__tab__panel rte">plain text</div>`))
	assert.False(t, got.Present())
}

func TestImageLinksContainersWithoutImages(t *testing.T) {
	t.Parallel()

	e := New(defaultSelectors(), nil, nil)
	got, ok := e.ImageLinks(parse(t, `<div class="product-media product-media--image"></div>`), productURL).Get()
	require.True(t, ok)
	require.NotNil(t, got)
	assert.Empty(t, got)
}

func TestVariantURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		base  string
		param string
		want  string
	}{
		{"plain", productURL, "variant", productURL + "?variant=7"},
		{"existing query", productURL + "?ref=home", "variant", productURL + "?ref=home&variant=7"},
		{"replaces existing variant", productURL + "?variant=1", "variant", productURL + "?variant=7"},
		{"default param", productURL, "", productURL + "?variant=7"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := VariantURL(tt.base, tt.param, "7")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := VariantURL("://bad", "variant", "7")
	assert.Error(t, err)
}

func FuzzExtractNeverPanics(f *testing.F) {
	f.Add(detailPage)
	f.Add(`<div class="cc-tabs__tab__panel rte"><span>`)
	f.Add(`<div class="product-media product-media--image"><img src="%zz"></div>`)
	e := New(defaultSelectors(), &fakeFetcher{}, nil)
	f.Fuzz(func(t *testing.T, html string) {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
		if err != nil {
			return
		}
		rec := e.Extract(context.Background(), doc, productURL)
		if chart, ok := rec.ProductSize.Get(); ok && len(chart) > product.SizeChartRows {
			t.Fatalf("size chart has %d rows", len(chart))
		}
	})
}
