// Package extract maps a parsed product detail page to a product.Record.
//
// Every field is extracted on its own. A missing element, attribute or
// malformed fragment leaves that field absent and never affects the others.
package extract

import (
	"context"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-crawler/internal/crawler"
	"github.com/JakeFAU/catalog-crawler/internal/product"
)

// Selectors locates each field on a detail page.
type Selectors struct {
	Title        string
	Description  string
	Price        string
	SizeType     string
	Variant      string
	VariantAttr  string
	VariantParam string
	Details      string
	Image        string
}

// Extractor runs the field extractors. Variants is used by ProductSize to
// fetch per-variant pages.
type Extractor struct {
	sel      Selectors
	variants crawler.Fetcher
	logger   *zap.Logger
}

// New builds an Extractor.
func New(sel Selectors, variants crawler.Fetcher, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{sel: sel, variants: variants, logger: logger}
}

// Extract assembles a record from doc.
func (e *Extractor) Extract(ctx context.Context, doc *goquery.Document, productURL string) product.Record {
	return product.Record{
		SourceURL:      productURL,
		Title:          e.Title(doc),
		Description:    e.Description(doc),
		Price:          e.Price(doc),
		SizeType:       e.SizeType(doc),
		ProductSize:    e.ProductSize(ctx, doc, productURL),
		ProductDetails: e.ProductDetails(doc),
		ImagesLinks:    e.ImageLinks(doc, productURL),
	}
}

// Title returns the trimmed text of the product heading.
func (e *Extractor) Title(doc *goquery.Document) product.Field[string] {
	return trimmedText(doc.Selection, e.sel.Title)
}

// Description returns the text of the first paragraph in the description
// container, or product.NoDescription when either is missing.
func (e *Extractor) Description(doc *goquery.Document) string {
	container := first(doc.Selection, e.sel.Description)
	if container == nil {
		return product.NoDescription
	}
	para := first(container, "p")
	if para == nil {
		return product.NoDescription
	}
	return para.Text()
}

// Price returns the trimmed current price text.
func (e *Extractor) Price(doc *goquery.Document) product.Field[string] {
	return trimmedText(doc.Selection, e.sel.Price)
}

// SizeType returns the raw text of the size option block.
func (e *Extractor) SizeType(doc *goquery.Document) product.Field[string] {
	s := first(doc.Selection, e.sel.SizeType)
	if s == nil {
		return product.None[string]()
	}
	return product.Some(s.Text())
}

// ProductSize fetches up to product.SizeChartRows variant pages and builds
// the size chart from their prices. A variant that cannot be resolved
// contributes an empty value. No variant elements means absent.
func (e *Extractor) ProductSize(ctx context.Context, doc *goquery.Document, productURL string) product.Field[product.SizeChart] {
	if e.sel.Variant == "" {
		return product.None[product.SizeChart]()
	}
	variants := doc.Find(e.sel.Variant)
	if variants.Length() == 0 {
		return product.None[product.SizeChart]()
	}

	n := min(variants.Length(), product.SizeChartRows)
	prices := make([]string, 0, n)
	for i := 0; i < n; i++ {
		prices = append(prices, e.variantPrice(ctx, variants.Eq(i), productURL))
	}
	return product.Some(product.BuildSizeChart(prices))
}

func (e *Extractor) variantPrice(ctx context.Context, variant *goquery.Selection, productURL string) string {
	id, ok := variant.Attr(e.sel.VariantAttr)
	if !ok || id == "" {
		e.logger.Debug("variant without id", zap.String("url", productURL))
		return ""
	}
	if e.variants == nil {
		return ""
	}
	variantURL, err := VariantURL(productURL, e.sel.VariantParam, id)
	if err != nil {
		e.logger.Debug("variant url", zap.String("url", productURL), zap.Error(err))
		return ""
	}
	body, err := e.variants.Fetch(ctx, variantURL)
	if err != nil {
		e.logger.Debug("variant fetch failed", zap.String("url", variantURL), zap.Error(err))
		return ""
	}
	vdoc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		e.logger.Debug("variant parse failed", zap.String("url", variantURL), zap.Error(err))
		return ""
	}
	price, _ := trimmedText(vdoc.Selection, e.sel.Price).Get()
	return price
}

// VariantURL sets the variant query parameter on productURL, replacing any
// existing value.
func VariantURL(productURL, param, id string) (string, error) {
	u, err := url.Parse(productURL)
	if err != nil {
		return "", err
	}
	if param == "" {
		param = "variant"
	}
	q := u.Query()
	q.Set(param, id)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ProductDetails reads the spans of the first details panel positionally
// into the five metadata keys.
func (e *Extractor) ProductDetails(doc *goquery.Document) product.Field[product.Details] {
	panel := first(doc.Selection, e.sel.Details)
	if panel == nil {
		return product.None[product.Details]()
	}
	spans := panel.Find("span")
	if spans.Length() == 0 {
		return product.None[product.Details]()
	}

	at := func(i int) product.Field[string] {
		if i >= spans.Length() {
			return product.None[string]()
		}
		return product.Some(strings.TrimSpace(spans.Eq(i).Text()))
	}
	return product.Some(product.Details{
		ModelNo:     at(0),
		ReleaseDate: at(1),
		Series:      at(2),
		Nickname:    at(3),
		ColorWay:    at(4),
	})
}

// ImageLinks collects the first image of every media container, in
// document order.
func (e *Extractor) ImageLinks(doc *goquery.Document, baseURL string) product.Field[[]string] {
	containers := doc.Find(e.sel.Image)
	if containers.Length() == 0 {
		return product.None[[]string]()
	}

	base, _ := url.Parse(baseURL)
	links := make([]string, 0, containers.Length())
	containers.Each(func(_ int, c *goquery.Selection) {
		src, ok := c.Find("img").First().Attr("src")
		if !ok {
			return
		}
		if link := normalizeImage(strings.TrimSpace(src), base); link != "" {
			links = append(links, link)
		}
	})
	return product.Some(links)
}

func normalizeImage(src string, base *url.URL) string {
	switch {
	case src == "":
		return ""
	case strings.HasPrefix(src, "//"):
		return "https:" + src
	}
	ref, err := url.Parse(src)
	if err != nil {
		return ""
	}
	if ref.IsAbs() || base == nil {
		return ref.String()
	}
	return base.ResolveReference(ref).String()
}

func first(s *goquery.Selection, selector string) *goquery.Selection {
	if selector == "" {
		return nil
	}
	found := s.Find(selector).First()
	if found.Length() == 0 {
		return nil
	}
	return found
}

func trimmedText(s *goquery.Selection, selector string) product.Field[string] {
	found := first(s, selector)
	if found == nil {
		return product.None[string]()
	}
	return product.Some(strings.TrimSpace(found.Text()))
}
