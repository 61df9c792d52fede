package scraper

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/kiranraju/barcodescout/internal/model"
)

// Selector cascades, ordered most-specific-first the way the site has
// historically rendered product pages. The site is a React app and its
// markup drifts, so each field is hunted through several generations of
// class names.
var (
	nameSelectors = []string{
		"h1",
		"[data-testid*='product-name']",
		".product-name",
		".product-title",
		".product-info h1",
		".product-info h2",
		".product-details h1",
		".product-details h2",
	}

	mrpSelectors = []string{
		"[data-testid*='mrp']",
		".mrp",
		".product-mrp",
		".max-retail-price",
		".retail-price",
		"[class*='mrp']",
		"[class*='retail']",
	}

	priceSelectors = []string{
		"[data-testid*='price']",
		".price",
		".product-price",
		".cost",
		".amount",
		".selling-price",
	}

	imageSelectors = []string{
		"img",
		"[data-testid*='product-image']",
		"[data-testid*='image']",
		".product-image img",
		".product-photo img",
		".product-img img",
		".product-picture img",
		".main-image img",
		".hero-image img",
		".featured-image img",
		"img[alt*='product']",
		"img[alt*='Product']",
		"img[src*='product']",
		"img[src*='Product']",
		"img[src*='gs1datakart']",
		"img[src*='api.gs1datakart.org']",
		"img[class*='product']",
		"img[class*='main']",
		"img[class*='hero']",
		"img[class*='featured']",
		".image-container img",
		".photo-container img",
		".img-container img",
		"picture img",
		"figure img",
	}
)

// errorMessages are phrases that mark the page as a miss regardless of
// what else it contains. "product not found" on its own is NOT here:
// the site prints that string inside legitimate product pages too, so
// it only counts when prefixed as a clear error (see errorContexts).
var errorMessages = []string{
	"string indices must be integers, not 'str'",
	"404 error",
	"page not found",
	"invalid barcode",
	"barcode not found",
	"no product data available",
	"error: product not found",
}

var errorContexts = []string{
	"error: product not found",
	"alert: product not found",
	"message: product not found",
	"status: product not found",
}

var currencyMarks = []string{"₹", "Rs", "$", "€", "£"}

var pricePatterns = []*regexp.Regexp{
	regexp.MustCompile(`₹\s*[\d,]+\.?\d*`),
	regexp.MustCompile(`Rs\s*[\d,]+\.?\d*`),
	regexp.MustCompile(`\$\s*[\d,]+\.?\d*`),
	regexp.MustCompile(`€\s*[\d,]+\.?\d*`),
	regexp.MustCompile(`£\s*[\d,]+\.?\d*`),
}

// Extractor pulls product fields out of a rendered lookup page.
type Extractor struct {
	origin string
	log    zerolog.Logger
}

// NewExtractor builds an extractor resolving relative URLs against host.
func NewExtractor(host string, log zerolog.Logger) *Extractor {
	return &Extractor{
		origin: siteOrigin(host),
		log:    log.With().Str("component", "extractor").Logger(),
	}
}

// Extract runs the cascades against the page. It returns ErrNotFound
// when the page is an error page or yields neither a name nor a price.
// The Image field is always populated on success, falling back to a
// synthesized GS1 URL or the placeholder.
func (e *Extractor) Extract(page Page, barcode string) (model.ProductFields, error) {
	fields := model.ProductFields{Barcode: barcode}

	if e.isErrorPage(page) {
		return fields, ErrNotFound
	}

	fields.Name = e.extractName(page)
	fields.Price = e.extractPrice(page)
	fields.Image = e.extractImage(page, barcode)

	if !fields.Found() {
		e.log.Debug().Str("barcode", barcode).Msg("page rendered but no name or price found")
		return fields, ErrNotFound
	}
	return fields, nil
}

// isErrorPage rejects obvious miss pages before any field hunting.
func (e *Extractor) isErrorPage(page Page) bool {
	u := strings.ToLower(page.URL())
	if strings.Contains(u, "404") || strings.Contains(u, "error") || strings.Contains(u, "not-found") {
		e.log.Debug().Str("url", page.URL()).Msg("error page detected from url")
		return true
	}
	if strings.Contains(strings.ToLower(page.Title()), "error") {
		e.log.Debug().Str("title", page.Title()).Msg("error page detected from title")
		return true
	}

	text := strings.ToLower(page.HTML())
	for _, msg := range errorMessages {
		if strings.Contains(text, msg) {
			e.log.Debug().Str("phrase", msg).Msg("error phrase detected in page")
			return true
		}
	}

	// "product not found" alone is ambiguous; only a labeled occurrence
	// counts as a real miss.
	if strings.Contains(text, "product not found") {
		for _, ctx := range errorContexts {
			if strings.Contains(text, ctx) {
				e.log.Debug().Str("context", ctx).Msg("labeled not-found message detected")
				return true
			}
		}
	}
	return false
}

func (e *Extractor) extractName(page Page) string {
	for _, selector := range nameSelectors {
		el, ok := page.First(selector)
		if !ok {
			continue
		}
		text := el.Text()
		if text == "" || isErrorText(text) {
			continue
		}
		return text
	}

	// The <title> often carries the product name once the SPA has
	// hydrated; the bare site name means it has not.
	title := page.Title()
	if title != "" && !strings.Contains(title, "Smart Consumer") && len(title) > 5 {
		return title
	}
	return ""
}

func isErrorText(text string) bool {
	lower := strings.ToLower(text)
	for _, msg := range errorMessages {
		if strings.Contains(lower, msg) {
			return true
		}
	}
	return false
}

func (e *Extractor) extractPrice(page Page) string {
	// MRP is preferred over a generic price when both render.
	for _, selector := range mrpSelectors {
		if price, ok := firstPricedText(page, selector); ok {
			return price
		}
	}
	for _, selector := range priceSelectors {
		if price, ok := firstPricedText(page, selector); ok {
			return price
		}
	}

	// Raw source sweep for currency-prefixed amounts.
	html := page.HTML()
	for _, pattern := range pricePatterns {
		if match := pattern.FindString(html); match != "" {
			return match
		}
	}

	// Last resort: any short text node carrying a currency mark. The
	// length cap keeps paragraphs that merely mention prices out.
	for _, el := range page.All("span, div, p, b, strong, td") {
		text := el.Text()
		if text == "" || len(text) >= 20 {
			continue
		}
		if hasCurrencyMark(text) {
			return text
		}
	}
	return ""
}

func firstPricedText(page Page, selector string) (string, bool) {
	el, ok := page.First(selector)
	if !ok {
		return "", false
	}
	text := el.Text()
	if text == "" || !hasCurrencyMark(text) {
		return "", false
	}
	return text, true
}

func hasCurrencyMark(text string) bool {
	for _, mark := range currencyMarks {
		if strings.Contains(text, mark) {
			return true
		}
	}
	return false
}

func (e *Extractor) extractImage(page Page, barcode string) string {
	for _, selector := range imageSelectors {
		for _, el := range page.All(selector) {
			src, ok := e.usableImageSrc(el)
			if ok {
				return src
			}
		}
	}

	// Nothing matched the cascades; take any large-enough img, or one
	// whose path at least claims to be a product shot.
	for _, el := range page.All("img") {
		src, _ := el.Attr("src")
		if src == "" {
			continue
		}
		lower := strings.ToLower(src)
		if attrDimension(el, "width") > 100 || attrDimension(el, "height") > 100 ||
			strings.Contains(lower, "product") || strings.Contains(lower, "item") {
			if url, ok := normalizeImageSrc(e.origin, src); ok {
				return url
			}
		}
	}

	return synthesizeImageURL(barcode)
}

// usableImageSrc applies the junk filters: data URIs, placeholders,
// logos, icons, and tiny fixed-size images. Zero dimensions pass since
// CSS-sized images report 0.
func (e *Extractor) usableImageSrc(el Element) (string, bool) {
	src, _ := el.Attr("src")
	src = strings.TrimSpace(src)
	if src == "" {
		return "", false
	}
	lower := strings.ToLower(src)
	if strings.HasPrefix(src, "data:") ||
		strings.Contains(lower, "placeholder") ||
		strings.Contains(lower, "logo") ||
		strings.Contains(lower, "icon") {
		return "", false
	}
	if w := attrDimension(el, "width"); w > 0 && w < 50 {
		return "", false
	}
	if h := attrDimension(el, "height"); h > 0 && h < 50 {
		return "", false
	}
	return normalizeImageSrc(e.origin, src)
}

func attrDimension(el Element, name string) int {
	raw, ok := el.Attr(name)
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0
	}
	return n
}
