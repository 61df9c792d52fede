package scraper

import (
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testHost = "smartconsumer-beta.org"

func newTestExtractor() *Extractor {
	return NewExtractor(testHost, zerolog.Nop())
}

func parsePage(t *testing.T, url, html string) Page {
	t.Helper()
	page, err := NewStaticPage(url, strings.NewReader(html))
	require.NoError(t, err)
	return page
}

func productPage(t *testing.T, body string) Page {
	return parsePage(t, ProductURL(testHost, "8901234567890"),
		"<html><head><title>Amul Butter 500g</title></head><body>"+body+"</body></html>")
}

func TestExtractFullProduct(t *testing.T) {
	page := productPage(t, `
		<div class="product-info">
			<h1>Amul Butter 500g</h1>
			<span class="mrp">₹275.00</span>
			<img src="https://cdn.smartconsumer-beta.org/images/amul-butter.jpg" width="400" height="400">
		</div>`)

	fields, err := newTestExtractor().Extract(page, "8901234567890")
	require.NoError(t, err)
	assert.Equal(t, "Amul Butter 500g", fields.Name)
	assert.Equal(t, "₹275.00", fields.Price)
	assert.Equal(t, "https://cdn.smartconsumer-beta.org/images/amul-butter.jpg", fields.Image)
}

func TestExtractNameFromTitleFallback(t *testing.T) {
	page := parsePage(t, ProductURL(testHost, "8901234567890"),
		`<html><head><title>Parle-G Gold Biscuit</title></head><body><p>loading</p></body></html>`)

	fields, err := newTestExtractor().Extract(page, "8901234567890")
	require.NoError(t, err)
	assert.Equal(t, "Parle-G Gold Biscuit", fields.Name)
}

func TestExtractTitleFallbackRejectsSiteName(t *testing.T) {
	page := parsePage(t, ProductURL(testHost, "8901234567890"),
		`<html><head><title>Smart Consumer</title></head><body><p>loading</p></body></html>`)

	_, err := newTestExtractor().Extract(page, "8901234567890")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestExtractErrorPageFromURL(t *testing.T) {
	page := parsePage(t, "https://"+testHost+"/not-found",
		`<html><head><title>Product Page</title></head><body><h1>Something</h1></body></html>`)

	_, err := newTestExtractor().Extract(page, "8901234567890")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestExtractErrorPhraseRejects(t *testing.T) {
	page := productPage(t, `<h1>Helpful Looking Page</h1><p>Invalid barcode entered.</p>`)

	_, err := newTestExtractor().Extract(page, "8901234567890")
	assert.ErrorIs(t, err, ErrNotFound)
}

// A bare "product not found" occurs in legitimate product pages (for
// example inside script payloads), so it must not reject on its own.
func TestExtractBareNotFoundPhraseProceeds(t *testing.T) {
	page := productPage(t, `
		<script>var fallbackMsg = "product not found";</script>
		<h1>Tata Salt 1kg</h1>
		<span class="price">₹28</span>`)

	fields, err := newTestExtractor().Extract(page, "8901234567890")
	require.NoError(t, err)
	assert.Equal(t, "Tata Salt 1kg", fields.Name)
	assert.Equal(t, "₹28", fields.Price)
}

func TestExtractLabeledNotFoundRejects(t *testing.T) {
	page := productPage(t, `<div class="alert">Error: Product Not Found</div>`)

	_, err := newTestExtractor().Extract(page, "8901234567890")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestExtractPriceRequiresCurrencyMark(t *testing.T) {
	page := productPage(t, `
		<h1>Unpriced Product</h1>
		<span class="price">Contact store</span>`)

	fields, err := newTestExtractor().Extract(page, "8901234567890")
	require.NoError(t, err)
	assert.Empty(t, fields.Price)
}

func TestExtractPricePrefersMRP(t *testing.T) {
	page := productPage(t, `
		<h1>Biscuits</h1>
		<span class="price">₹24</span>
		<span class="mrp">₹30</span>`)

	fields, err := newTestExtractor().Extract(page, "8901234567890")
	require.NoError(t, err)
	assert.Equal(t, "₹30", fields.Price)
}

func TestExtractPriceRegexFallback(t *testing.T) {
	page := productPage(t, `<h1>Bath Soap</h1><section>Best value at Rs 45.50 this week</section>`)

	fields, err := newTestExtractor().Extract(page, "8901234567890")
	require.NoError(t, err)
	assert.Equal(t, "Rs 45.50", fields.Price)
}

func TestExtractImageFilters(t *testing.T) {
	page := productPage(t, `
		<h1>Filtered Product</h1>
		<img src="data:image/png;base64,AAAA">
		<img src="/static/site-logo.png" width="300">
		<img src="/assets/cart-icon.svg">
		<img src="/img/thumb.jpg" width="32" height="32">
		<img src="/uploads/real-product.jpg" width="0" height="0">`)

	fields, err := newTestExtractor().Extract(page, "8901234567890")
	require.NoError(t, err)
	assert.Equal(t, "https://smartconsumer-beta.org/uploads/real-product.jpg", fields.Image)
}

func TestExtractImageProtocolRelative(t *testing.T) {
	page := productPage(t, `
		<h1>CDN Product</h1>
		<img src="//cdn.example.com/p/1.jpg" width="400">`)

	fields, err := newTestExtractor().Extract(page, "8901234567890")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/p/1.jpg", fields.Image)
}

func TestExtractImageSynthesizedFromBarcode(t *testing.T) {
	page := productPage(t, `<h1>Imageless Product</h1>`)

	fields, err := newTestExtractor().Extract(page, "8901030865278")
	require.NoError(t, err)
	assert.Equal(t,
		"https://api.gs1datakart.org/files/render?file_key=product_upload/890103086/8901030865278/8901030865278_f.png",
		fields.Image)
}

func TestExtractImagePlaceholderForShortBarcode(t *testing.T) {
	page := productPage(t, `<h1>Short Code Product</h1>`)

	fields, err := newTestExtractor().Extract(page, "12345678")
	require.NoError(t, err)
	assert.Equal(t, FallbackImage, fields.Image)
}

// Name-only and price-only pages both count as found; image never
// gates acceptance.
func TestExtractAcceptance(t *testing.T) {
	nameOnly := productPage(t, `<h1>Name Only Product</h1>`)
	fields, err := newTestExtractor().Extract(nameOnly, "8901234567890")
	require.NoError(t, err)
	assert.True(t, fields.Found())

	priceOnly := parsePage(t, ProductURL(testHost, "8901234567890"),
		`<html><head><title>SC</title></head><body><span class="price">₹10</span></body></html>`)
	fields, err = newTestExtractor().Extract(priceOnly, "8901234567890")
	require.NoError(t, err)
	assert.True(t, fields.Found())
	assert.Empty(t, fields.Name)
}

func TestProductURL(t *testing.T) {
	assert.Equal(t, "https://smartconsumer-beta.org/01/8901234567890",
		ProductURL(testHost, "8901234567890"))
}
