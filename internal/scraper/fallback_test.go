package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiranraju/barcodescout/internal/config"
)

// fallbackClientFor points the client at a local test server instead of
// the real site.
func fallbackClientFor(t *testing.T, srv *httptest.Server, attempts int) *FallbackClient {
	t.Helper()
	c := NewFallbackClient(config.ScraperConfig{
		Host:             "smartconsumer-beta.org",
		UserAgent:        "test-agent",
		FallbackAttempts: attempts,
		FallbackTimeout:  5 * time.Second,
	}, zerolog.Nop())
	c.base = srv.URL
	return c
}

func TestFallbackFetchParsesBody(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte(`<html><head><title>Fetched Product</title></head><body><h1>Fetched Product</h1></body></html>`))
	}))
	defer srv.Close()

	c := fallbackClientFor(t, srv, 1)
	page, err := c.Fetch(context.Background(), "8901234567890")
	require.NoError(t, err)
	assert.Equal(t, "test-agent", gotUA)

	el, ok := page.First("h1")
	require.True(t, ok)
	assert.Equal(t, "Fetched Product", el.Text())
}

func TestFallbackFetch404IsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := fallbackClientFor(t, srv, 3)
	_, err := c.Fetch(context.Background(), "8901234567890")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFallbackFetchClientErrorIsNavigation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := fallbackClientFor(t, srv, 3)
	_, err := c.Fetch(context.Background(), "8901234567890")
	assert.ErrorIs(t, err, ErrNavigation)
}

func TestStaticPageSelectors(t *testing.T) {
	page, err := NewStaticPage("https://example.org/01/1", strings.NewReader(
		`<html><head><title>T</title></head><body>
			<div class="product-info"><h1>A</h1><h2>B</h2></div>
		</body></html>`))
	require.NoError(t, err)

	assert.Equal(t, "T", page.Title())
	el, ok := page.First(".product-info h1")
	require.True(t, ok)
	assert.Equal(t, "A", el.Text())

	_, ok = page.First(".missing")
	assert.False(t, ok)

	all := page.All(".product-info h1, .product-info h2")
	assert.Len(t, all, 2)
}
