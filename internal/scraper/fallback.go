package scraper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/kiranraju/barcodescout/internal/config"
)

// browserHeaders make the plain-HTTP path look like a regular page
// load. The site serves a JS shell to anything it deems automated, so
// the fallback rarely yields a full product card, but names in titles
// and server-rendered fragments still come through.
var browserHeaders = map[string]string{
	"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
	"Accept-Language":           "en-US,en;q=0.9",
	"Connection":                "keep-alive",
	"Upgrade-Insecure-Requests": "1",
	"Sec-Fetch-Dest":            "document",
	"Sec-Fetch-Mode":            "navigate",
	"Sec-Fetch-Site":            "none",
	"Cache-Control":             "max-age=0",
}

// FallbackClient fetches lookup pages over plain HTTP when the browser
// engine is unavailable.
type FallbackClient struct {
	base     string
	ua       string
	attempts int
	client   *http.Client
	log      zerolog.Logger
}

// NewFallbackClient builds the client from scraper config.
func NewFallbackClient(cfg config.ScraperConfig, log zerolog.Logger) *FallbackClient {
	return &FallbackClient{
		base:     siteOrigin(cfg.Host),
		ua:       cfg.UserAgent,
		attempts: cfg.FallbackAttempts,
		client:   &http.Client{Timeout: cfg.FallbackTimeout},
		log:      log.With().Str("component", "fallback").Logger(),
	}
}

// Fetch GETs the lookup page with retries and parses it into a static
// Page. A 404 maps to ErrNotFound; transport failures after the retry
// budget map to ErrNavigation.
func (c *FallbackClient) Fetch(ctx context.Context, barcode string) (Page, error) {
	url := c.base + "/01/" + barcode

	var body []byte
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("User-Agent", c.ua)
		for k, v := range browserHeaders {
			req.Header.Set(k, v)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			c.log.Debug().Err(err).Str("url", url).Msg("fallback request failed, retrying")
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound {
			return backoff.Permanent(ErrNotFound)
		}
		if resp.StatusCode >= 500 {
			return fmt.Errorf("status %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(fmt.Errorf("status %d", resp.StatusCode))
		}

		body, err = io.ReadAll(resp.Body)
		return err
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(newFallbackBackOff(), uint64(c.attempts-1)), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrNavigation, url, err)
	}

	return NewStaticPage(url, bytes.NewReader(body))
}

func newFallbackBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 2 * time.Second
	b.MaxInterval = 10 * time.Second
	return b
}
