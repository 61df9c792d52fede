// Package scraper resolves barcodes against the consumer lookup site.
// The primary path drives a stealth headless browser; when no browser
// can be launched it degrades to a plain HTTP fetch. Either way the
// same extractor cascades decide what the page yielded.
package scraper

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/kiranraju/barcodescout/internal/config"
	"github.com/kiranraju/barcodescout/internal/model"
)

// Lookuper is what the worker depends on. Implementations return
// ErrNotFound for a definitive miss and ErrNavigation or
// ErrEngineUnavailable when the barcode's fate is undecided.
type Lookuper interface {
	Lookup(ctx context.Context, barcode string) (model.ProductFields, error)
}

// Scraper combines the browser fetcher, the HTTP fallback, and the
// extractor into one lookup call.
type Scraper struct {
	browser   *Browser
	fallback  *FallbackClient
	extractor *Extractor
	log       zerolog.Logger
}

// New wires the scraper from config.
func New(cfg config.ScraperConfig, log zerolog.Logger) *Scraper {
	return &Scraper{
		browser:   NewBrowser(cfg, log),
		fallback:  NewFallbackClient(cfg, log),
		extractor: NewExtractor(cfg.Host, log),
		log:       log.With().Str("component", "scraper").Logger(),
	}
}

// Lookup fetches and extracts one barcode. The browser path is tried
// first; only an unavailable engine routes to the HTTP fallback.
// Navigation failures on a working browser are returned as-is so the
// caller does not double-hit the site.
func (s *Scraper) Lookup(ctx context.Context, barcode string) (model.ProductFields, error) {
	page, cleanup, err := s.browser.Fetch(ctx, barcode)
	if err == nil {
		defer cleanup()
		return s.extractor.Extract(page, barcode)
	}
	if !errors.Is(err, ErrEngineUnavailable) {
		return model.ProductFields{Barcode: barcode}, err
	}

	s.log.Warn().Err(err).Str("barcode", barcode).Msg("browser unavailable, using http fallback")
	page, err = s.fallback.Fetch(ctx, barcode)
	if err != nil {
		return model.ProductFields{Barcode: barcode}, err
	}
	return s.extractor.Extract(page, barcode)
}

// Close releases the browser if one was launched.
func (s *Scraper) Close() {
	s.browser.Close()
}
