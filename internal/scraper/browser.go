package scraper

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/rs/zerolog"

	"github.com/kiranraju/barcodescout/internal/config"
)

// readySelectors are raced after navigation: any of them appearing
// means the SPA has rendered something worth extracting from. A timeout
// is not fatal, extraction just runs against whatever is there.
var readySelectors = []string{
	"[data-testid*='product']",
	".product-info",
	".product-details",
	"h1",
	".error",
	".not-found",
}

const readyWait = 10 * time.Second

// Browser owns one headless Chrome instance, launched lazily on the
// first fetch and reused across barcodes. Not safe for concurrent
// fetches; the worker is the only caller and runs serially.
type Browser struct {
	cfg config.ScraperConfig
	log zerolog.Logger

	mu      sync.Mutex
	launch  *launcher.Launcher
	browser *rod.Browser
}

// NewBrowser builds the session holder without launching anything yet.
func NewBrowser(cfg config.ScraperConfig, log zerolog.Logger) *Browser {
	return &Browser{
		cfg: cfg,
		log: log.With().Str("component", "browser").Logger(),
	}
}

// ensure launches and connects on first use. Failures come back wrapped
// in ErrEngineUnavailable so callers can route to the HTTP fallback.
func (b *Browser) ensure() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.browser != nil {
		return nil
	}

	l := launcher.New().Headless(b.cfg.Headless)
	if b.cfg.BrowserBin != "" {
		l = l.Bin(b.cfg.BrowserBin)
	}
	controlURL, err := l.Launch()
	if err != nil {
		return fmt.Errorf("%w: launch: %v", ErrEngineUnavailable, err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Cleanup()
		return fmt.Errorf("%w: connect: %v", ErrEngineUnavailable, err)
	}

	b.launch = l
	b.browser = browser
	b.log.Info().Bool("headless", b.cfg.Headless).Msg("browser launched")
	return nil
}

// Close tears the browser down. Safe to call without a prior launch.
func (b *Browser) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.browser != nil {
		if err := b.browser.Close(); err != nil {
			b.log.Warn().Err(err).Msg("browser close failed")
		}
		b.browser = nil
	}
	if b.launch != nil {
		b.launch.Cleanup()
		b.launch = nil
	}
}

// Fetch navigates to the barcode's lookup page and returns it ready for
// extraction, plus a cleanup closing the tab. The page is warmed the
// way a person would load it: stealth script, real viewport, a pause
// after navigation, a scroll down and partway back, and a settle wait
// for lazy images.
func (b *Browser) Fetch(ctx context.Context, barcode string) (Page, func(), error) {
	if err := b.ensure(); err != nil {
		return nil, nil, err
	}

	url := ProductURL(b.cfg.Host, barcode)

	page, err := b.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, nil, fmt.Errorf("%w: create page: %v", ErrEngineUnavailable, err)
	}
	cleanup := func() { _ = page.Close() }
	page = page.Context(ctx).Timeout(b.cfg.PageTimeout)

	if _, err := page.EvalOnNewDocument(stealth.JS); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("%w: stealth script: %v", ErrEngineUnavailable, err)
	}
	// stealth.JS covers most fingerprints; the webdriver flag is pinned
	// explicitly as well since it is the first thing bot checks read.
	if _, err := page.EvalOnNewDocument(`Object.defineProperty(navigator, 'webdriver', {get: () => undefined})`); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("%w: webdriver override: %v", ErrEngineUnavailable, err)
	}

	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: b.cfg.UserAgent}); err != nil {
		b.log.Warn().Err(err).Msg("set user agent failed")
	}
	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             1920,
		Height:            1080,
		DeviceScaleFactor: 1,
	}); err != nil {
		b.log.Warn().Err(err).Msg("set viewport failed")
	}

	b.log.Debug().Str("barcode", barcode).Str("url", url).Msg("navigating")
	if err := page.Navigate(url); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("%w: %s: %v", ErrNavigation, url, err)
	}
	if err := page.WaitLoad(); err != nil {
		b.log.Debug().Err(err).Msg("wait load incomplete, continuing")
	}

	if err := sleepCtx(ctx, randDuration(b.cfg.NavigateDelayMin, b.cfg.NavigateDelayMax)); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("%w: %v", ErrNavigation, err)
	}

	b.waitReady(page)
	b.humanScroll(ctx, page)

	if b.cfg.ImageSettleWait > 0 {
		if err := sleepCtx(ctx, b.cfg.ImageSettleWait); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("%w: %v", ErrNavigation, err)
		}
	}

	return &rodPage{page: page}, cleanup, nil
}

// waitReady races the known content markers. Timing out only means the
// page is slow or empty; extraction decides what that means.
func (b *Browser) waitReady(page *rod.Page) {
	race := page.Timeout(readyWait).Race()
	for _, selector := range readySelectors {
		race = race.Element(selector).Handle(func(*rod.Element) error { return nil })
	}
	if _, err := race.Do(); err != nil {
		b.log.Debug().Err(err).Msg("no content marker before deadline")
	}
}

// humanScroll nudges the page down a random amount and halfway back,
// which both looks human and triggers lazy-loaded images.
func (b *Browser) humanScroll(ctx context.Context, page *rod.Page) {
	down := 100 + rand.Intn(401)
	if _, err := page.Eval(`(y) => window.scrollBy(0, y)`, down); err != nil {
		b.log.Debug().Err(err).Msg("scroll down failed")
		return
	}
	_ = sleepCtx(ctx, 500*time.Millisecond)
	if _, err := page.Eval(`(y) => window.scrollBy(0, -y)`, down/2); err != nil {
		b.log.Debug().Err(err).Msg("scroll back failed")
	}
}

func randDuration(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int63n(int64(max-min)))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// rodPage adapts a live browser tab to the extractor's Page interface.
// Queries do not wait: by the time extraction runs, the readiness race
// and settle delays have already happened.
type rodPage struct {
	page *rod.Page
}

func (p *rodPage) URL() string {
	info, err := p.page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

func (p *rodPage) Title() string {
	info, err := p.page.Info()
	if err != nil {
		return ""
	}
	return info.Title
}

func (p *rodPage) HTML() string {
	html, err := p.page.HTML()
	if err != nil {
		return ""
	}
	return html
}

func (p *rodPage) First(selector string) (Element, bool) {
	el, err := p.page.Sleeper(rod.NotFoundSleeper).Element(selector)
	if err != nil {
		return nil, false
	}
	return rodElement{el: el}, true
}

func (p *rodPage) All(selector string) []Element {
	els, err := p.page.Elements(selector)
	if err != nil {
		return nil
	}
	out := make([]Element, 0, len(els))
	for _, el := range els {
		out = append(out, rodElement{el: el})
	}
	return out
}

type rodElement struct {
	el *rod.Element
}

func (e rodElement) Text() string {
	text, err := e.el.Text()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(text)
}

func (e rodElement) Attr(name string) (string, bool) {
	val, err := e.el.Attribute(name)
	if err != nil || val == nil {
		return "", false
	}
	return *val, true
}
