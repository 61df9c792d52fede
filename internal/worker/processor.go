// Package worker runs the background loop that drains the unfound
// barcode queue: one goroutine, one barcode at a time, with
// human-scale pacing between lookups.
package worker

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/kiranraju/barcodescout/internal/config"
	"github.com/kiranraju/barcodescout/internal/model"
	"github.com/kiranraju/barcodescout/internal/repository"
	"github.com/kiranraju/barcodescout/internal/scraper"
)

// ErrNotRunning is returned by TriggerDrain when the loop is stopped.
// The trigger never spawns its own processing pass.
var ErrNotRunning = errors.New("worker is not running")

// Processor owns the queue-draining goroutine. Start and Stop are safe
// to call from any goroutine; the loop itself is strictly serial.
type Processor struct {
	cfg     config.WorkerConfig
	lookup  scraper.Lookuper
	rec     *Reconciler
	unfound *repository.UnfoundRepository
	tracker *StatusTracker
	log     zerolog.Logger

	// Injection points for pacing tests.
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
	rng   *rand.Rand

	wake chan struct{}

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewProcessor wires the loop. It does not start it.
func NewProcessor(cfg config.WorkerConfig, lookup scraper.Lookuper, rec *Reconciler, unfound *repository.UnfoundRepository, tracker *StatusTracker, log zerolog.Logger) *Processor {
	return &Processor{
		cfg:     cfg,
		lookup:  lookup,
		rec:     rec,
		unfound: unfound,
		tracker: tracker,
		log:     log.With().Str("component", "worker").Logger(),
		sleep:   sleepCtx,
		now:     func() time.Time { return time.Now().UTC() },
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		wake:    make(chan struct{}, 1),
	}
}

// Start launches the loop goroutine. Returns false when it was already
// running; starting twice never creates a second loop.
func (p *Processor) Start() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return false
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})
	p.tracker.resetCounters()
	p.tracker.setRunning(true)
	go p.run(ctx, p.done)
	p.log.Info().Msg("worker started")
	return true
}

// Stop signals the loop and waits for it to exit. The in-flight
// barcode finishes; the stop lands between items. Returns false when
// the loop was not running.
func (p *Processor) Stop() bool {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel = nil
	p.done = nil
	p.mu.Unlock()
	if cancel == nil {
		return false
	}
	cancel()
	<-done
	p.log.Info().Msg("worker stopped")
	return true
}

// Running reports whether the loop goroutine is live.
func (p *Processor) Running() bool {
	return p.tracker.Snapshot().Running
}

// TriggerDrain wakes a running loop out of its poll sleep and reports
// the pending queue size. A stopped loop rejects the trigger.
func (p *Processor) TriggerDrain(ctx context.Context) (int, error) {
	if !p.Running() {
		return 0, ErrNotRunning
	}
	pending, err := p.unfound.Count(ctx)
	if err != nil {
		return 0, err
	}
	select {
	case p.wake <- struct{}{}:
	default:
	}
	return pending, nil
}

func (p *Processor) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer p.tracker.setRunning(false)

	for {
		if ctx.Err() != nil {
			return
		}
		processed, err := p.drain(ctx)
		switch {
		case ctx.Err() != nil:
			return
		case err != nil:
			p.log.Error().Err(err).Msg("drain pass failed, cooling down")
			p.idle(ctx, p.cfg.ErrorCooldown)
		case processed == 0:
			p.idle(ctx, p.cfg.PollInterval)
		}
	}
}

// drain takes one snapshot of the queue and works through it. Barcodes
// enqueued mid-pass are picked up on the next poll.
func (p *Processor) drain(ctx context.Context) (int, error) {
	batch, err := p.unfound.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list queue: %w", err)
	}
	if len(batch) == 0 {
		return 0, nil
	}
	p.log.Info().Int("pending", len(batch)).Msg("drain pass started")

	processed := 0
	for _, rec := range batch {
		if ctx.Err() != nil {
			return processed, nil
		}
		p.processOne(ctx, rec)
		processed++
		// The delay follows every item, the last included: a barcode
		// kept queued by an undecided failure would otherwise be
		// re-fetched back to back on the next pass.
		if err := p.sleep(ctx, p.itemDelay()); err != nil {
			return processed, nil
		}
	}
	return processed, nil
}

// processOne looks up a single barcode and reconciles the outcome. A
// panic inside the lookup or extraction is contained here so one bad
// page cannot kill the loop.
func (p *Processor) processOne(ctx context.Context, rec model.BarcodeRecord) {
	started := p.now()
	p.tracker.beginItem(rec.Barcode, started)
	defer func() {
		if r := recover(); r != nil {
			p.log.Error().Str("barcode", rec.Barcode).Any("panic", r).Msg("lookup panicked")
			p.tracker.endItem(model.HistoryEntry{
				Barcode:     rec.Barcode,
				Success:     false,
				ProcessedAt: p.now(),
				Result:      "error",
				Error:       fmt.Sprintf("panic: %v", r),
			}, true)
		}
	}()

	fields, err := p.lookup.Lookup(ctx, rec.Barcode)
	if err != nil && ctx.Err() != nil {
		// A stop landed mid-fetch. The aborted lookup is not an outcome;
		// the barcode stays queued for the next run.
		return
	}
	switch {
	case err == nil:
		if recErr := p.rec.Success(ctx, rec, fields); recErr != nil {
			p.failItem(rec.Barcode, "persistence error", recErr)
			return
		}
		p.log.Info().Str("barcode", rec.Barcode).Str("name", fields.Name).Msg("product added to catalog")
		p.tracker.endItem(model.HistoryEntry{
			Barcode:     rec.Barcode,
			ProductName: fields.Name,
			Success:     true,
			ProcessedAt: p.now(),
			Result:      "added to catalog",
		}, false)

	case errors.Is(err, scraper.ErrNotFound):
		if recErr := p.rec.NotFound(ctx, rec); recErr != nil {
			p.failItem(rec.Barcode, "persistence error", recErr)
			return
		}
		// A definitive miss counts against errorCount but is logged at
		// info, not error: it is the expected outcome for genuinely
		// absent products.
		p.tracker.endItem(model.HistoryEntry{
			Barcode:     rec.Barcode,
			Success:     false,
			ProcessedAt: p.now(),
			Result:      "not found, removed from queue",
			Error:       "product not found on site",
		}, true)

	default:
		// Undecided: the barcode stays queued for the next pass.
		p.log.Warn().Err(err).Str("barcode", rec.Barcode).Msg("lookup failed, keeping barcode queued")
		p.failItem(rec.Barcode, "lookup failed", err)
	}
}

func (p *Processor) failItem(barcode, result string, err error) {
	p.tracker.endItem(model.HistoryEntry{
		Barcode:     barcode,
		Success:     false,
		ProcessedAt: p.now(),
		Result:      result,
		Error:       err.Error(),
	}, true)
}

// itemDelay draws the inter-item pause: usually a few seconds, with an
// occasional longer break.
func (p *Processor) itemDelay() time.Duration {
	if p.cfg.LongDelayOdds > 0 && p.rng.Intn(p.cfg.LongDelayOdds) == 0 {
		return randIn(p.rng, p.cfg.LongDelayMin, p.cfg.LongDelayMax)
	}
	return randIn(p.rng, p.cfg.ItemDelayMin, p.cfg.ItemDelayMax)
}

// idle sleeps until the duration passes, the context ends, or a drain
// trigger arrives.
func (p *Processor) idle(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	case <-p.wake:
	}
}

func randIn(rng *rand.Rand, min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rng.Int63n(int64(max-min)))
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
