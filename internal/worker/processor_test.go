package worker

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiranraju/barcodescout/internal/config"
	"github.com/kiranraju/barcodescout/internal/docstore"
	"github.com/kiranraju/barcodescout/internal/model"
	"github.com/kiranraju/barcodescout/internal/repository"
	"github.com/kiranraju/barcodescout/internal/scraper"
)

type lookupResult struct {
	fields model.ProductFields
	err    error
}

type fakeLookup struct {
	results  map[string]lookupResult
	panicOn  string
	onLookup func(barcode string)
}

func (f *fakeLookup) Lookup(_ context.Context, barcode string) (model.ProductFields, error) {
	if f.onLookup != nil {
		f.onLookup(barcode)
	}
	if barcode == f.panicOn {
		panic("selector cascade exploded")
	}
	res, ok := f.results[barcode]
	if !ok {
		return model.ProductFields{Barcode: barcode}, scraper.ErrNotFound
	}
	return res.fields, res.err
}

type fixture struct {
	store   *docstore.Store
	unfound *repository.UnfoundRepository
	catalog *repository.CatalogRepository
	tracker *StatusTracker
	proc    *Processor
}

func newFixture(t *testing.T, lookup *fakeLookup) *fixture {
	t.Helper()
	store, err := docstore.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	unfound := repository.NewUnfoundRepository(store)
	catalog := repository.NewCatalogRepository(store)
	tracker := NewStatusTracker()
	rec := NewReconciler(unfound, catalog, zerolog.Nop())

	cfg := config.WorkerConfig{
		PollInterval:  time.Hour,
		ErrorCooldown: time.Hour,
	}
	proc := NewProcessor(cfg, lookup, rec, unfound, tracker, zerolog.Nop())
	proc.sleep = func(context.Context, time.Duration) error { return nil }

	return &fixture{store: store, unfound: unfound, catalog: catalog, tracker: tracker, proc: proc}
}

func (f *fixture) enqueue(t *testing.T, barcode string) {
	t.Helper()
	require.NoError(t, f.unfound.Upsert(context.Background(), model.BarcodeRecord{Barcode: barcode}))
}

func TestDrainCatalogsFoundAndDropsNotFound(t *testing.T) {
	ctx := context.Background()
	lookup := &fakeLookup{results: map[string]lookupResult{
		"8901234567890": {fields: model.ProductFields{
			Barcode: "8901234567890",
			Name:    "Amul Butter 500g",
			Price:   "₹275",
			Image:   "https://cdn.example.com/butter.jpg",
		}},
		// "404404404404" is absent from results: definitive miss.
	}}
	f := newFixture(t, lookup)
	f.enqueue(t, "8901234567890")
	f.enqueue(t, "404404404404")

	processed, err := f.proc.drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, processed)

	// The found barcode landed in the catalog, unverified.
	product, err := f.catalog.Get(ctx, "8901234567890")
	require.NoError(t, err)
	assert.Equal(t, "Amul Butter 500g", product.Name)
	assert.False(t, product.Verified)
	assert.Equal(t, model.CatalogSourceWorker, product.Source)
	assert.NotNil(t, product.ScrapedAt)
	assert.Equal(t, "8901234567890", product.OriginalUnfoundID)

	// The miss never entered the catalog.
	exists, err := f.catalog.Exists(ctx, "404404404404")
	require.NoError(t, err)
	assert.False(t, exists)

	// Both outcomes dequeued.
	n, err := f.unfound.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	status := f.tracker.Snapshot()
	assert.Equal(t, 2, status.ProcessedCount)
	assert.Equal(t, 1, status.SuccessCount)
	assert.Equal(t, 1, status.ErrorCount, "a definitive miss counts as an error outcome")

	history := f.tracker.History()
	require.Len(t, history, 2)
}

func TestDrainKeepsUndecidedBarcodesQueued(t *testing.T) {
	ctx := context.Background()
	lookup := &fakeLookup{results: map[string]lookupResult{
		"8900000000001": {err: fmt.Errorf("%w: connection reset", scraper.ErrNavigation)},
	}}
	f := newFixture(t, lookup)
	f.enqueue(t, "8900000000001")

	_, err := f.proc.drain(ctx)
	require.NoError(t, err)

	n, err := f.unfound.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "fetch failures must not dequeue the barcode")

	status := f.tracker.Snapshot()
	assert.Equal(t, 1, status.ErrorCount)
	history := f.tracker.History()
	require.Len(t, history, 1)
	assert.False(t, history[0].Success)
	assert.Contains(t, history[0].Error, "connection reset")
}

func TestDrainNeverOverwritesExistingCatalogEntry(t *testing.T) {
	ctx := context.Background()
	lookup := &fakeLookup{results: map[string]lookupResult{
		"8901111111111": {fields: model.ProductFields{Barcode: "8901111111111", Name: "Scraped Name", Price: "₹99"}},
	}}
	f := newFixture(t, lookup)

	require.NoError(t, f.catalog.Put(ctx, model.CatalogRecord{
		Barcode:   "8901111111111",
		Name:      "Curated Name",
		Verified:  true,
		Source:    model.CatalogSourceManual,
		CreatedAt: time.Now().UTC(),
	}))
	f.enqueue(t, "8901111111111")

	_, err := f.proc.drain(ctx)
	require.NoError(t, err)

	product, err := f.catalog.Get(ctx, "8901111111111")
	require.NoError(t, err)
	assert.Equal(t, "Curated Name", product.Name)
	assert.True(t, product.Verified)

	n, err := f.unfound.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "queue entry still consumed")
}

func TestDrainContainsPanics(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &fakeLookup{panicOn: "8902222222222"})
	f.enqueue(t, "8902222222222")

	processed, err := f.proc.drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, processed)

	history := f.tracker.History()
	require.Len(t, history, 1)
	assert.Contains(t, history[0].Error, "panic")

	// An undecided panic leaves the barcode queued.
	n, err := f.unfound.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestDrainPacesBetweenItems(t *testing.T) {
	ctx := context.Background()
	lookup := &fakeLookup{}
	f := newFixture(t, lookup)
	f.proc.cfg.ItemDelayMin = 5 * time.Second
	f.proc.cfg.ItemDelayMax = 5 * time.Second
	f.proc.cfg.LongDelayOdds = 0

	var delays []time.Duration
	f.proc.sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}

	f.enqueue(t, "8903333333331")
	f.enqueue(t, "8903333333332")
	f.enqueue(t, "8903333333333")

	_, err := f.proc.drain(ctx)
	require.NoError(t, err)

	// One gap after every item, the last included.
	require.Len(t, delays, 3)
	for _, d := range delays {
		assert.Equal(t, 5*time.Second, d)
	}
}

// A barcode kept queued by a fetch failure is retried on the next
// pass; the pacing delay must separate those retries so the site is
// never hit back to back.
func TestDrainPacesRetriedFailures(t *testing.T) {
	ctx := context.Background()
	lookup := &fakeLookup{results: map[string]lookupResult{
		"8900000000001": {err: fmt.Errorf("%w: connection reset", scraper.ErrNavigation)},
	}}
	f := newFixture(t, lookup)
	f.enqueue(t, "8900000000001")

	sleeps := 0
	f.proc.sleep = func(context.Context, time.Duration) error {
		sleeps++
		return nil
	}

	for pass := 0; pass < 3; pass++ {
		processed, err := f.proc.drain(ctx)
		require.NoError(t, err)
		require.Equal(t, 1, processed)
	}
	assert.Equal(t, 3, sleeps, "every fetch must be followed by a pacing delay")
}

// A stop that lands while a fetch is in flight aborts the lookup; the
// aborted item must not show up as an error outcome.
func TestStopMidFetchRecordsNoOutcome(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	lookup := &fakeLookup{
		results: map[string]lookupResult{
			"8905555555555": {err: fmt.Errorf("%w: %v", scraper.ErrNavigation, context.Canceled)},
		},
		onLookup: func(string) { cancel() },
	}
	f := newFixture(t, lookup)
	f.enqueue(t, "8905555555555")

	_, err := f.proc.drain(ctx)
	require.NoError(t, err)

	assert.Empty(t, f.tracker.History())
	assert.Equal(t, 0, f.tracker.Snapshot().ErrorCount)

	n, err := f.unfound.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n, "the aborted barcode stays queued")
}

func TestStartResetsCounters(t *testing.T) {
	f := newFixture(t, &fakeLookup{})
	f.tracker.endItem(model.HistoryEntry{
		Barcode:     "8906666666666",
		Success:     true,
		ProcessedAt: time.Now().UTC(),
		Result:      "added to catalog",
	}, false)

	require.True(t, f.proc.Start())
	defer f.proc.Stop()

	status := f.tracker.Snapshot()
	assert.Equal(t, 0, status.ProcessedCount)
	assert.Equal(t, 0, status.SuccessCount)
	assert.Equal(t, 0, status.ErrorCount)
	// The history outlives the counter reset.
	assert.Len(t, f.tracker.History(), 1)
}

func TestStartStopLifecycle(t *testing.T) {
	f := newFixture(t, &fakeLookup{})

	assert.True(t, f.proc.Start())
	assert.False(t, f.proc.Start(), "second start must not spawn a second loop")
	assert.True(t, f.proc.Running())

	assert.True(t, f.proc.Stop())
	assert.False(t, f.proc.Running())
	assert.False(t, f.proc.Stop())
}

func TestTriggerDrainRejectsWhenStopped(t *testing.T) {
	f := newFixture(t, &fakeLookup{})

	_, err := f.proc.TriggerDrain(context.Background())
	assert.ErrorIs(t, err, ErrNotRunning)
}

func TestTriggerDrainReportsQueueSize(t *testing.T) {
	f := newFixture(t, &fakeLookup{})
	f.enqueue(t, "8904444444441")
	f.enqueue(t, "8904444444442")

	// Mark running without spinning the loop, so the queue size is
	// stable when the trigger reads it.
	f.tracker.setRunning(true)

	pending, err := f.proc.TriggerDrain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, pending)
}

func TestHistoryBoundedAtCapacity(t *testing.T) {
	tracker := NewStatusTracker()
	for i := 0; i < historyCapacity+50; i++ {
		tracker.endItem(model.HistoryEntry{
			Barcode:     fmt.Sprintf("barcode-%d", i),
			ProcessedAt: time.Now().UTC(),
			Result:      "added to catalog",
			Success:     true,
		}, false)
	}

	history := tracker.History()
	require.Len(t, history, historyCapacity)
	// Newest first; the oldest 50 fell off.
	assert.Equal(t, fmt.Sprintf("barcode-%d", historyCapacity+49), history[0].Barcode)
	assert.Equal(t, "barcode-50", history[len(history)-1].Barcode)

	// Counters survive a history clear.
	assert.Equal(t, historyCapacity+50, tracker.Snapshot().ProcessedCount)
	tracker.ClearHistory()
	assert.Empty(t, tracker.History())
	assert.Equal(t, historyCapacity+50, tracker.Snapshot().ProcessedCount)
}
