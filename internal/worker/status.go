package worker

import (
	"sync"
	"time"

	"github.com/kiranraju/barcodescout/internal/model"
)

// historyCapacity bounds the processed-barcode history. Oldest entries
// fall off first.
const historyCapacity = 100

// StatusTracker is the single source of truth for the worker's
// progress and its bounded history. The loop goroutine is the only
// writer; API handlers read snapshots. All state is in-memory and
// resets on restart.
type StatusTracker struct {
	mu      sync.Mutex
	status  model.ProcessingStatus
	history []model.HistoryEntry
}

// NewStatusTracker constructs an empty tracker.
func NewStatusTracker() *StatusTracker {
	return &StatusTracker{}
}

// resetCounters zeroes the per-run counters. The history and LastRun
// survive across runs.
func (t *StatusTracker) resetCounters() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status.ProcessedCount = 0
	t.status.SuccessCount = 0
	t.status.ErrorCount = 0
}

func (t *StatusTracker) setRunning(running bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status.Running = running
	if !running {
		t.status.CurrentBarcode = ""
	}
}

func (t *StatusTracker) beginItem(barcode string, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status.CurrentBarcode = barcode
	t.status.LastRun = &at
}

// endItem closes out one barcode: counters move, the history entry is
// recorded, and the current marker clears.
func (t *StatusTracker) endItem(entry model.HistoryEntry, isError bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status.CurrentBarcode = ""
	t.status.ProcessedCount++
	if entry.Success {
		t.status.SuccessCount++
	}
	if isError {
		t.status.ErrorCount++
	}
	t.history = append(t.history, entry)
	if len(t.history) > historyCapacity {
		t.history = t.history[len(t.history)-historyCapacity:]
	}
}

// Snapshot returns a copy of the current status.
func (t *StatusTracker) Snapshot() model.ProcessingStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	snap := t.status
	if t.status.LastRun != nil {
		lastRun := *t.status.LastRun
		snap.LastRun = &lastRun
	}
	return snap
}

// History returns the recorded outcomes, newest first.
func (t *StatusTracker) History() []model.HistoryEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]model.HistoryEntry, len(t.history))
	for i, entry := range t.history {
		out[len(t.history)-1-i] = entry
	}
	return out
}

// ClearHistory drops the history but leaves the counters alone.
func (t *StatusTracker) ClearHistory() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := len(t.history)
	t.history = nil
	return n
}
