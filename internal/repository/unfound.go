// Package repository wraps the document store with the typed access used
// throughout the API and worker. Collection names match the original
// catalog database so existing data keeps working.
package repository

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/goccy/go-json"

	"github.com/kiranraju/barcodescout/internal/docstore"
	"github.com/kiranraju/barcodescout/internal/model"
)

const unfoundCollection = "unfound_barcodes"

// UnfoundRepository owns the queue of barcodes awaiting resolution.
// Records are keyed by the barcode value, which is what makes enqueue an
// upsert: a re-reported barcode replaces its own entry.
type UnfoundRepository struct {
	store *docstore.Store
}

// NewUnfoundRepository constructs a repository.
func NewUnfoundRepository(store *docstore.Store) *UnfoundRepository {
	return &UnfoundRepository{store: store}
}

// Upsert enqueues a barcode, replacing any live entry for the same value.
// Retry bookkeeping is reset so the latest submission wins.
func (r *UnfoundRepository) Upsert(ctx context.Context, rec model.BarcodeRecord) error {
	if rec.Barcode == "" {
		return fmt.Errorf("enqueue: empty barcode")
	}
	if rec.Source == "" {
		rec.Source = model.SourceManual
	}
	rec.Status = model.StatusPending
	rec.RetryCount = 0
	rec.LastRetry = nil
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if err := r.store.Set(unfoundCollection, rec.Barcode, rec); err != nil {
		return fmt.Errorf("upsert unfound %s: %w", rec.Barcode, err)
	}
	return nil
}

// List returns every pending barcode, newest first.
func (r *UnfoundRepository) List(ctx context.Context) ([]model.BarcodeRecord, error) {
	var out []model.BarcodeRecord
	err := r.store.Scan(unfoundCollection, func(key string, raw []byte) error {
		var rec model.BarcodeRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return fmt.Errorf("decode unfound %s: %w", key, err)
		}
		out = append(out, rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// Get fetches one queue entry.
func (r *UnfoundRepository) Get(ctx context.Context, barcode string) (*model.BarcodeRecord, error) {
	var rec model.BarcodeRecord
	if err := r.store.Get(unfoundCollection, barcode, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Delete removes a queue entry. Removing an absent entry is a no-op.
func (r *UnfoundRepository) Delete(ctx context.Context, barcode string) error {
	if err := r.store.Delete(unfoundCollection, barcode); err != nil {
		return fmt.Errorf("delete unfound %s: %w", barcode, err)
	}
	return nil
}

// Count reports the queue depth.
func (r *UnfoundRepository) Count(ctx context.Context) (int, error) {
	return r.store.Count(unfoundCollection)
}
