package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/kiranraju/barcodescout/internal/model"
	"github.com/kiranraju/barcodescout/internal/repository"
)

// Reconciler applies a lookup outcome to the stores. The catalog write
// happens before the queue delete, so a crash between the two leaves a
// re-processable queue entry rather than a lost product; the existence
// check makes the re-run a no-op write.
type Reconciler struct {
	unfound *repository.UnfoundRepository
	catalog *repository.CatalogRepository
	log     zerolog.Logger
	now     func() time.Time
}

// NewReconciler constructs a reconciler.
func NewReconciler(unfound *repository.UnfoundRepository, catalog *repository.CatalogRepository, log zerolog.Logger) *Reconciler {
	return &Reconciler{
		unfound: unfound,
		catalog: catalog,
		log:     log.With().Str("component", "reconciler").Logger(),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Success records an extracted product and dequeues the barcode. An
// already-cataloged barcode is never overwritten; the queue entry is
// still removed.
func (r *Reconciler) Success(ctx context.Context, rec model.BarcodeRecord, fields model.ProductFields) error {
	exists, err := r.catalog.Exists(ctx, rec.Barcode)
	if err != nil {
		return fmt.Errorf("catalog lookup %s: %w", rec.Barcode, err)
	}
	if exists {
		r.log.Debug().Str("barcode", rec.Barcode).Msg("already cataloged, dequeue only")
	} else {
		now := r.now()
		product := model.CatalogRecord{
			Barcode:   rec.Barcode,
			Name:      fields.Name,
			Price:     fields.Price,
			MRP:       fields.MRP,
			Image:     fields.Image,
			Verified:  false,
			Source:    model.CatalogSourceWorker,
			CreatedAt: now,
			ScrapedAt: &now,
			// The queue is keyed by the barcode, so that is the id the
			// record traces back to.
			OriginalUnfoundID: rec.Barcode,
		}
		if err := r.catalog.Put(ctx, product); err != nil {
			return fmt.Errorf("catalog write %s: %w", rec.Barcode, err)
		}
	}
	if err := r.unfound.Delete(ctx, rec.Barcode); err != nil {
		return fmt.Errorf("dequeue %s: %w", rec.Barcode, err)
	}
	return nil
}

// NotFound dequeues a barcode the site definitively does not know.
// There is no retry schedule: a deleted barcode comes back only through
// re-submission.
func (r *Reconciler) NotFound(ctx context.Context, rec model.BarcodeRecord) error {
	if err := r.unfound.Delete(ctx, rec.Barcode); err != nil {
		return fmt.Errorf("dequeue %s: %w", rec.Barcode, err)
	}
	r.log.Info().Str("barcode", rec.Barcode).Msg("not found on site, removed from queue")
	return nil
}
