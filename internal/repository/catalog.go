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

const catalogCollection = "barcode_cache"

// PlaceholderImage is stamped onto catalog records with no usable image.
const PlaceholderImage = "https://via.placeholder.com/300x300/cccccc/666666?text=Add+Image"

// CatalogRepository owns the resolved, barcode-keyed product store.
type CatalogRepository struct {
	store *docstore.Store
}

// NewCatalogRepository constructs a repository.
func NewCatalogRepository(store *docstore.Store) *CatalogRepository {
	return &CatalogRepository{store: store}
}

// Get fetches a catalog record by barcode.
func (r *CatalogRepository) Get(ctx context.Context, barcode string) (*model.CatalogRecord, error) {
	var rec model.CatalogRecord
	if err := r.store.Get(catalogCollection, barcode, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Exists reports whether a catalog record is present for a barcode.
func (r *CatalogRepository) Exists(ctx context.Context, barcode string) (bool, error) {
	return r.store.Exists(catalogCollection, barcode)
}

// Put upserts a catalog record. Callers that must not overwrite (the
// worker) check Exists first; admin paths overwrite deliberately.
func (r *CatalogRepository) Put(ctx context.Context, rec model.CatalogRecord) error {
	if rec.Barcode == "" {
		return fmt.Errorf("catalog put: empty barcode")
	}
	if err := r.store.Set(catalogCollection, rec.Barcode, rec); err != nil {
		return fmt.Errorf("put catalog %s: %w", rec.Barcode, err)
	}
	return nil
}

// Delete removes a catalog record.
func (r *CatalogRepository) Delete(ctx context.Context, barcode string) error {
	if err := r.store.Delete(catalogCollection, barcode); err != nil {
		return fmt.Errorf("delete catalog %s: %w", barcode, err)
	}
	return nil
}

// Unverified returns records awaiting admin review, newest first.
func (r *CatalogRepository) Unverified(ctx context.Context) ([]model.CatalogRecord, error) {
	var out []model.CatalogRecord
	err := r.store.Query(catalogCollection, "verified", false, func(key string, raw []byte) error {
		var rec model.CatalogRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return fmt.Errorf("decode catalog %s: %w", key, err)
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

// Verify flips a record to verified and stamps the time. Fails with
// docstore.ErrKeyNotFound when the barcode has no record.
func (r *CatalogRepository) Verify(ctx context.Context, barcode string, at time.Time) error {
	return r.store.Update(catalogCollection, barcode, map[string]any{
		"verified":   true,
		"verifiedAt": at.UTC(),
	})
}

// BackfillMissingImages sets the placeholder on every record with an empty
// image and returns how many were touched.
func (r *CatalogRepository) BackfillMissingImages(ctx context.Context, at time.Time) (int, error) {
	var barcodes []string
	err := r.store.Scan(catalogCollection, func(key string, raw []byte) error {
		var rec model.CatalogRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return fmt.Errorf("decode catalog %s: %w", key, err)
		}
		if rec.Image == "" || rec.Image == "null" {
			barcodes = append(barcodes, rec.Barcode)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	updated := 0
	for _, barcode := range barcodes {
		err := r.store.Update(catalogCollection, barcode, map[string]any{
			"image":          PlaceholderImage,
			"imageUpdatedAt": at.UTC(),
		})
		if err != nil {
			continue
		}
		updated++
	}
	return updated, nil
}
