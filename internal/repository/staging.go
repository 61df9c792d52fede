package repository

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/kiranraju/barcodescout/internal/docstore"
	"github.com/kiranraju/barcodescout/internal/model"
)

const stagingCollection = "recently_added_products"

// StagingRepository owns the recently-added staging area for the
// verify-then-promote workflow.
type StagingRepository struct {
	store *docstore.Store
}

// NewStagingRepository constructs a repository.
func NewStagingRepository(store *docstore.Store) *StagingRepository {
	return &StagingRepository{store: store}
}

// Add stores a staging record under a generated id and returns the id.
func (r *StagingRepository) Add(ctx context.Context, rec model.StagingRecord) (string, error) {
	if rec.Barcode == "" {
		return "", fmt.Errorf("staging add: empty barcode")
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.AddedAt.IsZero() {
		rec.AddedAt = time.Now().UTC()
	}
	if err := r.store.Set(stagingCollection, rec.ID, rec); err != nil {
		return "", fmt.Errorf("add staging %s: %w", rec.Barcode, err)
	}
	return rec.ID, nil
}

// Get fetches one staging record by id.
func (r *StagingRepository) Get(ctx context.Context, id string) (*model.StagingRecord, error) {
	var rec model.StagingRecord
	if err := r.store.Get(stagingCollection, id, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// List returns all staging records, newest first.
func (r *StagingRepository) List(ctx context.Context) ([]model.StagingRecord, error) {
	var out []model.StagingRecord
	err := r.store.Scan(stagingCollection, func(key string, raw []byte) error {
		var rec model.StagingRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return fmt.Errorf("decode staging %s: %w", key, err)
		}
		out = append(out, rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].AddedAt.After(out[j].AddedAt)
	})
	return out, nil
}

// Delete removes one staging record.
func (r *StagingRepository) Delete(ctx context.Context, id string) error {
	if err := r.store.Delete(stagingCollection, id); err != nil {
		return fmt.Errorf("delete staging %s: %w", id, err)
	}
	return nil
}

// Clear wipes the staging area and reports how many records were removed.
func (r *StagingRepository) Clear(ctx context.Context) (int, error) {
	var ids []string
	err := r.store.Scan(stagingCollection, func(key string, _ []byte) error {
		ids = append(ids, key)
		return nil
	})
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		if err := r.store.Delete(stagingCollection, id); err != nil {
			return 0, fmt.Errorf("clear staging %s: %w", id, err)
		}
	}
	return len(ids), nil
}
