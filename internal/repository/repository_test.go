package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiranraju/barcodescout/internal/docstore"
	"github.com/kiranraju/barcodescout/internal/model"
)

func newTestStore(t *testing.T) *docstore.Store {
	t.Helper()
	store, err := docstore.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestUnfoundUpsertIsKeyedByBarcode(t *testing.T) {
	ctx := context.Background()
	repo := NewUnfoundRepository(newTestStore(t))

	lastRetry := time.Now().UTC()
	require.NoError(t, repo.Upsert(ctx, model.BarcodeRecord{
		Barcode:    "8901234567890",
		Source:     model.SourceDeviceReport,
		DeviceID:   "dev-1",
		RetryCount: 4,
		LastRetry:  &lastRetry,
	}))
	// Same barcode reported again from another path.
	require.NoError(t, repo.Upsert(ctx, model.BarcodeRecord{
		Barcode: "8901234567890",
		Source:  model.SourceManual,
	}))

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "re-submission must not duplicate the entry")

	rec, err := repo.Get(ctx, "8901234567890")
	require.NoError(t, err)
	assert.Equal(t, model.SourceManual, rec.Source)
	assert.Equal(t, model.StatusPending, rec.Status)
	assert.Zero(t, rec.RetryCount, "retry bookkeeping resets on re-submission")
	assert.Nil(t, rec.LastRetry)
	assert.False(t, rec.CreatedAt.IsZero())
}

func TestUnfoundUpsertRejectsEmptyBarcode(t *testing.T) {
	repo := NewUnfoundRepository(newTestStore(t))
	assert.Error(t, repo.Upsert(context.Background(), model.BarcodeRecord{}))
}

func TestUnfoundListNewestFirst(t *testing.T) {
	ctx := context.Background()
	repo := NewUnfoundRepository(newTestStore(t))

	base := time.Now().UTC()
	for i, barcode := range []string{"111", "222", "333"} {
		require.NoError(t, repo.Upsert(ctx, model.BarcodeRecord{
			Barcode:   barcode,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	records, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "333", records[0].Barcode)
	assert.Equal(t, "111", records[2].Barcode)
}

func TestCatalogVerify(t *testing.T) {
	ctx := context.Background()
	repo := NewCatalogRepository(newTestStore(t))

	require.NoError(t, repo.Put(ctx, model.CatalogRecord{
		Barcode:   "8901234567890",
		Name:      "Amul Butter 500g",
		Source:    model.CatalogSourceWorker,
		CreatedAt: time.Now().UTC(),
	}))

	at := time.Now().UTC()
	require.NoError(t, repo.Verify(ctx, "8901234567890", at))

	rec, err := repo.Get(ctx, "8901234567890")
	require.NoError(t, err)
	assert.True(t, rec.Verified)
	require.NotNil(t, rec.VerifiedAt)
	assert.WithinDuration(t, at, *rec.VerifiedAt, time.Second)

	assert.ErrorIs(t, repo.Verify(ctx, "missing", at), docstore.ErrKeyNotFound)
}

func TestCatalogUnverified(t *testing.T) {
	ctx := context.Background()
	repo := NewCatalogRepository(newTestStore(t))

	now := time.Now().UTC()
	require.NoError(t, repo.Put(ctx, model.CatalogRecord{Barcode: "1", Verified: true, CreatedAt: now}))
	require.NoError(t, repo.Put(ctx, model.CatalogRecord{Barcode: "2", Verified: false, CreatedAt: now.Add(time.Minute)}))
	require.NoError(t, repo.Put(ctx, model.CatalogRecord{Barcode: "3", Verified: false, CreatedAt: now.Add(2 * time.Minute)}))

	records, err := repo.Unverified(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "3", records[0].Barcode)
	assert.Equal(t, "2", records[1].Barcode)
}

func TestCatalogBackfillMissingImages(t *testing.T) {
	ctx := context.Background()
	repo := NewCatalogRepository(newTestStore(t))

	now := time.Now().UTC()
	require.NoError(t, repo.Put(ctx, model.CatalogRecord{Barcode: "1", Image: "", CreatedAt: now}))
	require.NoError(t, repo.Put(ctx, model.CatalogRecord{Barcode: "2", Image: "null", CreatedAt: now}))
	require.NoError(t, repo.Put(ctx, model.CatalogRecord{Barcode: "3", Image: "https://cdn.example.com/3.jpg", CreatedAt: now}))

	updated, err := repo.BackfillMissingImages(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 2, updated)

	rec, err := repo.Get(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, PlaceholderImage, rec.Image)

	rec, err = repo.Get(ctx, "3")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/3.jpg", rec.Image)
}

func TestStagingLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewStagingRepository(newTestStore(t))

	id1, err := repo.Add(ctx, model.StagingRecord{Barcode: "111", Name: "First"})
	require.NoError(t, err)
	require.NotEmpty(t, id1)

	id2, err := repo.Add(ctx, model.StagingRecord{Barcode: "222", Name: "Second", AddedAt: time.Now().UTC().Add(time.Minute)})
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)

	records, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "222", records[0].Barcode)

	require.NoError(t, repo.Delete(ctx, id1))
	removed, err := repo.Clear(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = repo.Get(ctx, id2)
	assert.ErrorIs(t, err, docstore.ErrKeyNotFound)
}
