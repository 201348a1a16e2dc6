package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carrefour/dvf-engine/internal/model"
	"github.com/carrefour/dvf-engine/internal/testutil"
)

func TestSaveRecordsRoundTrip(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	batchID := db.NewBatch("dvf-2024.txt")

	record := testutil.NewRecord(
		testutil.WithDate("2024-03-01"),
		testutil.WithAddress("56", "RUE NOTRE-DAME DES CHAMPS"),
		testutil.WithPrice(500000),
		testutil.WithSurface(50),
		testutil.WithRooms(3),
	)
	inserted := db.SaveRecords(batchID, []model.TransactionRecord{record})
	require.Equal(t, 1, inserted)

	got, err := db.Storage.GetRecordsByAddress(ctx, record.Address, record.PostalCode, "", time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)

	assert.Equal(t, record.Address, got[0].Address)
	assert.Equal(t, record.GroupID, got[0].GroupID)
	assert.Equal(t, record.NaturalKey, got[0].NaturalKey)
	assert.Equal(t, batchID, got[0].BatchID)
	assert.Equal(t, model.PropertyApartment, got[0].PropertyType)
	assert.InDelta(t, 500000, got[0].SalePrice, 0.001)
	assert.True(t, got[0].SaleDate.Equal(record.SaleDate))
	require.NotNil(t, got[0].SurfaceArea)
	assert.InDelta(t, 50, *got[0].SurfaceArea, 0.001)
	require.NotNil(t, got[0].Rooms)
	assert.Equal(t, 3, *got[0].Rooms)
	require.NotNil(t, got[0].PricePerSqm)
	assert.InDelta(t, 10000, *got[0].PricePerSqm, 0.001)
	assert.False(t, got[0].ImportedAt.IsZero())
}

func TestSaveRecordsSkipsDuplicates(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	record := testutil.NewRecord()
	first := db.SaveRecords(db.NewBatch("first.txt"), []model.TransactionRecord{record})
	assert.Equal(t, 1, first)

	// Re-importing the same row under a new batch must be a no-op.
	second := db.SaveRecords(db.NewBatch("second.txt"), []model.TransactionRecord{record})
	assert.Equal(t, 0, second)

	total, err := db.Storage.CountRecords(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}

func TestSaveRecordsNearDuplicateSurvives(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	batchID := db.NewBatch("dvf.txt")

	// Same act, different lot surface: distinct natural keys.
	inserted := db.SaveRecords(batchID, []model.TransactionRecord{
		testutil.NewRecord(testutil.WithSurface(40)),
		testutil.NewRecord(testutil.WithSurface(10)),
	})
	assert.Equal(t, 2, inserted)

	total, err := db.Storage.CountRecords(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
}

func TestSaveRecordsValidation(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	bad := testutil.NewRecord()
	bad.NaturalKey = ""
	bad.BatchID = "some-batch"

	_, err := db.Storage.SaveRecords(ctx, []model.TransactionRecord{bad})
	assert.Error(t, err)
}

func TestDeleteRecordsByBatch(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	keepBatch := db.NewBatch("keep.txt")
	dropBatch := db.NewBatch("drop.txt")

	db.SaveRecords(keepBatch, []model.TransactionRecord{
		testutil.NewRecord(testutil.WithAddress("1", "RUE DE RIVOLI")),
	})
	db.SaveRecords(dropBatch, []model.TransactionRecord{
		testutil.NewRecord(testutil.WithAddress("2", "RUE DE RIVOLI")),
		testutil.NewRecord(testutil.WithAddress("3", "RUE DE RIVOLI")),
	})

	deleted, err := db.Storage.DeleteRecordsByBatch(ctx, dropBatch)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	remaining, err := db.Storage.CountRecordsByBatch(ctx, keepBatch)
	require.NoError(t, err)
	assert.Equal(t, int64(1), remaining, "other batches must be untouched")

	gone, err := db.Storage.CountRecordsByBatch(ctx, dropBatch)
	require.NoError(t, err)
	assert.Equal(t, int64(0), gone)
}

func TestGetRecordsByAddressFilters(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	batchID := db.NewBatch("dvf.txt")

	db.SaveRecords(batchID, []model.TransactionRecord{
		testutil.NewRecord(
			testutil.WithDate("2020-06-01"),
			testutil.WithAddress("9", "RUE DU BAC"),
			testutil.WithPrice(300000),
		),
		testutil.NewRecord(
			testutil.WithDate("2024-06-01"),
			testutil.WithAddress("9", "RUE DU BAC"),
			testutil.WithPrice(350000),
		),
		testutil.NewRecord(
			testutil.WithDate("2024-07-01"),
			testutil.WithAddress("9", "RUE DU BAC"),
			testutil.WithPrice(800000),
			testutil.WithPropertyType(model.PropertyHouse),
		),
	})

	since := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	recent, err := db.Storage.GetRecordsByAddress(ctx, "9 RUE DU BAC", "75006", "", since, 0)
	require.NoError(t, err)
	assert.Len(t, recent, 2, "the 2020 sale falls outside the window")

	houses, err := db.Storage.GetRecordsByAddress(ctx, "9 RUE DU BAC", "75006", model.PropertyHouse, time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, houses, 1)
	assert.InDelta(t, 800000, houses[0].SalePrice, 0.001)

	capped, err := db.Storage.GetRecordsByAddress(ctx, "9 RUE DU BAC", "75006", "", time.Time{}, 1)
	require.NoError(t, err)
	require.Len(t, capped, 1)
	assert.Equal(t, "2024-07-01", capped[0].SaleDate.Format("2006-01-02"), "most recent first")
}
