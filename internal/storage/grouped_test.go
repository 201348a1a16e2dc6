package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carrefour/dvf-engine/internal/common"
	"github.com/carrefour/dvf-engine/internal/model"
	"github.com/carrefour/dvf-engine/internal/testutil"
)

func TestRebuildFoldsMultiLotAct(t *testing.T) {
	db := testutil.SetupTestDB(t)
	batchID := db.NewBatch("dvf.txt")

	// One act selling three lots of the same building for 650000, plus an
	// unrelated single-lot sale on another street.
	act := []testutil.RecordOption{
		testutil.WithDate("2024-03-01"),
		testutil.WithAddress("56", "RUE NOTRE-DAME DES CHAMPS"),
		testutil.WithPrice(650000),
	}
	db.SaveRecords(batchID, []model.TransactionRecord{
		testutil.NewRecord(append(act, testutil.WithSurface(45), testutil.WithRooms(2))...),
		testutil.NewRecord(append(act, testutil.WithSurface(12), testutil.WithRooms(1))...),
		testutil.NewRecord(append(act, testutil.WithSurface(8), testutil.WithRooms(1))...),
		testutil.NewRecord(
			testutil.WithDate("2024-03-01"),
			testutil.WithAddress("3", "RUE DE FLEURUS"),
			testutil.WithPrice(420000),
			testutil.WithSurface(42),
		),
	})

	mat := db.Rebuild()
	assert.Equal(t, int64(2), mat.GroupCount)
	assert.Equal(t, int64(4), mat.RecordCount)
	assert.Equal(t, int64(1), mat.Version)

	grouped, err := db.Storage.GetGroupedByAddress(context.Background(),
		"56 RUE NOTRE-DAME DES CHAMPS", "75006", "", time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, grouped, 1)

	g := grouped[0]
	assert.Equal(t, 3, g.UnitCount)
	assert.True(t, g.IsMultiLot())
	assert.Equal(t, 4, g.TotalRooms)
	assert.InDelta(t, 650000, g.SalePrice, 0.001)
	require.NotNil(t, g.TotalSurfaceArea)
	assert.InDelta(t, 65, *g.TotalSurfaceArea, 0.001)
	require.NotNil(t, g.GroupedPricePerSqm)
	assert.InDelta(t, 10000, *g.GroupedPricePerSqm, 0.001, "price per m² uses the summed surface")

	require.Len(t, g.Lots, 3)
	var lotSurface float64
	for _, lot := range g.Lots {
		require.NotNil(t, lot.SurfaceArea)
		lotSurface += *lot.SurfaceArea
	}
	assert.InDelta(t, 65, lotSurface, 0.001)
}

func TestRebuildIsIdempotentAndVersioned(t *testing.T) {
	db := testutil.SetupTestDB(t)
	batchID := db.NewBatch("dvf.txt")
	db.SaveRecords(batchID, []model.TransactionRecord{testutil.NewRecord()})

	first := db.Rebuild()
	second := db.Rebuild()

	assert.Equal(t, first.GroupCount, second.GroupCount)
	assert.Equal(t, second.Version, first.Version+1, "every rebuild advances the version")

	latest, err := db.Storage.LatestMaterialization(context.Background())
	require.NoError(t, err)
	assert.Equal(t, second.Version, latest.Version)
}

func TestRebuildDropsRemovedBatch(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	keep := db.NewBatch("keep.txt")
	drop := db.NewBatch("drop.txt")
	db.SaveRecords(keep, []model.TransactionRecord{
		testutil.NewRecord(testutil.WithAddress("1", "RUE DE SEVRES")),
	})
	db.SaveRecords(drop, []model.TransactionRecord{
		testutil.NewRecord(testutil.WithAddress("2", "RUE DE SEVRES")),
	})

	mat := db.Rebuild()
	assert.Equal(t, int64(2), mat.GroupCount)

	_, err := db.Storage.DeleteRecordsByBatch(ctx, drop)
	require.NoError(t, err)

	mat = db.Rebuild()
	assert.Equal(t, int64(1), mat.GroupCount, "rebuild reflects deletions wholesale")

	gone, err := db.Storage.GetGroupedByAddress(ctx, "2 RUE DE SEVRES", "75006", "", time.Time{}, 0)
	require.NoError(t, err)
	assert.Empty(t, gone)
}

func TestLatestMaterializationEmpty(t *testing.T) {
	db := testutil.SetupTestDB(t)

	_, err := db.Storage.LatestMaterialization(context.Background())
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestGetGroupedByAreaFilters(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	batchID := db.NewBatch("dvf.txt")

	db.SaveRecords(batchID, []model.TransactionRecord{
		testutil.NewRecord(
			testutil.WithPostal("75006"),
			testutil.WithAddress("1", "RUE D'ASSAS"),
			testutil.WithPrice(400000),
			testutil.WithSurface(40),
		),
		testutil.NewRecord(
			testutil.WithPostal("75006"),
			testutil.WithAddress("2", "RUE D'ASSAS"),
			testutil.WithPrice(1200000),
			testutil.WithSurface(120),
		),
		testutil.NewRecord(
			testutil.WithPostal("75014"),
			testutil.WithAddress("3", "RUE DAGUERRE"),
			testutil.WithPrice(450000),
			testutil.WithSurface(45),
		),
		testutil.NewRecord(
			testutil.WithPostal("92100"),
			testutil.WithAddress("4", "RUE DU CHATEAU"),
			testutil.WithPrice(380000),
			testutil.WithSurface(38),
		),
	})
	db.Rebuild()

	postalOnly, err := db.Storage.GetGroupedByArea(ctx, "75006", "", "", 0, 0, time.Time{}, 0)
	require.NoError(t, err)
	assert.Len(t, postalOnly, 2)

	department, err := db.Storage.GetGroupedByArea(ctx, "75006", "75", "", 0, 0, time.Time{}, 0)
	require.NoError(t, err)
	assert.Len(t, department, 3, "department widening must pick up 75014 but not 92100")

	banded, err := db.Storage.GetGroupedByArea(ctx, "75006", "75", "", 35, 50, time.Time{}, 0)
	require.NoError(t, err)
	assert.Len(t, banded, 2, "the 120 m² sale falls outside the surface band")
}

func TestGroupedQueriesSurviveRebuild(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	batchID := db.NewBatch("dvf.txt")
	db.SaveRecords(batchID, []model.TransactionRecord{testutil.NewRecord()})

	db.Rebuild()
	before, err := db.Storage.GetGroupedByArea(ctx, "75006", "", "", 0, 0, time.Time{}, 0)
	require.NoError(t, err)

	db.Rebuild()
	after, err := db.Storage.GetGroupedByArea(ctx, "75006", "", "", 0, 0, time.Time{}, 0)
	require.NoError(t, err)

	assert.Equal(t, len(before), len(after))
	assert.Equal(t, before[0].GroupID, after[0].GroupID)
}
