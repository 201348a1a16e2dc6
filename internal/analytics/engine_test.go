package analytics_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carrefour/dvf-engine/internal/analytics"
	"github.com/carrefour/dvf-engine/internal/common"
	"github.com/carrefour/dvf-engine/internal/model"
	"github.com/carrefour/dvf-engine/internal/testutil"
)

func newTestEngine(t *testing.T) (*analytics.Engine, *testutil.TestDB) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	return analytics.NewEngine(db.Storage, analytics.DefaultConfig()), db
}

// seedMarket inserts count single-lot sales in the postal code, spaced
// monthly backwards from now, all priced at exactly pps per square meter.
func seedMarket(t *testing.T, db *testutil.TestDB, postal string, count int, pps float64) {
	t.Helper()

	batchID := db.NewBatch(fmt.Sprintf("seed-%s.txt", postal))
	records := make([]model.TransactionRecord, 0, count)
	for i := 0; i < count; i++ {
		surface := 40.0 + float64(i)
		day := time.Now().UTC().AddDate(0, -(i + 1), 0).Format("2006-01-02")
		records = append(records, testutil.NewRecord(
			testutil.WithDate(day),
			testutil.WithPostal(postal),
			testutil.WithAddress(fmt.Sprintf("%d", i+1), "RUE DES MARTYRS"),
			testutil.WithPrice(surface*pps),
			testutil.WithSurface(surface),
		))
	}
	db.SaveRecords(batchID, records)
	db.Rebuild()
}

func TestQueryValidation(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		query analytics.Query
	}{
		{
			name:  "unknown query type",
			query: analytics.Query{Type: "fancy", PostalCode: "75006"},
		},
		{
			name:  "postal code too short",
			query: analytics.Query{Type: analytics.QueryMarket, PostalCode: "750"},
		},
		{
			name:  "postal code with letters",
			query: analytics.Query{Type: analytics.QueryMarket, PostalCode: "75A06"},
		},
		{
			name:  "simple query without address",
			query: analytics.Query{Type: analytics.QuerySimple, PostalCode: "75006"},
		},
		{
			name: "unsupported property type",
			query: analytics.Query{
				Type:         analytics.QueryMarket,
				PostalCode:   "75006",
				PropertyType: "Local industriel",
			},
		},
		{
			name: "window ends before it starts",
			query: analytics.Query{
				Type:       analytics.QueryMarket,
				PostalCode: "75006",
				From:       time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
				To:         time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := engine.Query(ctx, tt.query)
			assert.ErrorIs(t, err, common.ErrInvalidQuery)
		})
	}
}

func TestQueryInsufficientData(t *testing.T) {
	engine, _ := newTestEngine(t)

	_, err := engine.Query(context.Background(), analytics.Query{
		Type:       analytics.QueryMarket,
		PostalCode: "99999",
	})

	assert.ErrorIs(t, err, common.ErrInsufficientData)
}

func TestSimpleQueryGroupsLots(t *testing.T) {
	engine, db := newTestEngine(t)

	// Two lots from the same act plus an unrelated sale next door.
	batchID := db.NewBatch("act.txt")
	db.SaveRecords(batchID, []model.TransactionRecord{
		testutil.NewRecord(
			testutil.WithDate("2026-03-01"),
			testutil.WithAddress("56", "RUE NOTRE-DAME DES CHAMPS"),
			testutil.WithPrice(500000),
			testutil.WithSurface(40),
		),
		testutil.NewRecord(
			testutil.WithDate("2026-03-01"),
			testutil.WithAddress("56", "RUE NOTRE-DAME DES CHAMPS"),
			testutil.WithPrice(500000),
			testutil.WithSurface(10),
		),
		testutil.NewRecord(
			testutil.WithDate("2026-04-12"),
			testutil.WithAddress("58", "RUE NOTRE-DAME DES CHAMPS"),
			testutil.WithPrice(410000),
			testutil.WithSurface(41),
		),
	})
	db.Rebuild()

	result, err := engine.Query(context.Background(), analytics.Query{
		Type:       analytics.QuerySimple,
		Address:    "56 RUE NOTRE-DAME DES CHAMPS",
		PostalCode: "75006",
	})

	require.NoError(t, err)
	require.Len(t, result.Sales, 1, "the two lots must fold into one sale")
	sale := result.Sales[0]
	assert.Equal(t, 2, sale.UnitCount)
	require.NotNil(t, sale.TotalSurfaceArea)
	assert.InDelta(t, 50, *sale.TotalSurfaceArea, 0.001)
	require.NotNil(t, sale.GroupedPricePerSqm)
	assert.InDelta(t, 10000, *sale.GroupedPricePerSqm, 0.001)
	assert.Equal(t, analytics.ConfidenceLow, result.Confidence, "one sale is below the minimum sample")
}

func TestMarketQueryFairPrice(t *testing.T) {
	engine, db := newTestEngine(t)
	seedMarket(t, db, "75006", 8, 10000)

	result, err := engine.Query(context.Background(), analytics.Query{
		Type:        analytics.QueryMarket,
		PostalCode:  "75006",
		SurfaceArea: 50,
		AskingPrice: 500000,
	})

	require.NoError(t, err)
	require.NotNil(t, result.Market)
	assert.Equal(t, analytics.ConfidenceNormal, result.Confidence)
	assert.InDelta(t, 10000, result.Market.MarketMeanPricePerSqm, 0.001)
	assert.InDelta(t, 500000, result.Market.EstimatedValue, 0.001)
	assert.InDelta(t, 0, result.Market.DeviationPct, 0.001)
	assert.Equal(t, "Fair price - At market value", result.Market.Recommendation)
	assert.Greater(t, result.Market.ConfidenceScore, 0.0)
}

func TestMarketQueryOverpriced(t *testing.T) {
	engine, db := newTestEngine(t)
	seedMarket(t, db, "75011", 8, 10000)

	result, err := engine.Query(context.Background(), analytics.Query{
		Type:        analytics.QueryMarket,
		PostalCode:  "75011",
		SurfaceArea: 50,
		AskingPrice: 650000, // 13000 per m² against a 10000 market
	})

	require.NoError(t, err)
	require.NotNil(t, result.Market)
	assert.InDelta(t, 30, result.Market.DeviationPct, 0.001)
	assert.Equal(t, "Heavily overpriced - Reconsider or negotiate heavily", result.Market.Recommendation)
}

func TestMarketQueryWidensToDepartment(t *testing.T) {
	engine, db := newTestEngine(t)
	// Too few sales in the queried postal code, plenty in the department.
	seedMarket(t, db, "75001", 2, 9000)
	seedMarket(t, db, "75004", 10, 9000)

	result, err := engine.Query(context.Background(), analytics.Query{
		Type:       analytics.QueryMarket,
		PostalCode: "75001",
	})

	require.NoError(t, err)
	assert.GreaterOrEqual(t, result.Stats.Count, 10, "department sales must back the thin postal code")
}

func TestTrendQuery(t *testing.T) {
	engine, db := newTestEngine(t)

	batchID := db.NewBatch("history.txt")
	var records []model.TransactionRecord
	for year := 2019; year <= 2024; year++ {
		pps := 9000 + float64(year-2019)*400
		for i := 0; i < 3; i++ {
			surface := 45.0 + float64(i)
			records = append(records, testutil.NewRecord(
				testutil.WithDate(fmt.Sprintf("%d-0%d-15", year, 3*i+2)),
				testutil.WithPostal("75012"),
				testutil.WithAddress(fmt.Sprintf("%d", year*10+i), "AVENUE DAUMESNIL"),
				testutil.WithPrice(surface*pps),
				testutil.WithSurface(surface),
			))
		}
	}
	db.SaveRecords(batchID, records)
	db.Rebuild()

	result, err := engine.Query(context.Background(), analytics.Query{
		Type:       analytics.QueryTrend,
		PostalCode: "75012",
	})

	require.NoError(t, err)
	require.NotNil(t, result.Trend)
	require.Len(t, result.Trend.Points, 6, "one bucket per year")
	assert.InDelta(t, 400, result.Trend.SlopePerYear, 20)
	assert.Greater(t, result.Trend.AnnualGrowthPct, 0.0)
}

func TestProjectionQuery(t *testing.T) {
	engine, db := newTestEngine(t)

	batchID := db.NewBatch("history.txt")
	var records []model.TransactionRecord
	for year := 2020; year <= 2025; year++ {
		pps := 8000 + float64(year-2020)*500
		for i := 0; i < 3; i++ {
			surface := 60.0 + float64(i)
			records = append(records, testutil.NewRecord(
				testutil.WithDate(fmt.Sprintf("%d-0%d-10", year, 2*i+3)),
				testutil.WithPostal("75013"),
				testutil.WithAddress(fmt.Sprintf("%d", year*10+i), "RUE DE TOLBIAC"),
				testutil.WithPrice(surface*pps),
				testutil.WithSurface(surface),
			))
		}
	}
	db.SaveRecords(batchID, records)
	db.Rebuild()

	target := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)
	result, err := engine.Query(context.Background(), analytics.Query{
		Type:       analytics.QueryProjection,
		PostalCode: "75013",
		From:       time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		TargetDate: target,
	})

	require.NoError(t, err)
	require.NotNil(t, result.Projection)
	assert.Equal(t, target, result.Projection.TargetDate)
	assert.Greater(t, result.Projection.SlopePerYear, 0.0)
	assert.Greater(t, result.Projection.EstimatedPricePerSqm, result.Projection.BasePricePerSqm,
		"a rising market must project above the latest bucket")
}

func TestQueryCaching(t *testing.T) {
	engine, db := newTestEngine(t)
	seedMarket(t, db, "75015", 6, 11000)

	q := analytics.Query{Type: analytics.QueryMarket, PostalCode: "75015"}

	first, err := engine.Query(context.Background(), q)
	require.NoError(t, err)
	second, err := engine.Query(context.Background(), q)
	require.NoError(t, err)

	assert.Same(t, first, second, "repeated queries within the TTL must hit the cache")
}

func TestQueryErrorsAreNotCached(t *testing.T) {
	engine, db := newTestEngine(t)

	q := analytics.Query{Type: analytics.QueryMarket, PostalCode: "75020"}

	_, err := engine.Query(context.Background(), q)
	require.ErrorIs(t, err, common.ErrInsufficientData)

	seedMarket(t, db, "75020", 6, 9500)

	result, err := engine.Query(context.Background(), q)
	require.NoError(t, err, "data arriving after a failed query must be visible")
	assert.Equal(t, 6, result.Stats.Count)
}

func TestQueryCancelledContext(t *testing.T) {
	engine, db := newTestEngine(t)
	seedMarket(t, db, "75016", 6, 12000)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := engine.Query(ctx, analytics.Query{
		Type:       analytics.QueryMarket,
		PostalCode: "75016",
	})

	assert.ErrorIs(t, err, context.Canceled)
}
