// Package testutil provides shared test fixtures: in-memory databases
// with migrations applied and builders for realistic transaction records.
package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/carrefour/dvf-engine/internal/model"
	"github.com/carrefour/dvf-engine/internal/service"
	"github.com/carrefour/dvf-engine/internal/storage"
)

// TestDB wraps an in-memory storage for one test.
type TestDB struct {
	Storage service.Storage
	t       *testing.T
}

// SetupTestDB creates an in-memory SQLite database with migrations
// applied and cleanup registered on the test.
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	ctx := context.Background()
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() {
		if closeErr := store.Close(); closeErr != nil {
			t.Errorf("failed to close test database: %v", closeErr)
		}
	})

	return &TestDB{Storage: store, t: t}
}

// NewBatch creates a running import batch and returns its ID.
func (db *TestDB) NewBatch(sourceFile string) string {
	db.t.Helper()

	batch := &model.ImportBatch{
		BatchID:        uuid.New().String(),
		SourceFile:     sourceFile,
		SourceFileHash: fmt.Sprintf("hash-%s", sourceFile),
		Status:         model.BatchRunning,
		DataYear:       2024,
		StartedAt:      time.Now().UTC(),
	}
	if err := db.Storage.CreateBatch(context.Background(), batch); err != nil {
		db.t.Fatalf("failed to create test batch: %v", err)
	}
	return batch.BatchID
}

// SaveRecords persists records under the batch, failing the test on error.
func (db *TestDB) SaveRecords(batchID string, records []model.TransactionRecord) int {
	db.t.Helper()

	for i := range records {
		records[i].BatchID = batchID
	}
	inserted, err := db.Storage.SaveRecords(context.Background(), records)
	if err != nil {
		db.t.Fatalf("failed to save test records: %v", err)
	}
	return inserted
}

// Rebuild runs a full grouped-transaction materialization.
func (db *TestDB) Rebuild() *model.Materialization {
	db.t.Helper()

	mat, err := db.Storage.RebuildGroupedTransactions(context.Background())
	if err != nil {
		db.t.Fatalf("failed to rebuild grouped transactions: %v", err)
	}
	return mat
}

// RecordOption mutates a record under construction.
type RecordOption func(*model.TransactionRecord)

// WithDate sets the sale date from an ISO day string.
func WithDate(day string) RecordOption {
	return func(r *model.TransactionRecord) {
		t, err := time.Parse("2006-01-02", day)
		if err != nil {
			panic(fmt.Sprintf("bad test date %q: %v", day, err))
		}
		r.SaleDate = t
	}
}

// WithPrice sets the sale price.
func WithPrice(price float64) RecordOption {
	return func(r *model.TransactionRecord) { r.SalePrice = price }
}

// WithAddress sets the full address and street name together.
func WithAddress(number, street string) RecordOption {
	return func(r *model.TransactionRecord) {
		r.StreetName = street
		r.Address = fmt.Sprintf("%s %s", number, street)
	}
}

// WithPostal sets the postal code and derives the department.
func WithPostal(postal string) RecordOption {
	return func(r *model.TransactionRecord) {
		r.PostalCode = postal
		r.Department = postal[:2]
	}
}

// WithPropertyType sets the property type.
func WithPropertyType(pt model.PropertyType) RecordOption {
	return func(r *model.TransactionRecord) { r.PropertyType = pt }
}

// WithSurface sets the surface area and recomputes price per square meter.
func WithSurface(surface float64) RecordOption {
	return func(r *model.TransactionRecord) {
		r.SurfaceArea = &surface
		if surface > 0 {
			pps := r.SalePrice / surface
			r.PricePerSqm = &pps
		}
	}
}

// WithRooms sets the room count.
func WithRooms(rooms int) RecordOption {
	return func(r *model.TransactionRecord) { r.Rooms = &rooms }
}

// NewRecord builds a plausible Paris apartment sale, then applies the
// options in order and derives the group ID and natural key last so they
// reflect the final field values.
func NewRecord(opts ...RecordOption) model.TransactionRecord {
	surface := 50.0
	pps := 10000.0
	rooms := 2

	r := model.TransactionRecord{
		SaleDate:     time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		SalePrice:    500000,
		Address:      "12 RUE DE VAUGIRARD",
		StreetName:   "RUE DE VAUGIRARD",
		PostalCode:   "75006",
		City:         "PARIS 06",
		Department:   "75",
		PropertyType: model.PropertyApartment,
		SurfaceArea:  &surface,
		Rooms:        &rooms,
		PricePerSqm:  &pps,
		DataYear:     2024,
	}
	for _, opt := range opts {
		opt(&r)
	}
	if r.SurfaceArea != nil && *r.SurfaceArea > 0 {
		v := r.SalePrice / *r.SurfaceArea
		r.PricePerSqm = &v
	}
	r.GroupID = r.GenerateGroupID()
	r.NaturalKey = r.GenerateNaturalKey()
	return r
}
