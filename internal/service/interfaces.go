// Package service defines the interfaces between the engine's components
// and its consumers. The REST layer and the operational CLI depend on
// these, never on the concrete SQLite implementation.
package service

import (
	"context"
	"time"

	"github.com/carrefour/dvf-engine/internal/model"
)

// RecordStore persists and retrieves normalized transaction records.
type RecordStore interface {
	SaveRecords(ctx context.Context, records []model.TransactionRecord) (int, error)
	DeleteRecordsByBatch(ctx context.Context, batchID string) (int64, error)
	CountRecordsByBatch(ctx context.Context, batchID string) (int64, error)
	CountRecords(ctx context.Context) (int64, error)
	GetRecordsByAddress(ctx context.Context, address, postalCode string, propertyType model.PropertyType, since time.Time, limit int) ([]model.TransactionRecord, error)
}

// BatchStore tracks import batches, the unit of rollback.
type BatchStore interface {
	CreateBatch(ctx context.Context, batch *model.ImportBatch) error
	GetBatch(ctx context.Context, batchID string) (*model.ImportBatch, error)
	ListBatches(ctx context.Context) ([]model.ImportBatch, error)
	FindCompletedBatchByFileHash(ctx context.Context, fileHash string) (*model.ImportBatch, error)
	UpdateBatchStatus(ctx context.Context, batchID string, status model.BatchStatus, errorMessage string) error
	UpdateBatchCounts(ctx context.Context, batch *model.ImportBatch, rejectBreakdown map[model.RejectReason]int64) error
}

// GroupedStore materializes and queries grouped transactions.
type GroupedStore interface {
	RebuildGroupedTransactions(ctx context.Context) (*model.Materialization, error)
	LatestMaterialization(ctx context.Context) (*model.Materialization, error)
	GetGroupedByAddress(ctx context.Context, address, postalCode string, propertyType model.PropertyType, since time.Time, limit int) ([]model.GroupedTransaction, error)
	GetGroupedByArea(ctx context.Context, postalCode, department string, propertyType model.PropertyType, minSurface, maxSurface float64, since time.Time, limit int) ([]model.GroupedTransaction, error)
}

// Storage is the full analytical store surface.
type Storage interface {
	RecordStore
	BatchStore
	GroupedStore
	DataQualityReport(ctx context.Context) (*model.QualityReport, error)
	Migrate(ctx context.Context) error
	Close() error
}

// Refresher triggers a grouped-transaction rebuild. The ingestor holds
// one so completing a batch can kick a refresh without knowing how the
// materializer coalesces concurrent requests.
type Refresher interface {
	Refresh(ctx context.Context) (*model.Materialization, error)
}
