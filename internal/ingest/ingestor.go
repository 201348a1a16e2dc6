// Package ingest implements batch import of DVF source files: chunked
// normalization, deduplication against previously imported data, and
// batch-scoped rollback.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/carrefour/dvf-engine/internal/common"
	"github.com/carrefour/dvf-engine/internal/dvf"
	"github.com/carrefour/dvf-engine/internal/model"
	"github.com/carrefour/dvf-engine/internal/service"
)

// DefaultChunkSize is how many raw rows are normalized and persisted per
// chunk when the operator doesn't override it.
const DefaultChunkSize = 30000

// ChunkReport summarizes what happened to one chunk of raw rows.
type ChunkReport struct {
	RejectedByReason map[model.RejectReason]int64
	Accepted         int64
	Duplicates       int64
}

// Rejected sums the per-reason reject counts.
func (r *ChunkReport) Rejected() int64 {
	var total int64
	for _, n := range r.RejectedByReason {
		total += n
	}
	return total
}

// Ingestor runs imports against the store. Chunks within one batch are
// processed sequentially so duplicate detection against earlier chunks is
// deterministic; independent batches may run concurrently.
type Ingestor struct {
	store     service.Storage
	refresher service.Refresher
	retryOpts common.RetryOptions
}

// NewIngestor creates an ingestor. The refresher is invoked after a
// completed or rolled-back batch; it may be nil in tests.
func NewIngestor(store service.Storage, refresher service.Refresher) *Ingestor {
	return &Ingestor{
		store:     store,
		refresher: refresher,
		retryOpts: common.RetryOptions{
			MaxAttempts:  5,
			InitialDelay: 200 * time.Millisecond,
			MaxDelay:     5 * time.Second,
		},
	}
}

// Import is one in-flight import run: a running batch bound to the
// normalizer for its source file.
type Import struct {
	ingestor   *Ingestor
	normalizer *dvf.Normalizer
	batch      *model.ImportBatch
	rejects    map[model.RejectReason]int64
}

// Batch exposes the audit record of the run.
func (imp *Import) Batch() *model.ImportBatch {
	return imp.batch
}

// StartImport creates the batch record in running state and returns the
// import session for it.
func (i *Ingestor) StartImport(ctx context.Context, sourceFile, fileHash string, dataYear int, schema *dvf.Schema) (*Import, error) {
	batch := &model.ImportBatch{
		BatchID:        uuid.New().String(),
		SourceFile:     sourceFile,
		SourceFileHash: fileHash,
		DataYear:       dataYear,
		Status:         model.BatchRunning,
		StartedAt:      time.Now().UTC(),
	}

	if err := i.store.CreateBatch(ctx, batch); err != nil {
		return nil, fmt.Errorf("failed to start import: %w", err)
	}

	slog.Info("Started import batch",
		"batch_id", batch.BatchID,
		"source_file", sourceFile,
		"data_year", dataYear)

	return &Import{
		ingestor:   i,
		normalizer: dvf.NewNormalizer(schema, dataYear),
		batch:      batch,
		rejects:    make(map[model.RejectReason]int64),
	}, nil
}

// IngestChunk normalizes every raw row, drops rejects and exact
// duplicates, and persists the survivors tagged with the batch. A store
// failure marks the batch failed and aborts the chunk; chunks already
// persisted stay put until an explicit rollback.
func (imp *Import) IngestChunk(ctx context.Context, rawRows [][]string) (*ChunkReport, error) {
	if imp.batch.Status != model.BatchRunning {
		return nil, fmt.Errorf("%w: %s is %s", common.ErrBatchNotRunning, imp.batch.BatchID, imp.batch.Status)
	}

	report := &ChunkReport{RejectedByReason: make(map[model.RejectReason]int64)}
	records := make([]model.TransactionRecord, 0, len(rawRows))
	seen := make(map[string]bool, len(rawRows))

	for _, fields := range rawRows {
		rec, reason := imp.normalizer.Normalize(fields)
		if reason != "" {
			report.RejectedByReason[reason]++
			continue
		}
		// Within-chunk duplicates would otherwise both insert.
		if seen[rec.NaturalKey] {
			report.Duplicates++
			continue
		}
		seen[rec.NaturalKey] = true

		rec.BatchID = imp.batch.BatchID
		rec.SourceFile = imp.batch.SourceFile
		records = append(records, *rec)
	}

	var inserted int
	err := common.WithRetry(ctx, func() error {
		var saveErr error
		inserted, saveErr = imp.ingestor.store.SaveRecords(ctx, records)
		return saveErr
	}, imp.ingestor.retryOpts)
	if err != nil {
		imp.fail(ctx, err)
		return nil, fmt.Errorf("chunk aborted: %w", err)
	}

	report.Accepted = int64(inserted)
	// Rows the store skipped were already imported, by this batch's
	// earlier chunks or a prior batch.
	report.Duplicates += int64(len(records) - inserted)

	imp.batch.TotalRecords += int64(len(rawRows))
	imp.batch.AcceptedRecords += report.Accepted
	imp.batch.DuplicateRecords += report.Duplicates
	imp.batch.RejectedRecords += report.Rejected()
	for reason, n := range report.RejectedByReason {
		imp.rejects[reason] += n
	}
	imp.batch.RejectBreakdown = imp.rejects

	if err := imp.ingestor.store.UpdateBatchCounts(ctx, imp.batch, imp.rejects); err != nil {
		imp.fail(ctx, err)
		return nil, fmt.Errorf("chunk aborted: %w", err)
	}

	return report, nil
}

// Complete marks the batch completed and triggers a grouped-transaction
// refresh so analytics see the new data.
func (imp *Import) Complete(ctx context.Context) error {
	if err := imp.ingestor.store.UpdateBatchStatus(ctx, imp.batch.BatchID, model.BatchCompleted, ""); err != nil {
		return fmt.Errorf("failed to complete import: %w", err)
	}
	imp.batch.Status = model.BatchCompleted

	slog.Info("Completed import batch",
		"batch_id", imp.batch.BatchID,
		"total", imp.batch.TotalRecords,
		"accepted", imp.batch.AcceptedRecords,
		"duplicates", imp.batch.DuplicateRecords,
		"rejected", imp.batch.RejectedRecords)

	return imp.ingestor.refresh(ctx)
}

// Fail flips the batch to failed with the given cause. Exposed so the
// file orchestrator can mark I/O failures discovered between chunks.
func (imp *Import) Fail(ctx context.Context, cause error) {
	imp.fail(ctx, cause)
}

func (imp *Import) fail(ctx context.Context, cause error) {
	imp.batch.Status = model.BatchFailed
	if err := imp.ingestor.store.UpdateBatchStatus(ctx, imp.batch.BatchID, model.BatchFailed, cause.Error()); err != nil {
		common.LogError(err, "Failed to mark batch as failed", common.Fields{
			"batch_id": imp.batch.BatchID,
		})
	}
}

// Rollback deletes every record tagged with the batch and marks it
// rolled back. Safe on a partially-completed or failed batch: a crash
// mid-ingest leaves a running batch this can still clean up.
func (i *Ingestor) Rollback(ctx context.Context, batchID string) (int64, error) {
	if _, err := i.store.GetBatch(ctx, batchID); err != nil {
		return 0, err
	}

	deleted, err := i.store.DeleteRecordsByBatch(ctx, batchID)
	if err != nil {
		return 0, fmt.Errorf("failed to roll back batch %s: %w", batchID, err)
	}

	if err := i.store.UpdateBatchStatus(ctx, batchID, model.BatchRolledBack, ""); err != nil {
		return deleted, fmt.Errorf("records deleted but batch not marked: %w", err)
	}

	slog.Info("Rolled back import batch",
		"batch_id", batchID,
		"deleted", deleted)

	return deleted, i.refresh(ctx)
}

func (i *Ingestor) refresh(ctx context.Context) error {
	if i.refresher == nil {
		return nil
	}
	if _, err := i.refresher.Refresh(ctx); err != nil {
		return fmt.Errorf("grouped transactions refresh failed: %w", err)
	}
	return nil
}
