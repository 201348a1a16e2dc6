package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/carrefour/dvf-engine/internal/common"
	"github.com/carrefour/dvf-engine/internal/model"
)

const batchColumns = `batch_id, source_file, source_file_hash, data_year, status,
	total_records, accepted_records, duplicate_records, rejected_records,
	reject_breakdown, error_message, started_at, completed_at`

// CreateBatch records the start of an import run in running state.
func (s *SQLiteStorage) CreateBatch(ctx context.Context, batch *model.ImportBatch) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(batch.BatchID, "batchID"); err != nil {
		return err
	}
	if err := validateString(batch.SourceFile, "sourceFile"); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO import_batches (
			batch_id, source_file, source_file_hash, data_year, status
		) VALUES (?, ?, ?, ?, ?)
	`, batch.BatchID, batch.SourceFile, batch.SourceFileHash, batch.DataYear, string(model.BatchRunning))
	if err != nil {
		return fmt.Errorf("failed to create import batch: %w", mapError(err))
	}
	return nil
}

// GetBatch loads one import batch by id.
func (s *SQLiteStorage) GetBatch(ctx context.Context, batchID string) (*model.ImportBatch, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(batchID, "batchID"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT %s FROM import_batches WHERE batch_id = ?`, batchColumns), batchID)

	batch, err := scanBatch(row)
	if errors.Is(err, common.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", common.ErrBatchNotFound, batchID)
	}
	return batch, err
}

// ListBatches returns every import batch, most recent first.
func (s *SQLiteStorage) ListBatches(ctx context.Context) ([]model.ImportBatch, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT %s FROM import_batches ORDER BY started_at DESC, batch_id DESC`, batchColumns))
	if err != nil {
		return nil, fmt.Errorf("failed to list batches: %w", mapError(err))
	}
	defer func() { _ = rows.Close() }()

	var batches []model.ImportBatch
	for rows.Next() {
		batch, scanErr := scanBatch(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		batches = append(batches, *batch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate batches: %w", mapError(err))
	}
	return batches, nil
}

// FindCompletedBatchByFileHash returns the completed batch that already
// imported the given source file, or ErrNotFound.
func (s *SQLiteStorage) FindCompletedBatchByFileHash(ctx context.Context, fileHash string) (*model.ImportBatch, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(fileHash, "fileHash"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT %s FROM import_batches
		WHERE source_file_hash = ? AND status = ?
		ORDER BY started_at DESC LIMIT 1
	`, batchColumns), fileHash, string(model.BatchCompleted))

	return scanBatch(row)
}

// UpdateBatchStatus transitions a batch, stamping completion time and the
// failure message when there is one.
func (s *SQLiteStorage) UpdateBatchStatus(ctx context.Context, batchID string, status model.BatchStatus, errorMessage string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(batchID, "batchID"); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE import_batches
		SET status = ?, error_message = ?, completed_at = CURRENT_TIMESTAMP
		WHERE batch_id = ?
	`, string(status), errorMessage, batchID)
	if err != nil {
		return fmt.Errorf("failed to update batch status: %w", mapError(err))
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check batch update: %w", mapError(err))
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", common.ErrBatchNotFound, batchID)
	}
	return nil
}

// UpdateBatchCounts persists the running ingestion statistics.
func (s *SQLiteStorage) UpdateBatchCounts(ctx context.Context, batch *model.ImportBatch, rejectBreakdown map[model.RejectReason]int64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(batch.BatchID, "batchID"); err != nil {
		return err
	}

	breakdown := ""
	if len(rejectBreakdown) > 0 {
		data, marshalErr := json.Marshal(rejectBreakdown)
		if marshalErr != nil {
			return fmt.Errorf("failed to encode reject breakdown: %w", marshalErr)
		}
		breakdown = string(data)
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE import_batches
		SET total_records = ?, accepted_records = ?, duplicate_records = ?,
			rejected_records = ?, reject_breakdown = ?
		WHERE batch_id = ?
	`, batch.TotalRecords, batch.AcceptedRecords, batch.DuplicateRecords,
		batch.RejectedRecords, breakdown, batch.BatchID)
	if err != nil {
		return fmt.Errorf("failed to update batch counts: %w", mapError(err))
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBatch(row rowScanner) (*model.ImportBatch, error) {
	var (
		batch        model.ImportBatch
		status       string
		breakdown    sql.NullString
		errorMessage sql.NullString
		completedAt  sql.NullTime
	)
	err := row.Scan(
		&batch.BatchID, &batch.SourceFile, &batch.SourceFileHash,
		&batch.DataYear, &status, &batch.TotalRecords,
		&batch.AcceptedRecords, &batch.DuplicateRecords,
		&batch.RejectedRecords, &breakdown, &errorMessage,
		&batch.StartedAt, &completedAt,
	)
	if err != nil {
		return nil, mapError(err)
	}
	batch.Status = model.BatchStatus(status)
	batch.ErrorMessage = errorMessage.String
	if breakdown.Valid && breakdown.String != "" {
		if err := json.Unmarshal([]byte(breakdown.String), &batch.RejectBreakdown); err != nil {
			return nil, fmt.Errorf("failed to decode reject breakdown: %w", err)
		}
	}
	if completedAt.Valid {
		batch.CompletedAt = &completedAt.Time
	}
	return &batch, nil
}
