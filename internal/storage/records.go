package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/carrefour/dvf-engine/internal/model"
)

const recordColumns = `id, natural_key, transaction_group_id, batch_id, source_file,
	data_year, sale_date, sale_price, property_type, address, street_name,
	postal_code, city, department, surface_area, rooms, land_surface,
	price_per_sqm, raw_data, imported_at`

// SaveRecords persists a chunk of normalized records inside one database
// transaction. Rows whose natural key already exists are silently skipped,
// so the uniqueness check and the insert are a single atomic unit: two
// concurrent ingestors can never both win on the same key. Returns the
// number of rows actually inserted.
func (s *SQLiteStorage) SaveRecords(ctx context.Context, records []model.TransactionRecord) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateRecords(records); err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", mapError(err))
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO transaction_records (
			natural_key, transaction_group_id, batch_id, source_file,
			data_year, sale_date, sale_price, property_type, address,
			street_name, postal_code, city, department, surface_area,
			rooms, land_surface, price_per_sqm, raw_data
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", mapError(err))
	}
	defer func() { _ = stmt.Close() }()

	inserted := 0
	for i := range records {
		r := &records[i]
		res, execErr := stmt.ExecContext(ctx,
			r.NaturalKey,
			r.GroupID,
			r.BatchID,
			r.SourceFile,
			r.DataYear,
			r.SaleDate.Format("2006-01-02"),
			r.SalePrice,
			string(r.PropertyType),
			r.Address,
			r.StreetName,
			r.PostalCode,
			r.City,
			r.Department,
			r.SurfaceArea,
			r.Rooms,
			r.LandSurface,
			r.PricePerSqm,
			r.RawData,
		)
		if execErr != nil {
			return 0, fmt.Errorf("failed to insert record %s: %w", r.NaturalKey, mapError(execErr))
		}
		n, raErr := res.RowsAffected()
		if raErr != nil {
			return 0, fmt.Errorf("failed to count inserted rows: %w", mapError(raErr))
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit chunk: %w", mapError(err))
	}
	return inserted, nil
}

// DeleteRecordsByBatch removes every record tagged with the batch and
// reports how many were deleted.
func (s *SQLiteStorage) DeleteRecordsByBatch(ctx context.Context, batchID string) (int64, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateString(batchID, "batchID"); err != nil {
		return 0, err
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM transaction_records WHERE batch_id = ?`, batchID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete batch records: %w", mapError(err))
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted rows: %w", mapError(err))
	}
	return deleted, nil
}

// CountRecordsByBatch reports how many records a batch currently owns.
func (s *SQLiteStorage) CountRecordsByBatch(ctx context.Context, batchID string) (int64, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	var count int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transaction_records WHERE batch_id = ?`, batchID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count batch records: %w", mapError(err))
	}
	return count, nil
}

// CountRecords reports the total record count.
func (s *SQLiteStorage) CountRecords(ctx context.Context) (int64, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transaction_records`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count records: %w", mapError(err))
	}
	return count, nil
}

// GetRecordsByAddress returns the per-lot sale history of one exact
// address, most recent first. propertyType may be empty and since may be
// zero to skip those filters.
func (s *SQLiteStorage) GetRecordsByAddress(ctx context.Context, address, postalCode string, propertyType model.PropertyType, since time.Time, limit int) ([]model.TransactionRecord, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(address, "address"); err != nil {
		return nil, err
	}
	if err := validateString(postalCode, "postalCode"); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT %s FROM transaction_records
		WHERE address = ? AND postal_code = ?`, recordColumns)
	args := []any{address, postalCode}

	if propertyType != "" {
		query += ` AND property_type = ?`
		args = append(args, string(propertyType))
	}
	if !since.IsZero() {
		query += ` AND sale_date >= ?`
		args = append(args, since.Format("2006-01-02"))
	}
	query += ` ORDER BY sale_date DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query records by address: %w", mapError(err))
	}
	defer func() { _ = rows.Close() }()

	return scanRecords(rows)
}

func scanRecords(rows *sql.Rows) ([]model.TransactionRecord, error) {
	var records []model.TransactionRecord
	for rows.Next() {
		var (
			r        model.TransactionRecord
			propType string
		)
		err := rows.Scan(
			&r.ID, &r.NaturalKey, &r.GroupID, &r.BatchID, &r.SourceFile,
			&r.DataYear, &r.SaleDate, &r.SalePrice, &propType, &r.Address,
			&r.StreetName, &r.PostalCode, &r.City, &r.Department,
			&r.SurfaceArea, &r.Rooms, &r.LandSurface, &r.PricePerSqm,
			&r.RawData, &r.ImportedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		r.PropertyType = model.PropertyType(propType)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate records: %w", mapError(err))
	}
	return records, nil
}
