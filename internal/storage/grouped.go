package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/carrefour/dvf-engine/internal/model"
)

const groupedColumns = `transaction_group_id, representative_id, sale_date, sale_price,
	property_type, address, postal_code, city, department, unit_count,
	total_surface_area, total_land_surface, total_rooms,
	grouped_price_per_sqm, lots_detail`

// RebuildGroupedTransactions recomputes the grouped transaction set from
// scratch. The rebuild lands in a shadow table and replaces the live one
// inside a single transaction, so concurrent readers keep seeing the
// previous snapshot until the swap commits.
func (s *SQLiteStorage) RebuildGroupedTransactions(ctx context.Context) (*model.Materialization, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin rebuild: %w", mapError(err))
	}
	defer func() { _ = tx.Rollback() }()

	queries := []string{
		`DROP TABLE IF EXISTS grouped_transactions_shadow`,
		`CREATE TABLE grouped_transactions_shadow (
			transaction_group_id TEXT PRIMARY KEY,
			representative_id INTEGER NOT NULL,
			sale_date DATE NOT NULL,
			sale_price REAL NOT NULL,
			property_type TEXT NOT NULL,
			address TEXT NOT NULL,
			postal_code TEXT NOT NULL,
			city TEXT,
			department TEXT,
			unit_count INTEGER NOT NULL,
			total_surface_area REAL,
			total_land_surface REAL,
			total_rooms INTEGER NOT NULL,
			grouped_price_per_sqm REAL,
			lots_detail TEXT
		)`,
		// One row per sale act: identical sale_price across constituent
		// lots, surfaces and rooms summed, price per sqm recomputed over
		// the aggregated surface.
		`INSERT INTO grouped_transactions_shadow
		SELECT
			g.gid,
			g.rep_id,
			r.sale_date,
			r.sale_price,
			r.property_type,
			r.address,
			r.postal_code,
			r.city,
			r.department,
			g.unit_count,
			g.total_surface,
			g.total_land,
			g.total_rooms,
			CASE WHEN g.total_surface > 0 THEN r.sale_price / g.total_surface END,
			(
				SELECT json_group_array(json_object(
					'id', l.id,
					'surface_area', l.surface_area,
					'rooms', l.rooms,
					'price_per_sqm', l.price_per_sqm))
				FROM (
					SELECT id, surface_area, rooms, price_per_sqm
					FROM transaction_records
					WHERE transaction_group_id = g.gid
					ORDER BY id
				) l
			)
		FROM (
			SELECT
				transaction_group_id AS gid,
				MIN(id) AS rep_id,
				COUNT(*) AS unit_count,
				SUM(surface_area) AS total_surface,
				SUM(land_surface) AS total_land,
				SUM(COALESCE(rooms, 0)) AS total_rooms
			FROM transaction_records
			GROUP BY transaction_group_id
		) g
		JOIN transaction_records r ON r.id = g.rep_id`,
		`DROP TABLE grouped_transactions`,
		`ALTER TABLE grouped_transactions_shadow RENAME TO grouped_transactions`,
		`CREATE INDEX idx_grouped_postal_date ON grouped_transactions(postal_code, sale_date)`,
		`CREATE INDEX idx_grouped_address ON grouped_transactions(address, postal_code)`,
	}

	for _, query := range queries {
		if _, err := tx.ExecContext(ctx, query); err != nil {
			return nil, fmt.Errorf("rebuild step failed: %w", mapError(err))
		}
	}

	var groupCount, recordCount int64
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM grouped_transactions`).Scan(&groupCount); err != nil {
		return nil, fmt.Errorf("failed to count groups: %w", mapError(err))
	}
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM transaction_records`).Scan(&recordCount); err != nil {
		return nil, fmt.Errorf("failed to count records: %w", mapError(err))
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO materializations (group_count, record_count) VALUES (?, ?)`,
		groupCount, recordCount)
	if err != nil {
		return nil, fmt.Errorf("failed to record materialization: %w", mapError(err))
	}
	version, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get materialization version: %w", mapError(err))
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit rebuild: %w", mapError(err))
	}

	return &model.Materialization{
		Version:     version,
		GroupCount:  groupCount,
		RecordCount: recordCount,
		RefreshedAt: time.Now().UTC(),
	}, nil
}

// LatestMaterialization returns the most recent completed rebuild, or
// ErrNotFound when the grouped set has never been materialized.
func (s *SQLiteStorage) LatestMaterialization(ctx context.Context) (*model.Materialization, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	var info model.Materialization
	err := s.db.QueryRowContext(ctx, `
		SELECT version, group_count, record_count, refreshed_at
		FROM materializations ORDER BY version DESC LIMIT 1
	`).Scan(&info.Version, &info.GroupCount, &info.RecordCount, &info.RefreshedAt)
	if err != nil {
		return nil, mapError(err)
	}
	return &info, nil
}

// GetGroupedByAddress returns grouped sale acts at one exact address,
// most recent first.
func (s *SQLiteStorage) GetGroupedByAddress(ctx context.Context, address, postalCode string, propertyType model.PropertyType, since time.Time, limit int) ([]model.GroupedTransaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(address, "address"); err != nil {
		return nil, err
	}
	if err := validateString(postalCode, "postalCode"); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT %s FROM grouped_transactions
		WHERE address = ? AND postal_code = ?`, groupedColumns)
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

	return s.queryGrouped(ctx, query, args...)
}

// GetGroupedByArea returns grouped sale acts for an area comparison.
// Postal code is the primary filter; when department is non-empty the
// match widens to the whole department. A surface band of (0, 0) means no
// band, a zero since means no window, limit 0 means no cap.
func (s *SQLiteStorage) GetGroupedByArea(ctx context.Context, postalCode, department string, propertyType model.PropertyType, minSurface, maxSurface float64, since time.Time, limit int) ([]model.GroupedTransaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(postalCode, "postalCode"); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT %s FROM grouped_transactions WHERE `, groupedColumns)
	var args []any

	if department != "" {
		query += `(postal_code = ? OR department = ?)`
		args = append(args, postalCode, department)
	} else {
		query += `postal_code = ?`
		args = append(args, postalCode)
	}

	if propertyType != "" {
		query += ` AND property_type = ?`
		args = append(args, string(propertyType))
	}
	if maxSurface > 0 {
		query += ` AND total_surface_area BETWEEN ? AND ?`
		args = append(args, minSurface, maxSurface)
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

	return s.queryGrouped(ctx, query, args...)
}

func (s *SQLiteStorage) queryGrouped(ctx context.Context, query string, args ...any) ([]model.GroupedTransaction, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query grouped transactions: %w", mapError(err))
	}
	defer func() { _ = rows.Close() }()

	var grouped []model.GroupedTransaction
	for rows.Next() {
		g, scanErr := scanGrouped(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		grouped = append(grouped, *g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate grouped transactions: %w", mapError(err))
	}
	return grouped, nil
}

func scanGrouped(rows *sql.Rows) (*model.GroupedTransaction, error) {
	var (
		g          model.GroupedTransaction
		propType   string
		lotsDetail sql.NullString
	)
	err := rows.Scan(
		&g.GroupID, &g.RepresentativeID, &g.SaleDate, &g.SalePrice,
		&propType, &g.Address, &g.PostalCode, &g.City, &g.Department,
		&g.UnitCount, &g.TotalSurfaceArea, &g.TotalLandSurface,
		&g.TotalRooms, &g.GroupedPricePerSqm, &lotsDetail,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan grouped transaction: %w", err)
	}
	g.PropertyType = model.PropertyType(propType)
	if lotsDetail.Valid && lotsDetail.String != "" {
		if err := json.Unmarshal([]byte(lotsDetail.String), &g.Lots); err != nil {
			return nil, fmt.Errorf("failed to decode lots detail: %w", err)
		}
	}
	return &g, nil
}
