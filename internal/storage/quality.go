package storage

import (
	"context"
	"fmt"

	"github.com/carrefour/dvf-engine/internal/model"
)

// qualityPercentiles is the percentile set reported for price per sqm.
var qualityPercentiles = []int{10, 25, 50, 75, 90}

// implausibleUnitCount flags grouped acts whose lot count is far beyond
// any plausible multi-lot sale; those are grouping-heuristic collisions.
const implausibleUnitCount = 100

// DataQualityReport computes the operational data-quality metrics.
func (s *SQLiteStorage) DataQualityReport(ctx context.Context) (*model.QualityReport, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	report := &model.QualityReport{
		PricePerSqmPercentiles: make(map[int]float64),
		RecordsByPropertyType:  make(map[string]int64),
	}

	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			SUM(CASE WHEN surface_area IS NULL THEN 1 ELSE 0 END),
			SUM(CASE WHEN rooms IS NULL THEN 1 ELSE 0 END),
			SUM(CASE WHEN price_per_sqm IS NULL THEN 1 ELSE 0 END)
		FROM transaction_records
	`).Scan(&report.TotalRecords, &report.MissingSurface, &report.MissingRooms, &report.MissingPricePerSqm)
	if err != nil {
		return nil, fmt.Errorf("failed to compute missing-field counts: %w", mapError(err))
	}

	if report.TotalRecords == 0 {
		return report, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT property_type, COUNT(*) FROM transaction_records GROUP BY property_type`)
	if err != nil {
		return nil, fmt.Errorf("failed to count by property type: %w", mapError(err))
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var (
			propType string
			count    int64
		)
		if err := rows.Scan(&propType, &count); err != nil {
			return nil, fmt.Errorf("failed to scan property type count: %w", err)
		}
		report.RecordsByPropertyType[propType] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate property type counts: %w", mapError(err))
	}

	var priced int64
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transaction_records WHERE price_per_sqm IS NOT NULL`).Scan(&priced); err != nil {
		return nil, fmt.Errorf("failed to count priced records: %w", mapError(err))
	}
	if priced > 0 {
		for _, p := range qualityPercentiles {
			offset := (priced - 1) * int64(p) / 100
			var value float64
			err := s.db.QueryRowContext(ctx, `
				SELECT price_per_sqm FROM transaction_records
				WHERE price_per_sqm IS NOT NULL
				ORDER BY price_per_sqm LIMIT 1 OFFSET ?
			`, offset).Scan(&value)
			if err != nil {
				return nil, fmt.Errorf("failed to compute p%d: %w", p, mapError(err))
			}
			report.PricePerSqmPercentiles[p] = value
		}
	}

	err = s.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT
			COUNT(*),
			SUM(CASE WHEN cnt > 1 THEN 1 ELSE 0 END),
			SUM(CASE WHEN cnt >= %d THEN 1 ELSE 0 END)
		FROM (
			SELECT COUNT(*) AS cnt
			FROM transaction_records
			GROUP BY transaction_group_id
		)
	`, implausibleUnitCount)).Scan(&report.GroupCount, &report.MultiLotGroups, &report.ImplausibleGroups)
	if err != nil {
		return nil, fmt.Errorf("failed to compute group stats: %w", mapError(err))
	}

	return report, nil
}
