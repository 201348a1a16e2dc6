package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application
// expects. If the database cannot be migrated to this version, it's a
// fatal error.
const ExpectedSchemaVersion = 3

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Transaction records and import batches",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS transaction_records (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					natural_key TEXT UNIQUE NOT NULL,
					transaction_group_id TEXT NOT NULL,
					batch_id TEXT NOT NULL,
					source_file TEXT NOT NULL,
					data_year INTEGER NOT NULL,
					sale_date DATE NOT NULL,
					sale_price REAL NOT NULL,
					property_type TEXT NOT NULL,
					address TEXT NOT NULL,
					street_name TEXT NOT NULL,
					postal_code TEXT NOT NULL,
					city TEXT,
					department TEXT,
					surface_area REAL,
					rooms INTEGER,
					land_surface REAL,
					price_per_sqm REAL,
					raw_data TEXT,
					imported_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_records_batch ON transaction_records(batch_id)`,
				`CREATE INDEX idx_records_group ON transaction_records(transaction_group_id)`,
				`CREATE INDEX idx_records_postal_date ON transaction_records(postal_code, sale_date)`,

				`CREATE TABLE IF NOT EXISTS import_batches (
					batch_id TEXT PRIMARY KEY,
					source_file TEXT NOT NULL,
					source_file_hash TEXT NOT NULL,
					data_year INTEGER NOT NULL,
					status TEXT NOT NULL,
					total_records INTEGER DEFAULT 0,
					accepted_records INTEGER DEFAULT 0,
					duplicate_records INTEGER DEFAULT 0,
					rejected_records INTEGER DEFAULT 0,
					reject_breakdown TEXT,
					error_message TEXT,
					started_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					completed_at DATETIME
				)`,
				`CREATE INDEX idx_batches_hash ON import_batches(source_file_hash, status)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     2,
		Description: "Materialized grouped transactions",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				// Rebuilt wholesale by the materializer; the _shadow
				// variant is where a rebuild lands before the atomic swap.
				`CREATE TABLE IF NOT EXISTS grouped_transactions (
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
				`CREATE INDEX idx_grouped_postal_date ON grouped_transactions(postal_code, sale_date)`,
				`CREATE INDEX idx_grouped_address ON grouped_transactions(address, postal_code)`,

				`CREATE TABLE IF NOT EXISTS materializations (
					version INTEGER PRIMARY KEY AUTOINCREMENT,
					group_count INTEGER NOT NULL,
					record_count INTEGER NOT NULL,
					refreshed_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     3,
		Description: "Index exact-address lookups on records",
		Up: func(tx *sql.Tx) error {
			// Simple queries hit transaction_records directly by address.
			_, err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_records_address ON transaction_records(address, postal_code)`)
			return err
		},
	},
}

// Migrate applies all pending database migrations.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	var currentVersion int
	err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}

		if upErr := migration.Up(tx); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
		}

		if _, execErr := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, commitErr)
		}

		slog.Info("Applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	var finalVersion int
	err = s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&finalVersion)
	if err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}

	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}

	return nil
}
