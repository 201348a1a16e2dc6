package main

import (
	"context"
	"fmt"
	"time"

	"github.com/carrefour/dvf-engine/internal/analytics"
	"github.com/carrefour/dvf-engine/internal/config"
	"github.com/carrefour/dvf-engine/internal/service"
	"github.com/carrefour/dvf-engine/internal/storage"
	"github.com/spf13/viper"
)

// initStorage opens the configured database and runs migrations.
func initStorage(ctx context.Context) (service.Storage, error) {
	store, err := storage.NewSQLiteStorage(config.DatabasePath())
	if err != nil {
		return nil, err
	}

	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// analyticsConfig assembles the engine tuning from configuration.
func analyticsConfig() analytics.Config {
	cfg := analytics.DefaultConfig()
	if v := viper.GetInt("analytics.min_sample_size"); v > 0 {
		cfg.MinSampleSize = v
	}
	if v := viper.GetFloat64("analytics.iqr_multiplier"); v > 0 {
		cfg.IQRMultiplier = v
	}
	if v := viper.GetInt("analytics.months_back"); v > 0 {
		cfg.MonthsBack = v
	}
	if v := viper.GetFloat64("analytics.surface_band_pct"); v > 0 {
		cfg.SurfaceBandPct = v
	}
	if v := viper.GetDuration("analytics.query_timeout"); v > 0 {
		cfg.QueryTimeout = v
	}
	if v := viper.GetDuration("analytics.cache_ttl"); v > 0 {
		cfg.CacheTTL = v
	}
	return cfg
}

// formatMoney renders a euro amount with thousands separators.
func formatMoney(v float64) string {
	whole := int64(v)
	s := fmt.Sprintf("%d", whole)
	var out []byte
	for i, c := range []byte(s) {
		if i > 0 && (len(s)-i)%3 == 0 && c != '-' {
			out = append(out, ' ')
		}
		out = append(out, c)
	}
	return string(out) + " €"
}

func formatDate(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format("2006-01-02 15:04")
}
