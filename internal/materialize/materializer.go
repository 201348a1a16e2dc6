// Package materialize maintains the derived grouped-transaction set: a
// full rebuild-and-swap after every completed or rolled-back batch.
package materialize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/carrefour/dvf-engine/internal/common"
	"github.com/carrefour/dvf-engine/internal/model"
	"github.com/carrefour/dvf-engine/internal/service"
)

// Materializer coordinates grouped-transaction rebuilds. Refreshes are
// single-flight: a request arriving while one is in flight joins it
// instead of starting a second rebuild. The latest completed snapshot is
// held in a swappable handle so readers never observe a half-built state.
type Materializer struct {
	store      service.GroupedStore
	current    atomic.Pointer[model.Materialization]
	group      singleflight.Group
	refreshing atomic.Bool
}

// NewMaterializer creates a materializer over the grouped store.
func NewMaterializer(store service.GroupedStore) *Materializer {
	return &Materializer{store: store}
}

// Load seeds the snapshot handle from the store. Called once at startup;
// a store that has never materialized leaves the handle empty.
func (m *Materializer) Load(ctx context.Context) error {
	info, err := m.store.LatestMaterialization(ctx)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to load materialization state: %w", err)
	}
	m.current.Store(info)
	return nil
}

// Refresh rebuilds the grouped set and swaps the snapshot handle. The
// previous snapshot stays queryable for concurrent readers until the
// store-level swap commits.
func (m *Materializer) Refresh(ctx context.Context) (*model.Materialization, error) {
	result, err, shared := m.group.Do("refresh", func() (any, error) {
		m.refreshing.Store(true)
		defer m.refreshing.Store(false)

		info, rebuildErr := m.store.RebuildGroupedTransactions(ctx)
		if rebuildErr != nil {
			return nil, rebuildErr
		}
		m.current.Store(info)

		slog.Info("Materialized grouped transactions",
			"version", info.Version,
			"groups", info.GroupCount,
			"records", info.RecordCount)
		return info, nil
	})
	if err != nil {
		return nil, fmt.Errorf("materialization refresh failed: %w", err)
	}
	if shared {
		slog.Debug("Joined in-flight materialization refresh")
	}
	return result.(*model.Materialization), nil
}

// Snapshot returns the latest completed materialization (nil if none has
// ever run) and whether a refresh is currently in flight. Consumers use
// the flag to expose a "refreshing" state during the staleness window.
func (m *Materializer) Snapshot() (*model.Materialization, bool) {
	return m.current.Load(), m.refreshing.Load()
}
