package model

import "time"

// Materialization describes one completed rebuild of the grouped
// transaction set. Version increases monotonically; consumers holding an
// older version know their snapshot is stale.
type Materialization struct {
	RefreshedAt time.Time
	Version     int64
	GroupCount  int64
	RecordCount int64
}
