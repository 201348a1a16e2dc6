package model

// QualityReport mirrors the validation queries run against imports in
// production: how much data is missing, how the price distribution looks,
// and whether the grouping heuristic produced implausible acts.
type QualityReport struct {
	PricePerSqmPercentiles map[int]float64
	RecordsByPropertyType  map[string]int64
	TotalRecords           int64
	MissingSurface         int64
	MissingRooms           int64
	MissingPricePerSqm     int64
	GroupCount             int64
	MultiLotGroups         int64
	ImplausibleGroups      int64
}
