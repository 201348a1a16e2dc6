package model

import "time"

// LotDetail is the per-lot drill-down retained on a grouped transaction so
// consumers can sanity-check how a multi-lot sale was assembled.
type LotDetail struct {
	ID          int64    `json:"id"`
	SurfaceArea *float64 `json:"surface_area,omitempty"`
	Rooms       *int     `json:"rooms,omitempty"`
	PricePerSqm *float64 `json:"price_per_sqm,omitempty"`
}

// GroupedTransaction is one real-world sale act, derived by folding every
// TransactionRecord sharing a GroupID. Recomputed wholesale by the
// materializer; never maintained incrementally.
type GroupedTransaction struct {
	SaleDate           time.Time
	GroupID            string
	Address            string
	PostalCode         string
	City               string
	Department         string
	PropertyType       PropertyType
	Lots               []LotDetail
	SalePrice          float64
	RepresentativeID   int64
	UnitCount          int
	TotalRooms         int
	TotalSurfaceArea   *float64
	TotalLandSurface   *float64
	GroupedPricePerSqm *float64
}

// IsMultiLot reports whether more than one lot was sold in the act.
func (g *GroupedTransaction) IsMultiLot() bool {
	return g.UnitCount > 1
}
