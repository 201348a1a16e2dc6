package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestGenerateGroupID(t *testing.T) {
	base := TransactionRecord{
		SaleDate:   date(2024, 3, 1),
		SalePrice:  500000,
		PostalCode: "75006",
		StreetName: "RUE X",
	}

	tests := []struct {
		mutate   func(*TransactionRecord)
		name     string
		wantSame bool
	}{
		{
			name:     "identical tuples share a group",
			mutate:   func(_ *TransactionRecord) {},
			wantSame: true,
		},
		{
			name: "surface differences stay in the same group",
			mutate: func(r *TransactionRecord) {
				s := 40.0
				r.SurfaceArea = &s
			},
			wantSame: true,
		},
		{
			name: "different address on the same street stays grouped",
			mutate: func(r *TransactionRecord) {
				r.Address = "12 RUE X"
			},
			wantSame: true,
		},
		{
			name:     "different date splits the group",
			mutate:   func(r *TransactionRecord) { r.SaleDate = date(2024, 3, 2) },
			wantSame: false,
		},
		{
			name:     "different price splits the group",
			mutate:   func(r *TransactionRecord) { r.SalePrice = 500001 },
			wantSame: false,
		},
		{
			name:     "different postal code splits the group",
			mutate:   func(r *TransactionRecord) { r.PostalCode = "75007" },
			wantSame: false,
		},
		{
			name:     "different street splits the group",
			mutate:   func(r *TransactionRecord) { r.StreetName = "RUE Y" },
			wantSame: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			other := base
			tt.mutate(&other)
			if tt.wantSame {
				assert.Equal(t, base.GenerateGroupID(), other.GenerateGroupID())
			} else {
				assert.NotEqual(t, base.GenerateGroupID(), other.GenerateGroupID())
			}
		})
	}
}

func TestGenerateGroupID_Stable(t *testing.T) {
	rec := TransactionRecord{
		SaleDate:   date(2024, 3, 1),
		SalePrice:  500000,
		PostalCode: "75006",
		StreetName: "RUE X",
	}
	// 128-bit md5 hex digest, stable across runs.
	assert.Len(t, rec.GenerateGroupID(), 32)
	assert.Equal(t, rec.GenerateGroupID(), rec.GenerateGroupID())
}

func TestGenerateNaturalKey(t *testing.T) {
	surface := 50.0
	base := TransactionRecord{
		SaleDate:    date(2024, 3, 1),
		SalePrice:   500000,
		Address:     "56 RUE X",
		PostalCode:  "75006",
		SurfaceArea: &surface,
	}

	same := base
	assert.Equal(t, base.GenerateNaturalKey(), same.GenerateNaturalKey())

	// Surface is part of the uniqueness tuple: two lots of the same act
	// with different surfaces are not duplicates of each other.
	otherSurface := 10.0
	other := base
	other.SurfaceArea = &otherSurface
	assert.NotEqual(t, base.GenerateNaturalKey(), other.GenerateNaturalKey())

	noSurface := base
	noSurface.SurfaceArea = nil
	assert.NotEqual(t, base.GenerateNaturalKey(), noSurface.GenerateNaturalKey())
}
