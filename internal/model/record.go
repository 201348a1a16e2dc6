// Package model defines the core domain types for the DVF ingestion and
// price-analytics engine.
package model

import (
	"crypto/md5" //nolint:gosec // grouping key, not a security boundary
	"crypto/sha256"
	"fmt"
	"strings"
	"time"
)

// PropertyType is the subset of DVF "Type local" values the engine retains.
type PropertyType string

// Supported property types. Every other source category (Dépendance,
// Local industriel, ...) is filtered out at normalization time.
const (
	PropertyApartment PropertyType = "Appartement"
	PropertyHouse     PropertyType = "Maison"
)

// ParsePropertyType maps a raw "Type local" value to a supported type.
func ParsePropertyType(raw string) (PropertyType, bool) {
	switch strings.TrimSpace(raw) {
	case string(PropertyApartment):
		return PropertyApartment, true
	case string(PropertyHouse):
		return PropertyHouse, true
	default:
		return "", false
	}
}

// TransactionRecord is one lot within a notarized sale act, as normalized
// from a single raw DVF row.
type TransactionRecord struct {
	SaleDate     time.Time
	ImportedAt   time.Time
	Address      string
	PostalCode   string
	City         string
	Department   string
	StreetName   string
	BatchID      string
	SourceFile   string
	GroupID      string
	NaturalKey   string
	RawData      string
	PropertyType PropertyType
	SalePrice    float64
	ID           int64
	DataYear     int
	SurfaceArea  *float64
	Rooms        *int
	LandSurface  *float64
	PricePerSqm  *float64
}

// GenerateGroupID computes the deterministic 128-bit grouping key for a
// record. Lots sold in the same act carry one raw row each with identical
// date, price, postal code and street; hashing that tuple lets the
// materializer fold them back into one logical transaction. Heuristic, not
// a guarantee: the source format has no native act identifier.
func (r *TransactionRecord) GenerateGroupID() string {
	data := fmt.Sprintf("%s|%.2f|%s|%s",
		r.SaleDate.Format("2006-01-02"),
		r.SalePrice,
		r.PostalCode,
		r.StreetName)
	return fmt.Sprintf("%x", md5.Sum([]byte(data))) //nolint:gosec
}

// GenerateNaturalKey hashes the uniqueness tuple
// (sale_date, sale_price, address, postal_code, surface_area).
// A later row with the same key is an exact duplicate and is dropped.
func (r *TransactionRecord) GenerateNaturalKey() string {
	surface := ""
	if r.SurfaceArea != nil {
		surface = fmt.Sprintf("%.2f", *r.SurfaceArea)
	}
	data := fmt.Sprintf("%s|%.2f|%s|%s|%s",
		r.SaleDate.Format("2006-01-02"),
		r.SalePrice,
		r.Address,
		r.PostalCode,
		surface)
	return fmt.Sprintf("%x", sha256.Sum256([]byte(data)))
}
