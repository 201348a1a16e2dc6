// Package dvf reads and normalizes raw DVF source files: the pipe-delimited,
// ~40 column export of declared property transactions published by the
// French government.
package dvf

import (
	"fmt"
	"strings"
)

// Source column names, as they appear in the DVF header row.
const (
	ColSaleDate      = "Date mutation"
	ColSalePrice     = "Valeur fonciere"
	ColStreetNumber  = "No voie"
	ColQualifier     = "B/T/Q"
	ColStreetType    = "Type de voie"
	ColStreetName    = "Voie"
	ColPostalCode    = "Code postal"
	ColCity          = "Commune"
	ColDepartment    = "Code departement"
	ColPropertyType  = "Type local"
	ColSurfaceCarrez = "Surface Carrez du 1er lot"
	ColSurfaceBuilt  = "Surface reelle bati"
	ColRooms         = "Nombre pieces principales"
	ColLandSurface   = "Surface terrain"
)

// requiredColumns must all be present in the header or the file is not a
// DVF export we can ingest.
var requiredColumns = []string{
	ColSaleDate,
	ColSalePrice,
	ColStreetName,
	ColPostalCode,
	ColCity,
	ColDepartment,
	ColPropertyType,
	ColSurfaceBuilt,
}

// Schema resolves column names to field positions for one source file.
// The government schema has been stable for years, but resolving by header
// name instead of position survives column reordering between vintages.
type Schema struct {
	index map[string]int
	names []string
}

// ParseHeader builds a Schema from the header row of a source file.
func ParseHeader(header string) (*Schema, error) {
	names := strings.Split(strings.TrimRight(header, "\r\n"), "|")
	if len(names) < 2 {
		return nil, fmt.Errorf("header is not pipe-delimited: %q", truncate(header, 80))
	}

	s := &Schema{
		index: make(map[string]int, len(names)),
		names: names,
	}
	for i, name := range names {
		s.index[strings.TrimSpace(name)] = i
	}

	for _, col := range requiredColumns {
		if _, ok := s.index[col]; !ok {
			return nil, fmt.Errorf("missing required column %q", col)
		}
	}

	return s, nil
}

// Columns returns the header names in file order.
func (s *Schema) Columns() []string {
	return s.names
}

// Field extracts a named field from a raw row, empty string if the column
// is absent or the row is short.
func (s *Schema) Field(fields []string, column string) string {
	i, ok := s.index[column]
	if !ok || i >= len(fields) {
		return ""
	}
	return strings.TrimSpace(fields[i])
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
