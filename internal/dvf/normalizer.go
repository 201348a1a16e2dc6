package dvf

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/carrefour/dvf-engine/internal/model"
)

var (
	dateRe       = regexp.MustCompile(`^\d{2}/\d{2}/\d{4}$`)
	decimalRe    = regexp.MustCompile(`^\d+(?:,\d+)?$`)
	postalRe     = regexp.MustCompile(`^\d{5}$`)
	departmentRe = regexp.MustCompile(`^\d{2,3}$`)
)

// modeledColumns are mapped onto TransactionRecord fields; everything else
// in the row is retained as opaque raw payload for audit.
var modeledColumns = map[string]bool{
	ColSaleDate:      true,
	ColSalePrice:     true,
	ColStreetNumber:  true,
	ColQualifier:     true,
	ColStreetType:    true,
	ColStreetName:    true,
	ColPostalCode:    true,
	ColCity:          true,
	ColDepartment:    true,
	ColPropertyType:  true,
	ColSurfaceCarrez: true,
	ColSurfaceBuilt:  true,
	ColRooms:         true,
	ColLandSurface:   true,
}

// Normalizer turns one raw DVF row into a validated TransactionRecord, or
// rejects it with a reason. It is pure: same row in, same record out.
type Normalizer struct {
	schema   *Schema
	dataYear int
}

// NewNormalizer creates a normalizer bound to one file's schema and vintage.
func NewNormalizer(schema *Schema, dataYear int) *Normalizer {
	return &Normalizer{schema: schema, dataYear: dataYear}
}

// Normalize applies the validation rules in order and returns either a
// record or the reason the row was dropped. An empty reason means the
// record is valid.
func (n *Normalizer) Normalize(fields []string) (*model.TransactionRecord, model.RejectReason) {
	// Date first: DD/MM/YYYY or the row is unusable.
	rawDate := n.schema.Field(fields, ColSaleDate)
	if !dateRe.MatchString(rawDate) {
		return nil, model.RejectInvalidDate
	}
	saleDate, err := time.Parse("02/01/2006", rawDate)
	if err != nil {
		return nil, model.RejectInvalidDate
	}

	// Price: comma is the decimal separator, never a thousands separator.
	// Treating it as thousands once inflated every price 100x in production.
	salePrice, ok := parseDecimal(n.schema.Field(fields, ColSalePrice))
	if !ok || salePrice <= 0 {
		return nil, model.RejectInvalidPrice
	}

	propertyType, ok := model.ParsePropertyType(n.schema.Field(fields, ColPropertyType))
	if !ok {
		// Filtered by design, not an error: the engine only models
		// apartments and houses.
		return nil, model.RejectUnsupportedPropertyType
	}

	postalCode := padLeft(n.schema.Field(fields, ColPostalCode), 5)
	if !postalRe.MatchString(postalCode) {
		return nil, model.RejectMissingLocation
	}

	department := padLeft(n.schema.Field(fields, ColDepartment), 2)
	if !departmentRe.MatchString(department) {
		// The department is recoverable from the postal code; no reason
		// to drop the row over it.
		department = postalCode[:2]
	}

	// Carrez surface takes priority over the declared built surface; the
	// certified measurement is the one a court would accept.
	surface := parseOptionalDecimal(n.schema.Field(fields, ColSurfaceCarrez))
	if surface == nil {
		surface = parseOptionalDecimal(n.schema.Field(fields, ColSurfaceBuilt))
	}

	streetName := n.schema.Field(fields, ColStreetName)
	address := joinAddress(
		n.schema.Field(fields, ColStreetNumber),
		n.schema.Field(fields, ColQualifier),
		n.schema.Field(fields, ColStreetType),
		streetName,
	)

	rec := &model.TransactionRecord{
		SaleDate:     saleDate,
		SalePrice:    salePrice,
		PropertyType: propertyType,
		Address:      address,
		StreetName:   streetName,
		PostalCode:   postalCode,
		City:         n.schema.Field(fields, ColCity),
		Department:   department,
		DataYear:     n.dataYear,
		SurfaceArea:  surface,
		Rooms:        parseOptionalInt(n.schema.Field(fields, ColRooms)),
		LandSurface:  parseOptionalDecimal(n.schema.Field(fields, ColLandSurface)),
		RawData:      n.rawPayload(fields),
	}

	// Never derived with a zero or missing denominator.
	if rec.SurfaceArea != nil && *rec.SurfaceArea > 0 {
		pps := rec.SalePrice / *rec.SurfaceArea
		rec.PricePerSqm = &pps
	}

	rec.GroupID = rec.GenerateGroupID()
	rec.NaturalKey = rec.GenerateNaturalKey()

	return rec, ""
}

// parseDecimal parses a French-locale decimal: spaces stripped, comma
// converted to a period. Returns false on anything else.
func parseDecimal(raw string) (float64, bool) {
	raw = strings.ReplaceAll(raw, " ", "")
	if !decimalRe.MatchString(raw) {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", "."), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func parseOptionalDecimal(raw string) *float64 {
	if raw == "" {
		return nil
	}
	v, ok := parseDecimal(raw)
	if !ok {
		return nil
	}
	return &v
}

func parseOptionalInt(raw string) *int {
	if raw == "" {
		return nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return nil
	}
	return &v
}

func padLeft(s string, width int) string {
	for len(s) > 0 && len(s) < width {
		s = "0" + s
	}
	return s
}

func joinAddress(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " ")
}

func (n *Normalizer) rawPayload(fields []string) string {
	extra := make(map[string]string)
	for _, col := range n.schema.Columns() {
		if modeledColumns[col] {
			continue
		}
		if v := n.schema.Field(fields, col); v != "" {
			extra[col] = v
		}
	}
	if len(extra) == 0 {
		return ""
	}
	data, err := json.Marshal(extra)
	if err != nil {
		return ""
	}
	return string(data)
}
