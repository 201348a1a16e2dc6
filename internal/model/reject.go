package model

// RejectReason classifies why the normalizer dropped a raw row. Rejects are
// expected and tolerated: they are counted per batch, never escalated to a
// batch failure.
type RejectReason string

// Normalizer reject reasons.
const (
	RejectInvalidDate             RejectReason = "invalid_date"
	RejectInvalidPrice            RejectReason = "invalid_price"
	RejectUnsupportedPropertyType RejectReason = "unsupported_property_type"
	RejectMissingLocation         RejectReason = "missing_location"
)

// RejectReasons lists every reason in reporting order.
var RejectReasons = []RejectReason{
	RejectInvalidDate,
	RejectInvalidPrice,
	RejectUnsupportedPropertyType,
	RejectMissingLocation,
}
