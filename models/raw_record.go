package models

import "strings"

// FieldKind tags the state of a scraped field
type FieldKind int

const (
	FieldAbsent FieldKind = iota
	FieldPresent
	FieldMalformed
)

// String returns the textual form of the kind
func (k FieldKind) String() string {
	switch k {
	case FieldPresent:
		return "present"
	case FieldMalformed:
		return "malformed"
	default:
		return "absent"
	}
}

// Field is a single value read from the listing page.
// Value is only meaningful when Kind is FieldPresent; Reason only when FieldMalformed.
type Field struct {
	Kind   FieldKind `json:"kind"`
	Value  string    `json:"value,omitempty"`
	Reason string    `json:"reason,omitempty"`
}

// Present wraps a value read from the page
func Present(value string) Field {
	return Field{Kind: FieldPresent, Value: value}
}

// Absent marks a field the page did not provide
func Absent() Field {
	return Field{Kind: FieldAbsent}
}

// Malformed marks a field that was found but could not be read
func Malformed(reason string) Field {
	return Field{Kind: FieldMalformed, Reason: reason}
}

// FieldFromText returns Present for non-blank text and Absent otherwise
func FieldFromText(text string) Field {
	if strings.TrimSpace(text) == "" {
		return Absent()
	}
	return Present(text)
}

// IsPresent reports whether the field carries a value
func (f Field) IsPresent() bool {
	return f.Kind == FieldPresent
}

// RawRecord is one outlet box as read from a results page, before normalization
type RawRecord struct {
	Name           Field    `json:"name"`
	Address        Field    `json:"address"`
	OperatingHours Field    `json:"operating_hours"`
	WazeLink       Field    `json:"waze_link"`
	Telephone      Field    `json:"telephone"`
	Attributes     []string `json:"attributes,omitempty"`

	// Page is the 1-based result page the record was read from
	Page int `json:"page"`
}
