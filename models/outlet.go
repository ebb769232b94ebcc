package models

import (
	"time"

	"github.com/google/uuid"
)

// Field length limits enforced on outlet records
const (
	MaxNameLength       = 200
	MaxAddressLength    = 500
	MaxTelephoneLength  = 50
	MaxAttributeLength  = 500
	MaxSearchTermLength = 100
)

// Outlet represents a single scraped outlet location
type Outlet struct {
	ID         uuid.UUID `json:"id" db:"id"`
	NaturalKey string    `json:"natural_key" db:"natural_key"`

	// Descriptive fields
	Name           string   `json:"name" db:"name"`
	Address        string   `json:"address" db:"address"`
	OperatingHours *string  `json:"operating_hours,omitempty" db:"operating_hours"`
	WazeLink       *string  `json:"waze_link,omitempty" db:"waze_link"`
	Latitude       *float64 `json:"latitude,omitempty" db:"latitude"`
	Longitude      *float64 `json:"longitude,omitempty" db:"longitude"`
	Telephone      *string  `json:"telephone,omitempty" db:"telephone"`
	Attribute      *string  `json:"attribute,omitempty" db:"attribute"`
	SearchTerm     string   `json:"search_term" db:"search_term"`

	// Embedding is nil until the outlet has been indexed
	Embedding           []float32 `json:"-" db:"embedding"`
	EmbeddingSourceHash *string   `json:"embedding_source_hash,omitempty" db:"embedding_source_hash"`

	ScrapedAt time.Time `json:"scraped_at" db:"scraped_at"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// TableName returns the table name for the Outlet model
func (Outlet) TableName() string {
	return "outlets"
}

// IsIndexed reports whether the outlet carries an embedding
func (o *Outlet) IsIndexed() bool {
	return len(o.Embedding) > 0
}

// HasCoordinates reports whether both latitude and longitude are known
func (o *Outlet) HasCoordinates() bool {
	return o.Latitude != nil && o.Longitude != nil
}

// SameDescriptive reports whether two outlets carry identical descriptive fields.
// Identity, embedding and timestamps are ignored.
func (o *Outlet) SameDescriptive(other *Outlet) bool {
	return o.Name == other.Name &&
		o.Address == other.Address &&
		o.SearchTerm == other.SearchTerm &&
		equalStringPtr(o.OperatingHours, other.OperatingHours) &&
		equalStringPtr(o.WazeLink, other.WazeLink) &&
		equalStringPtr(o.Telephone, other.Telephone) &&
		equalStringPtr(o.Attribute, other.Attribute) &&
		equalFloatPtr(o.Latitude, other.Latitude) &&
		equalFloatPtr(o.Longitude, other.Longitude)
}

// ReplaceDescriptive copies every descriptive field from src.
// The natural key, identity, embedding and timestamps are left untouched.
func (o *Outlet) ReplaceDescriptive(src *Outlet) {
	o.Name = src.Name
	o.Address = src.Address
	o.OperatingHours = src.OperatingHours
	o.WazeLink = src.WazeLink
	o.Latitude = src.Latitude
	o.Longitude = src.Longitude
	o.Telephone = src.Telephone
	o.Attribute = src.Attribute
	o.SearchTerm = src.SearchTerm
}

// SetEmbedding stores a freshly computed vector together with the hash of the text it came from
func (o *Outlet) SetEmbedding(vector []float32, sourceHash string) {
	o.Embedding = vector
	o.EmbeddingSourceHash = &sourceHash
}

// OutletFilter narrows paginated outlet reads
type OutletFilter struct {
	// SearchTerm matches stored search terms case-insensitively as a substring. Empty matches all.
	SearchTerm string
}

// OutletList is a page of outlets
type OutletList struct {
	Outlets []*Outlet `json:"outlets"`
	Total   int       `json:"total"`
	Page    int       `json:"page"`
	PerPage int       `json:"per_page"`
	Pages   int       `json:"pages"`
}

// NewOutletList builds a page envelope and derives the page count
func NewOutletList(outlets []*Outlet, total, page, perPage int) *OutletList {
	if outlets == nil {
		outlets = []*Outlet{}
	}
	pages := 0
	if perPage > 0 {
		pages = (total + perPage - 1) / perPage
	}
	return &OutletList{
		Outlets: outlets,
		Total:   total,
		Page:    page,
		PerPage: perPage,
		Pages:   pages,
	}
}

// OutletStatistics summarises the stored outlets
type OutletStatistics struct {
	TotalOutlets   int            `json:"total_outlets"`
	IndexedOutlets int            `json:"indexed_outlets"`
	BySearchTerm   map[string]int `json:"by_search_term"`
	LastScrapedAt  *time.Time     `json:"last_scraped_at,omitempty"`
}

func equalStringPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func equalFloatPtr(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
