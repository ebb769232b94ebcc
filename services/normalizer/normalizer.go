// Package normalizer turns raw listing records into canonical outlets.
package normalizer

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/FLAMiNGPHYtON1/outlet-locator/models"
	"github.com/FLAMiNGPHYtON1/outlet-locator/services"
)

// coordinatePattern matches the ll=LAT,LON token of a Waze link
var coordinatePattern = regexp.MustCompile(`[?&]ll=(-?\d+(?:\.\d+)?)(?:,|%2[cC])(-?\d+(?:\.\d+)?)`)

// Normalizer validates raw records and derives keys and coordinates
type Normalizer struct {
	logger *zap.Logger
}

// NewNormalizer creates a normalizer
func NewNormalizer(logger *zap.Logger) *Normalizer {
	return &Normalizer{logger: logger}
}

// Normalize converts one raw record. Missing or over-long name, address or
// search term fail with MalformedRecord; problems with optional fields only
// make those fields absent.
func (n *Normalizer) Normalize(raw models.RawRecord, searchTerm string, scrapedAt time.Time) (*models.Outlet, error) {
	name, err := required("name", raw.Name, models.MaxNameLength)
	if err != nil {
		return nil, err
	}
	address, err := required("address", raw.Address, models.MaxAddressLength)
	if err != nil {
		return nil, err
	}
	term := Collapse(searchTerm)
	if utf8.RuneCountInString(term) > models.MaxSearchTermLength {
		return nil, malformed("search_term", fmt.Sprintf("longer than %d characters", models.MaxSearchTermLength))
	}

	scrapedAt = scrapedAt.UTC()
	outlet := &models.Outlet{
		NaturalKey:     NaturalKey(name, address),
		Name:           name,
		Address:        address,
		OperatingHours: optional(raw.OperatingHours, 0),
		Telephone:      optional(raw.Telephone, models.MaxTelephoneLength),
		Attribute:      joinAttributes(raw.Attributes),
		SearchTerm:     term,
		ScrapedAt:      scrapedAt,
		CreatedAt:      scrapedAt,
		UpdatedAt:      scrapedAt,
	}

	if link := wazeLink(raw.WazeLink); link != nil {
		outlet.WazeLink = link
		outlet.Latitude, outlet.Longitude = Coordinates(*link)
	}

	return outlet, nil
}

// NormalizeBatch normalizes every record, dropping malformed ones and
// repeated natural keys. The returned outcomes list only dropped records.
func (n *Normalizer) NormalizeBatch(raws []models.RawRecord, searchTerm string, scrapedAt time.Time) ([]*models.Outlet, []models.RecordOutcome) {
	outlets := make([]*models.Outlet, 0, len(raws))
	var dropped []models.RecordOutcome
	seen := make(map[string]struct{}, len(raws))

	for i, raw := range raws {
		outlet, err := n.Normalize(raw, searchTerm, scrapedAt)
		if err != nil {
			n.logger.Warn("skipping malformed record",
				zap.Int("index", i),
				zap.Int("page", raw.Page),
				zap.Error(err),
			)
			dropped = append(dropped, models.RecordOutcome{
				NaturalKey: fmt.Sprintf("#%d", i),
				Status:     models.RecordFailed,
				Error:      err.Error(),
			})
			continue
		}
		if _, dup := seen[outlet.NaturalKey]; dup {
			n.logger.Debug("skipping duplicate listing entry", zap.String("natural_key", outlet.NaturalKey))
			continue
		}
		seen[outlet.NaturalKey] = struct{}{}
		outlets = append(outlets, outlet)
	}
	return outlets, dropped
}

// NaturalKey is the case-folded, whitespace-collapsed name and address joined by "|"
func NaturalKey(name, address string) string {
	return strings.ToLower(Collapse(name)) + "|" + strings.ToLower(Collapse(address))
}

// Collapse trims s and replaces every whitespace run with one space
func Collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Coordinates extracts latitude and longitude from a navigation link. Both
// are nil when the link has no coordinate token or the values are out of range.
func Coordinates(link string) (*float64, *float64) {
	match := coordinatePattern.FindStringSubmatch(link)
	if match == nil {
		return nil, nil
	}
	lat, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return nil, nil
	}
	lon, err := strconv.ParseFloat(match[2], 64)
	if err != nil {
		return nil, nil
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return nil, nil
	}
	return &lat, &lon
}

func required(field string, f models.Field, maxLen int) (string, error) {
	switch f.Kind {
	case models.FieldAbsent:
		return "", malformed(field, "missing")
	case models.FieldMalformed:
		return "", malformed(field, f.Reason)
	}
	value := Collapse(f.Value)
	if value == "" {
		return "", malformed(field, "blank")
	}
	if utf8.RuneCountInString(value) > maxLen {
		return "", malformed(field, fmt.Sprintf("longer than %d characters", maxLen))
	}
	return value, nil
}

// optional returns nil for absent, malformed, blank or over-long values. A
// zero maxLen means unbounded.
func optional(f models.Field, maxLen int) *string {
	if !f.IsPresent() {
		return nil
	}
	value := Collapse(f.Value)
	if value == "" {
		return nil
	}
	if maxLen > 0 && utf8.RuneCountInString(value) > maxLen {
		return nil
	}
	return &value
}

func wazeLink(f models.Field) *string {
	link := optional(f, 0)
	if link == nil {
		return nil
	}
	lower := strings.ToLower(*link)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return nil
	}
	return link
}

// joinAttributes deduplicates attributes in first-seen order and joins them with ", "
func joinAttributes(attributes []string) *string {
	seen := make(map[string]struct{}, len(attributes))
	unique := make([]string, 0, len(attributes))
	for _, a := range attributes {
		a = Collapse(a)
		if a == "" {
			continue
		}
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		unique = append(unique, a)
	}
	if len(unique) == 0 {
		return nil
	}
	joined := strings.Join(unique, ", ")
	if utf8.RuneCountInString(joined) > models.MaxAttributeLength {
		return nil
	}
	return &joined
}

func malformed(field, reason string) error {
	return services.NewDomainError(services.ErrorTypeMalformedRecord, fmt.Sprintf("%s is %s", field, reason), nil).
		WithDetail("field", field)
}
