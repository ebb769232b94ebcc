package embedding

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/FLAMiNGPHYtON1/outlet-locator/models"
)

// CanonicalText is the text an outlet is embedded from. Absent optional
// fields are omitted so adding one changes the text and forces a re-embed.
func CanonicalText(o *models.Outlet) string {
	parts := []string{
		"Name: " + o.Name,
		"Address: " + o.Address,
	}
	if v := optional(o.OperatingHours); v != "" {
		parts = append(parts, "Hours: "+v)
	}
	if v := optional(o.Attribute); v != "" {
		parts = append(parts, "Services: "+v)
	}
	if v := optional(o.Telephone); v != "" {
		parts = append(parts, "Telephone: "+v)
	}
	return strings.Join(parts, ". ")
}

// ContentHash returns the hex sha256 of text
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// IsStale reports whether the outlet needs a new embedding for its current text
func IsStale(o *models.Outlet) bool {
	if !o.IsIndexed() || o.EmbeddingSourceHash == nil {
		return true
	}
	return *o.EmbeddingSourceHash != ContentHash(CanonicalText(o))
}

func optional(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
