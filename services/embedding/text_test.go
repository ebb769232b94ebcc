package embedding

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/FLAMiNGPHYtON1/outlet-locator/models"
)

func strPtr(s string) *string { return &s }

func TestCanonicalText(t *testing.T) {
	tests := []struct {
		name   string
		outlet *models.Outlet
		want   string
	}{
		{
			name:   "required fields only",
			outlet: &models.Outlet{Name: "McDonald's Bangsar", Address: "Jalan Telawi 3, Bangsar"},
			want:   "Name: McDonald's Bangsar. Address: Jalan Telawi 3, Bangsar",
		},
		{
			name: "all fields in fixed order",
			outlet: &models.Outlet{
				Name:           "McDonald's KLCC",
				Address:        "Suria KLCC, Kuala Lumpur",
				OperatingHours: strPtr("Open 24 hours"),
				Attribute:      strPtr("Drive-Thru, McCafe"),
				Telephone:      strPtr("03-2161 1234"),
			},
			want: "Name: McDonald's KLCC. Address: Suria KLCC, Kuala Lumpur. Hours: Open 24 hours. Services: Drive-Thru, McCafe. Telephone: 03-2161 1234",
		},
		{
			name: "blank optional omitted",
			outlet: &models.Outlet{
				Name:      "McDonald's Cheras",
				Address:   "Jalan Cheras",
				Telephone: strPtr("  "),
			},
			want: "Name: McDonald's Cheras. Address: Jalan Cheras",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanonicalText(tt.outlet))
		})
	}
}

func TestContentHash(t *testing.T) {
	a := ContentHash("Name: A. Address: B")
	assert.Len(t, a, 64)
	assert.Equal(t, a, ContentHash("Name: A. Address: B"))
	assert.NotEqual(t, a, ContentHash("Name: A. Address: C"))
}

func TestIsStale(t *testing.T) {
	outlet := &models.Outlet{Name: "A", Address: "B"}
	assert.True(t, IsStale(outlet), "unindexed outlet is stale")

	outlet.SetEmbedding([]float32{1, 0}, ContentHash(CanonicalText(outlet)))
	assert.False(t, IsStale(outlet))

	outlet.OperatingHours = strPtr("7am - 11pm")
	assert.True(t, IsStale(outlet), "descriptive change invalidates the embedding")
}
