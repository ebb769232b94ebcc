package scraper

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/FLAMiNGPHYtON1/outlet-locator/models"
)

func float(v float64) *float64 { return &v }

func TestToRawRecords(t *testing.T) {
	outlets := []pageOutlet{
		{
			Name:       "McDonald's KLCC",
			Address:    "Lot 241, Suria KLCC",
			Hours:      "Open 24 Hours",
			Telephone:  "Tel: 03-2166 1234",
			Latitude:   float(3.1579),
			Longitude:  float(101.7123),
			Attributes: []string{"24 Hours", "McCafe"},
		},
		{Name: "  ", Address: "advert box"},
		{Name: "McDonald's Bangsar", Address: "Jalan Telawi", GeoError: "SyntaxError: Unexpected token"},
		{Name: "McDonald's Cheras"},
	}

	records := toRawRecords(outlets)
	require.Len(t, records, 3)

	klcc := records[0]
	assert.Equal(t, models.Present("McDonald's KLCC"), klcc.Name)
	assert.Equal(t, models.Present("https://waze.com/ul?ll=3.1579,101.7123&z=15"), klcc.WazeLink)
	assert.Equal(t, models.Present("Tel: 03-2166 1234"), klcc.Telephone)
	assert.Equal(t, []string{"24 Hours", "McCafe"}, klcc.Attributes)

	bangsar := records[1]
	assert.Equal(t, models.FieldMalformed, bangsar.WazeLink.Kind)
	assert.Contains(t, bangsar.WazeLink.Reason, "SyntaxError")
	assert.Equal(t, models.FieldAbsent, bangsar.OperatingHours.Kind)

	cheras := records[2]
	assert.Equal(t, models.FieldAbsent, cheras.Address.Kind)
	assert.Equal(t, models.FieldAbsent, cheras.WazeLink.Kind)
}

func TestToRawRecords_NoBoxes(t *testing.T) {
	records := toRawRecords(nil)
	assert.NotNil(t, records)
	assert.Empty(t, records)
}

func TestWazeLink(t *testing.T) {
	assert.Equal(t, "https://waze.com/ul?ll=-6.2,106.816666&z=15", WazeLink(-6.2, 106.816666))
}

func TestStateProbe(t *testing.T) {
	probe := stateProbe(".addressBox", ".noResult")
	assert.Contains(t, probe, `document.querySelector(".addressBox")`)
	assert.Contains(t, probe, `document.querySelector(".noResult") !== null`)

	probe = stateProbe(".addressBox", "")
	assert.Contains(t, probe, "if (false)")
}

func TestExtractScriptSelector(t *testing.T) {
	script := strings.Replace(extractScript, "__RESULT_ITEM__", quote(`div[data-x="1"]`), 1)
	assert.Contains(t, script, `document.querySelectorAll("div[data-x=\"1\"]")`)
	assert.NotContains(t, script, "__RESULT_ITEM__")
}

func TestNewChromeBrowser_DefaultProfile(t *testing.T) {
	browser := NewChromeBrowser(nil, true, zap.NewNop())
	assert.Equal(t, DefaultProfile(), browser.profile)
	assert.True(t, browser.headless)
}
