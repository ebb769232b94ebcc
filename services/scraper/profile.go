package scraper

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// SiteProfile describes where the listing lives and how to drive it
type SiteProfile struct {
	Name         string        `yaml:"name"`
	BaseURL      string        `yaml:"base_url"`
	SearchInput  string        `yaml:"search_input"`
	SearchButton string        `yaml:"search_button"`
	ResultItem   string        `yaml:"result_item"`
	EmptyMarker  string        `yaml:"empty_marker"`
	NextButton   string        `yaml:"next_button"`
	SettleDelay  time.Duration `yaml:"settle_delay"`
}

// DefaultProfile is the McDonald's Malaysia "locate us" page
func DefaultProfile() *SiteProfile {
	return &SiteProfile{
		Name:         "mcdonalds-my",
		BaseURL:      "https://www.mcdonalds.com.my/locate-us",
		SearchInput:  "input[type='text'][id='address'][name='address']",
		SearchButton: ".btnSearchNow",
		ResultItem:   ".addressBox",
		EmptyMarker:  ".noResult, .no-result",
		NextButton:   ".pagination .next:not(.disabled), .next-page:not(.disabled)",
		SettleDelay:  3 * time.Second,
	}
}

// LoadProfile reads a profile from path. An empty path or a missing file
// yields the default profile; fields left out of the file keep their defaults.
func LoadProfile(path string) (*SiteProfile, error) {
	profile := DefaultProfile()
	if path == "" {
		return profile, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return profile, nil
		}
		return nil, fmt.Errorf("failed to read site profile: %w", err)
	}

	if err := yaml.Unmarshal(data, profile); err != nil {
		return nil, fmt.Errorf("failed to parse site profile %s: %w", path, err)
	}
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	return profile, nil
}

// Validate checks that every selector the session needs is set
func (p *SiteProfile) Validate() error {
	for _, f := range []struct{ name, value string }{
		{"base_url", p.BaseURL},
		{"search_input", p.SearchInput},
		{"search_button", p.SearchButton},
		{"result_item", p.ResultItem},
		{"next_button", p.NextButton},
	} {
		if f.value == "" {
			return fmt.Errorf("site profile: %s is required", f.name)
		}
	}
	if p.SettleDelay < 0 {
		return fmt.Errorf("site profile: settle_delay must not be negative")
	}
	return nil
}
