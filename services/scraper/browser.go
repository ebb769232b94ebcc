package scraper

import (
	"context"
	"time"

	"github.com/FLAMiNGPHYtON1/outlet-locator/models"
)

// ResultState describes what the listing showed after a search or page change
type ResultState int

const (
	// ResultsReady means at least one outlet box is on the page
	ResultsReady ResultState = iota
	// ResultsEmpty means the site reported no matching outlets
	ResultsEmpty
)

// String returns the textual form of the state
func (s ResultState) String() string {
	if s == ResultsEmpty {
		return "empty"
	}
	return "ready"
}

// Browser opens isolated automation sessions. Every extraction run owns its
// own session and closes it when done.
type Browser interface {
	OpenSession(ctx context.Context) (Session, error)
}

// Session is one browser tab driving the outlet listing
type Session interface {
	// SubmitSearch loads the listing and searches for term. An empty term
	// leaves the unfiltered listing in place.
	SubmitSearch(ctx context.Context, term string) error

	// WaitForResults blocks until the listing shows outlets or reports that
	// there are none, or until timeout passes.
	WaitForResults(ctx context.Context, timeout time.Duration) (ResultState, error)

	// ReadCurrentPage reads every outlet box on the visible page
	ReadCurrentPage(ctx context.Context) ([]models.RawRecord, error)

	// HasNextPage reports whether an enabled next-page control exists
	HasNextPage(ctx context.Context) (bool, error)

	// AdvancePage activates the next-page control
	AdvancePage(ctx context.Context) error

	Close() error
}
