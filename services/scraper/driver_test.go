package scraper

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/FLAMiNGPHYtON1/outlet-locator/models"
	"github.com/FLAMiNGPHYtON1/outlet-locator/services"
)

var errStale = errors.New("stale element reference")

type fakeSession struct {
	pages      [][]models.RawRecord
	empty      bool
	waitErrs   []error
	readErrs   map[int][]error
	submitErr  error
	current    int
	submitted  string
	closed     bool
	onWait     func()
	readCalls  int
	closeCalls int
}

func (s *fakeSession) SubmitSearch(ctx context.Context, term string) error {
	s.submitted = term
	return s.submitErr
}

func (s *fakeSession) WaitForResults(ctx context.Context, timeout time.Duration) (ResultState, error) {
	if s.onWait != nil {
		s.onWait()
	}
	if len(s.waitErrs) > 0 {
		err := s.waitErrs[0]
		s.waitErrs = s.waitErrs[1:]
		return ResultsReady, err
	}
	if s.empty {
		return ResultsEmpty, nil
	}
	return ResultsReady, nil
}

func (s *fakeSession) ReadCurrentPage(ctx context.Context) ([]models.RawRecord, error) {
	s.readCalls++
	if errs := s.readErrs[s.current]; len(errs) > 0 {
		s.readErrs[s.current] = errs[1:]
		return nil, errs[0]
	}
	out := make([]models.RawRecord, len(s.pages[s.current]))
	copy(out, s.pages[s.current])
	return out, nil
}

func (s *fakeSession) HasNextPage(ctx context.Context) (bool, error) {
	return s.current+1 < len(s.pages), nil
}

func (s *fakeSession) AdvancePage(ctx context.Context) error {
	s.current++
	return nil
}

func (s *fakeSession) Close() error {
	s.closed = true
	s.closeCalls++
	return nil
}

type fakeBrowser struct {
	mu       sync.Mutex
	sessions []*fakeSession
	openErr  error
	opened   int
}

func (b *fakeBrowser) OpenSession(ctx context.Context) (Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.openErr != nil {
		return nil, b.openErr
	}
	if b.opened >= len(b.sessions) {
		return nil, errors.New("no more sessions")
	}
	s := b.sessions[b.opened]
	b.opened++
	return s, nil
}

func testDriverConfig() DriverConfig {
	return DriverConfig{
		PageTimeout:    time.Second,
		PageRetries:    2,
		MaxRestarts:    1,
		MaxPages:       10,
		RetryBaseDelay: time.Millisecond,
		RetryMaxDelay:  2 * time.Millisecond,
	}
}

func record(name string) models.RawRecord {
	return models.RawRecord{Name: models.Present(name), Address: models.Present(name + " street")}
}

func twoPages() [][]models.RawRecord {
	return [][]models.RawRecord{
		{record("A"), record("B")},
		{record("C")},
	}
}

func names(records []models.RawRecord) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.Name.Value
	}
	return out
}

func TestExtract_WalksAllPages(t *testing.T) {
	session := &fakeSession{pages: twoPages()}
	browser := &fakeBrowser{sessions: []*fakeSession{session}}
	driver := NewDriver(browser, testDriverConfig(), zap.NewNop())

	records, err := driver.Extract(context.Background(), "kuala lumpur")
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "B", "C"}, names(records))
	assert.Equal(t, 1, records[0].Page)
	assert.Equal(t, 1, records[1].Page)
	assert.Equal(t, 2, records[2].Page)
	assert.Equal(t, "kuala lumpur", session.submitted)
	assert.True(t, session.closed)
	assert.Equal(t, 1, browser.opened)
}

func TestExtract_EmptyListing(t *testing.T) {
	session := &fakeSession{empty: true}
	driver := NewDriver(&fakeBrowser{sessions: []*fakeSession{session}}, testDriverConfig(), zap.NewNop())

	records, err := driver.Extract(context.Background(), "nowhere")
	require.NoError(t, err)
	require.NotNil(t, records)
	assert.Empty(t, records)
	assert.True(t, session.closed)
	assert.Zero(t, session.readCalls)
}

func TestExtract_RetriesTransientWait(t *testing.T) {
	session := &fakeSession{
		pages:    twoPages(),
		waitErrs: []error{errStale, context.DeadlineExceeded},
	}
	browser := &fakeBrowser{sessions: []*fakeSession{session}}
	driver := NewDriver(browser, testDriverConfig(), zap.NewNop())

	records, err := driver.Extract(context.Background(), "kl")
	require.NoError(t, err)
	assert.Len(t, records, 3)
	assert.Equal(t, 1, browser.opened)
}

func TestExtract_RestartsWithoutDuplicates(t *testing.T) {
	// page 2 of the first session never loads: its page 1 records must not leak
	first := &fakeSession{
		pages:    twoPages(),
		readErrs: map[int][]error{1: {errStale, errStale, errStale}},
	}
	second := &fakeSession{pages: twoPages()}
	browser := &fakeBrowser{sessions: []*fakeSession{first, second}}
	driver := NewDriver(browser, testDriverConfig(), zap.NewNop())

	records, err := driver.Extract(context.Background(), "kl")
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "B", "C"}, names(records))
	assert.Equal(t, 2, browser.opened)
	assert.True(t, first.closed)
	assert.True(t, second.closed)
}

func TestExtract_GivesUpWithExtractionTimeout(t *testing.T) {
	stuck := func() *fakeSession {
		return &fakeSession{waitErrs: []error{errStale, errStale, errStale}}
	}
	first, second := stuck(), stuck()
	browser := &fakeBrowser{sessions: []*fakeSession{first, second}}
	driver := NewDriver(browser, testDriverConfig(), zap.NewNop())

	records, err := driver.Extract(context.Background(), "kl")
	require.Error(t, err)
	assert.Nil(t, records)
	assert.True(t, services.IsExtractionTimeout(err))
	assert.ErrorIs(t, err, errStale)

	var domainErr *services.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, 2, domainErr.Details["attempts"])

	assert.True(t, first.closed)
	assert.True(t, second.closed)
	assert.Equal(t, 1, first.closeCalls)
}

func TestExtract_OpenSessionFailure(t *testing.T) {
	browser := &fakeBrowser{openErr: errors.New("chrome not found")}
	driver := NewDriver(browser, testDriverConfig(), zap.NewNop())

	_, err := driver.Extract(context.Background(), "kl")
	require.Error(t, err)
	assert.True(t, services.IsExtractionTimeout(err))
}

func TestExtract_SubmitFailureClosesSession(t *testing.T) {
	session := &fakeSession{submitErr: errors.New("search box missing")}
	cfg := testDriverConfig()
	cfg.MaxRestarts = 0
	driver := NewDriver(&fakeBrowser{sessions: []*fakeSession{session}}, cfg, zap.NewNop())

	_, err := driver.Extract(context.Background(), "kl")
	require.Error(t, err)
	assert.True(t, services.IsExtractionTimeout(err))
	assert.True(t, session.closed)
}

func TestExtract_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	session := &fakeSession{
		pages:    twoPages(),
		waitErrs: []error{errStale},
		onWait:   cancel,
	}
	browser := &fakeBrowser{sessions: []*fakeSession{session, {pages: twoPages()}}}
	driver := NewDriver(browser, testDriverConfig(), zap.NewNop())

	records, err := driver.Extract(ctx, "kl")
	require.Error(t, err)
	assert.Nil(t, records)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, services.IsExtractionTimeout(err))
	assert.True(t, session.closed)
	assert.Equal(t, 1, browser.opened)
}

func TestExtract_StopsAtMaxPages(t *testing.T) {
	session := &fakeSession{pages: [][]models.RawRecord{
		{record("A")}, {record("B")}, {record("C")},
	}}
	cfg := testDriverConfig()
	cfg.MaxPages = 2
	driver := NewDriver(&fakeBrowser{sessions: []*fakeSession{session}}, cfg, zap.NewNop())

	records, err := driver.Extract(context.Background(), "kl")
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, names(records))
}

func TestDriverBackoff(t *testing.T) {
	driver := NewDriver(&fakeBrowser{}, DriverConfig{
		RetryBaseDelay: 100 * time.Millisecond,
		RetryMaxDelay:  350 * time.Millisecond,
	}, zap.NewNop())

	assert.Equal(t, 100*time.Millisecond, driver.backoff(0))
	assert.Equal(t, 200*time.Millisecond, driver.backoff(1))
	assert.Equal(t, 350*time.Millisecond, driver.backoff(2))
	assert.Equal(t, 350*time.Millisecond, driver.backoff(40))
}
