// Package scraper drives a browser through the paginated outlet listing and
// returns the raw records it shows.
package scraper

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/FLAMiNGPHYtON1/outlet-locator/models"
	"github.com/FLAMiNGPHYtON1/outlet-locator/services"
)

// DriverConfig bounds how long and how often the driver tries
type DriverConfig struct {
	PageTimeout    time.Duration
	PageRetries    int
	MaxRestarts    int
	MaxPages       int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
}

// DefaultDriverConfig returns the production defaults
func DefaultDriverConfig() DriverConfig {
	return DriverConfig{
		PageTimeout:    10 * time.Second,
		PageRetries:    3,
		MaxRestarts:    2,
		MaxPages:       50,
		RetryBaseDelay: 500 * time.Millisecond,
		RetryMaxDelay:  8 * time.Second,
	}
}

// Driver runs extractions against a Browser
type Driver struct {
	browser Browser
	config  DriverConfig
	logger  *zap.Logger
}

// NewDriver creates a driver. Zero config fields fall back to the defaults.
func NewDriver(browser Browser, config DriverConfig, logger *zap.Logger) *Driver {
	defaults := DefaultDriverConfig()
	if config.PageTimeout <= 0 {
		config.PageTimeout = defaults.PageTimeout
	}
	if config.PageRetries < 0 {
		config.PageRetries = 0
	}
	if config.MaxRestarts < 0 {
		config.MaxRestarts = 0
	}
	if config.MaxPages <= 0 {
		config.MaxPages = defaults.MaxPages
	}
	if config.RetryBaseDelay <= 0 {
		config.RetryBaseDelay = defaults.RetryBaseDelay
	}
	if config.RetryMaxDelay < config.RetryBaseDelay {
		config.RetryMaxDelay = config.RetryBaseDelay
	}
	return &Driver{browser: browser, config: config, logger: logger}
}

// Extract returns every outlet the listing shows for searchTerm. A listing
// with no matches yields an empty slice. When every walk fails the error is
// ExtractionTimeout and no partial records are returned.
func (d *Driver) Extract(ctx context.Context, searchTerm string) ([]models.RawRecord, error) {
	var lastErr error
	attempts := 0

	for restart := 0; restart <= d.config.MaxRestarts; restart++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("extraction cancelled: %w", err)
		}
		attempts++

		records, err := d.walk(ctx, searchTerm)
		if err == nil {
			d.logger.Info("extraction completed",
				zap.String("search_term", searchTerm),
				zap.Int("records", len(records)),
				zap.Int("attempts", attempts),
			)
			return records, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("extraction cancelled: %w", ctxErr)
		}

		lastErr = err
		d.logger.Warn("extraction attempt failed",
			zap.String("search_term", searchTerm),
			zap.Int("attempt", attempts),
			zap.Error(err),
		)

		if restart < d.config.MaxRestarts {
			if err := d.sleep(ctx, d.backoff(restart)); err != nil {
				return nil, fmt.Errorf("extraction cancelled: %w", err)
			}
		}
	}

	d.logger.Error("extraction gave up",
		zap.String("search_term", searchTerm),
		zap.Int("attempts", attempts),
		zap.Error(lastErr),
	)
	return nil, services.NewDomainError(services.ErrorTypeExtractionTimeout,
		fmt.Sprintf("listing did not load after %d attempts", attempts), lastErr).
		WithDetail("attempts", attempts).
		WithDetail("search_term", searchTerm)
}

// walk runs one full pass over the listing in a fresh session
func (d *Driver) walk(ctx context.Context, searchTerm string) ([]models.RawRecord, error) {
	session, err := d.browser.OpenSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open browser session: %w", err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			d.logger.Warn("failed to close browser session", zap.Error(err))
		}
	}()

	if err := session.SubmitSearch(ctx, searchTerm); err != nil {
		return nil, fmt.Errorf("failed to submit search: %w", err)
	}

	state, err := d.waitForResults(ctx, session)
	if err != nil {
		return nil, err
	}

	records := make([]models.RawRecord, 0)
	if state == ResultsEmpty {
		return records, nil
	}

	for page := 1; ; page++ {
		var onPage []models.RawRecord
		err := d.retry(ctx, "read page", func() error {
			var err error
			onPage, err = session.ReadCurrentPage(ctx)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", page, err)
		}
		for i := range onPage {
			onPage[i].Page = page
		}
		records = append(records, onPage...)

		d.logger.Debug("page read",
			zap.String("search_term", searchTerm),
			zap.Int("page", page),
			zap.Int("records", len(onPage)),
		)

		if page >= d.config.MaxPages {
			d.logger.Warn("page limit reached",
				zap.String("search_term", searchTerm),
				zap.Int("max_pages", d.config.MaxPages),
			)
			return records, nil
		}

		var hasNext bool
		err = d.retry(ctx, "check next page", func() error {
			var err error
			hasNext, err = session.HasNextPage(ctx)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", page, err)
		}
		if !hasNext {
			return records, nil
		}

		if err := session.AdvancePage(ctx); err != nil {
			return nil, fmt.Errorf("failed to leave page %d: %w", page, err)
		}
		state, err := d.waitForResults(ctx, session)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", page+1, err)
		}
		if state == ResultsEmpty {
			return records, nil
		}
	}
}

func (d *Driver) waitForResults(ctx context.Context, session Session) (ResultState, error) {
	var state ResultState
	err := d.retry(ctx, "wait for results", func() error {
		var err error
		state, err = session.WaitForResults(ctx, d.config.PageTimeout)
		return err
	})
	return state, err
}

// retry runs op up to PageRetries+1 times with exponential backoff
func (d *Driver) retry(ctx context.Context, op string, fn func() error) error {
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if attempt >= d.config.PageRetries {
			return fmt.Errorf("%s failed after %d tries: %w", op, attempt+1, err)
		}

		delay := d.backoff(attempt)
		d.logger.Debug("retrying page operation",
			zap.String("operation", op),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if err := d.sleep(ctx, delay); err != nil {
			return err
		}
	}
}

func (d *Driver) backoff(attempt int) time.Duration {
	delay := d.config.RetryBaseDelay
	for i := 0; i < attempt && delay < d.config.RetryMaxDelay; i++ {
		delay *= 2
	}
	return min(delay, d.config.RetryMaxDelay)
}

func (d *Driver) sleep(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
