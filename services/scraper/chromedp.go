package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/FLAMiNGPHYtON1/outlet-locator/models"
)

const (
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
	pollInterval     = 250 * time.Millisecond
)

// extractScript reads every result box into a plain object. __RESULT_ITEM__
// is replaced with the JSON-quoted result selector.
const extractScript = `(() => {
  const text = el => (el ? (el.innerText || el.textContent || '') : '').trim();
  return Array.from(document.querySelectorAll(__RESULT_ITEM__)).map(box => {
    const out = { name: text(box.querySelector('.addressTitle strong')), address: '', hours: '', telephone: '', attributes: [] };
    const lines = Array.from(box.querySelectorAll('.addressText'));
    if (lines.length > 0) out.address = text(lines[0]);
    for (const tip of box.querySelectorAll('.ed-tooltiptext')) {
      const t = text(tip);
      if (/hour|24|am|pm/i.test(t)) { out.hours = t.replace(/\n/g, ' '); break; }
    }
    for (const script of box.querySelectorAll("script[type='application/ld+json']")) {
      try {
        const data = JSON.parse(script.textContent);
        if (data && data.geo && typeof data.geo === 'object') {
          const lat = parseFloat(data.geo.latitude);
          const lon = parseFloat(data.geo.longitude);
          if (!isNaN(lat) && !isNaN(lon)) { out.latitude = lat; out.longitude = lon; }
          break;
        }
      } catch (e) {
        out.geo_error = String(e);
      }
    }
    for (const line of lines) {
      const t = text(line);
      if (/Tel:|Fax:|Phone:/.test(t)) { out.telephone = t; break; }
    }
    if (!out.telephone) {
      for (const a of box.querySelectorAll("a[href^='tel:']")) {
        out.telephone = (a.getAttribute('href') || '').slice(4).trim();
        if (out.telephone) break;
      }
    }
    const top = box.querySelector('.addressTop');
    if (top) {
      for (const tip of top.querySelectorAll('a.ed-tooltip .ed-tooltiptext')) {
        const first = (tip.textContent || '').trim().split('\n')[0].trim();
        if (first) out.attributes.push(first);
      }
    }
    return out;
  });
})()`

// pageOutlet is the shape extractScript returns per box
type pageOutlet struct {
	Name       string   `json:"name"`
	Address    string   `json:"address"`
	Hours      string   `json:"hours"`
	Telephone  string   `json:"telephone"`
	Latitude   *float64 `json:"latitude"`
	Longitude  *float64 `json:"longitude"`
	GeoError   string   `json:"geo_error"`
	Attributes []string `json:"attributes"`
}

// ChromeBrowser drives headless Chrome through the DevTools protocol
type ChromeBrowser struct {
	profile   *SiteProfile
	headless  bool
	userAgent string
	logger    *zap.Logger
}

// NewChromeBrowser creates a browser for the given site profile
func NewChromeBrowser(profile *SiteProfile, headless bool, logger *zap.Logger) *ChromeBrowser {
	if profile == nil {
		profile = DefaultProfile()
	}
	return &ChromeBrowser{
		profile:   profile,
		headless:  headless,
		userAgent: defaultUserAgent,
		logger:    logger,
	}
}

// OpenSession starts a dedicated Chrome process and tab
func (b *ChromeBrowser) OpenSession(ctx context.Context) (Session, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", b.headless),
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.UserAgent(b.userAgent),
	)

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)

	session := &chromeSession{
		tab:     tabCtx,
		profile: b.profile,
		logger:  b.logger,
		cancel: func() {
			cancelTab()
			cancelAlloc()
		},
	}

	// an empty Run launches the browser
	if err := session.run(ctx); err != nil {
		session.cancel()
		return nil, fmt.Errorf("failed to start chrome: %w", err)
	}
	return session, nil
}

type chromeSession struct {
	tab     context.Context
	cancel  func()
	profile *SiteProfile
	logger  *zap.Logger
}

// run executes actions on the tab, aborting them when ctx ends
func (s *chromeSession) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(s.tab)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (s *chromeSession) SubmitSearch(ctx context.Context, term string) error {
	actions := []chromedp.Action{
		chromedp.Navigate(s.profile.BaseURL),
		chromedp.WaitReady(s.profile.SearchInput, chromedp.ByQuery),
	}
	if term != "" {
		actions = append(actions,
			chromedp.SetValue(s.profile.SearchInput, term, chromedp.ByQuery),
			chromedp.Click(s.profile.SearchButton, chromedp.ByQuery),
		)
	}
	actions = append(actions, chromedp.Sleep(s.profile.SettleDelay))

	s.logger.Debug("submitting search", zap.String("url", s.profile.BaseURL), zap.String("search_term", term))
	return s.run(ctx, actions...)
}

func (s *chromeSession) WaitForResults(ctx context.Context, timeout time.Duration) (ResultState, error) {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	probe := stateProbe(s.profile.ResultItem, s.profile.EmptyMarker)
	for {
		var state string
		if err := s.run(waitCtx, chromedp.Evaluate(probe, &state)); err != nil {
			if ctx.Err() != nil {
				return ResultsReady, ctx.Err()
			}
			if waitCtx.Err() == nil {
				return ResultsReady, fmt.Errorf("failed to probe results: %w", err)
			}
		}
		switch state {
		case "ready":
			return ResultsReady, nil
		case "empty":
			return ResultsEmpty, nil
		}

		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return ResultsReady, ctx.Err()
			}
			return ResultsReady, fmt.Errorf("results did not appear within %s: %w", timeout, context.DeadlineExceeded)
		case <-time.After(pollInterval):
		}
	}
}

func (s *chromeSession) ReadCurrentPage(ctx context.Context) ([]models.RawRecord, error) {
	var outlets []pageOutlet
	script := strings.Replace(extractScript, "__RESULT_ITEM__", quote(s.profile.ResultItem), 1)
	if err := s.run(ctx, chromedp.Evaluate(script, &outlets)); err != nil {
		return nil, fmt.Errorf("failed to read outlets: %w", err)
	}
	return toRawRecords(outlets), nil
}

func (s *chromeSession) HasNextPage(ctx context.Context) (bool, error) {
	var present bool
	expr := fmt.Sprintf(`(() => { const el = document.querySelector(%s); return !!el && !el.disabled; })()`, quote(s.profile.NextButton))
	if err := s.run(ctx, chromedp.Evaluate(expr, &present)); err != nil {
		return false, fmt.Errorf("failed to look for next page: %w", err)
	}
	return present, nil
}

func (s *chromeSession) AdvancePage(ctx context.Context) error {
	return s.run(ctx,
		chromedp.Click(s.profile.NextButton, chromedp.ByQuery),
		chromedp.Sleep(s.profile.SettleDelay),
	)
}

func (s *chromeSession) Close() error {
	s.cancel()
	return nil
}

// stateProbe returns "ready", "empty" or "" for the current document
func stateProbe(resultItem, emptyMarker string) string {
	empty := "false"
	if emptyMarker != "" {
		empty = fmt.Sprintf("document.querySelector(%s) !== null", quote(emptyMarker))
	}
	return fmt.Sprintf(`(() => {
  if (document.querySelector(%s) !== null) return "ready";
  if (%s) return "empty";
  return "";
})()`, quote(resultItem), empty)
}

// toRawRecords maps script output onto raw records, dropping boxes without a name
func toRawRecords(outlets []pageOutlet) []models.RawRecord {
	records := make([]models.RawRecord, 0, len(outlets))
	for _, o := range outlets {
		if strings.TrimSpace(o.Name) == "" {
			continue
		}
		records = append(records, models.RawRecord{
			Name:           models.Present(o.Name),
			Address:        models.FieldFromText(o.Address),
			OperatingHours: models.FieldFromText(o.Hours),
			Telephone:      models.FieldFromText(o.Telephone),
			WazeLink:       wazeField(o),
			Attributes:     o.Attributes,
		})
	}
	return records
}

func wazeField(o pageOutlet) models.Field {
	if o.Latitude != nil && o.Longitude != nil {
		return models.Present(WazeLink(*o.Latitude, *o.Longitude))
	}
	if o.GeoError != "" {
		return models.Malformed("unreadable geo data: " + o.GeoError)
	}
	return models.Absent()
}

// WazeLink builds a navigation link for a coordinate pair
func WazeLink(lat, lon float64) string {
	return "https://waze.com/ul?ll=" +
		strconv.FormatFloat(lat, 'f', -1, 64) + "," +
		strconv.FormatFloat(lon, 'f', -1, 64) + "&z=15"
}

func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
