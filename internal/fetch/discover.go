package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/couchcryptid/nwp-forecast-service/internal/domain"
)

// MaxDiscoverCycles bounds how far Discover walks back.
const MaxDiscoverCycles = 4

// Discoverer checks the upstream directory listing for published runs.
type Discoverer struct {
	baseURL    string
	cycleHours []int
	httpClient *http.Client
	logger     *slog.Logger
}

// NewDiscoverer creates a Discoverer against the model's base URL.
func NewDiscoverer(baseURL string, cycleHours []int, timeout time.Duration, logger *slog.Logger) *Discoverer {
	return &Discoverer{
		baseURL:    baseURL,
		cycleHours: cycleHours,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Published reports whether the index lists the file of variable/step for run.
func (d *Discoverer) Published(ctx context.Context, run domain.Run, variable string, step int) (bool, error) {
	u := VariableURL(d.baseURL, run, variable)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return false, fmt.Errorf("create request: %w", err)
	}
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("list %s: %w", u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("list %s: status %d", u, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return false, fmt.Errorf("parse listing: %w", err)
	}
	want := RemoteName(run, variable, step)
	found := false
	doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		if path.Base(href) == want {
			found = true
			return false
		}
		return true
	})
	return found, nil
}

// Discover walks back from start, one cycle at a time, until it finds a run
// whose variable/step file is published. It gives up after MaxDiscoverCycles.
func (d *Discoverer) Discover(ctx context.Context, start domain.Run, variable string, step int) (domain.Run, error) {
	run := start
	for range MaxDiscoverCycles {
		ok, err := d.Published(ctx, run, variable, step)
		if err != nil {
			return domain.Run{}, err
		}
		if ok {
			if run.String() != start.String() {
				d.logger.Info("using earlier run", "requested", start.String(), "run", run.String())
			}
			return run, nil
		}
		d.logger.Debug("run not published", "run", run.String(), "variable", variable)
		run = PreviousRun(run, d.cycleHours)
	}
	return domain.Run{}, fmt.Errorf("published run at or before %s: %w", start, domain.ErrNotFound)
}
