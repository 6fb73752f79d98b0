// Package query answers point and place weather requests from the newest
// imported run of the covering cell.
package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/couchcryptid/nwp-forecast-service/internal/domain"
	"github.com/couchcryptid/nwp-forecast-service/internal/observability"
	"github.com/jonboulle/clockwork"
)

// Locator resolves a coordinate to its covering or nearest cell.
type Locator interface {
	Resolve(ctx context.Context, lat, lon float64) (domain.Match, error)
}

// SeriesReader loads stored forecast series.
type SeriesReader interface {
	LatestRun(ctx context.Context, cellID int64) (domain.Run, error)
	Series(ctx context.Context, cellID int64, run domain.Run) ([]domain.Record, error)
}

// PlaceFinder looks up named places and caches their cell.
type PlaceFinder interface {
	FindPlace(ctx context.Context, name string) (domain.Place, *domain.Association, error)
	SaveAssociation(ctx context.Context, a domain.Association) error
}

// Options configures a Service.
type Options struct {
	Model         string
	MaxStep       int
	HourlyHorizon int
	DailyHorizon  int
	Clock         clockwork.Clock
}

// Service builds Weather responses.
type Service struct {
	locator Locator
	series  SeriesReader
	places  PlaceFinder
	opts    Options
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewService creates a query Service. Zero horizons use the domain defaults.
func NewService(locator Locator, series SeriesReader, places PlaceFinder, opts Options, logger *slog.Logger, metrics *observability.Metrics) *Service {
	if opts.HourlyHorizon <= 0 {
		opts.HourlyHorizon = domain.DefaultHourlyHorizon
	}
	if opts.DailyHorizon <= 0 {
		opts.DailyHorizon = domain.DefaultDailyHorizon
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	return &Service{locator: locator, series: series, places: places, opts: opts, logger: logger, metrics: metrics}
}

// ByCoordinate returns the weather at a coordinate. Errors wrap
// domain.ErrNotFound when no cell or no run data covers it.
func (s *Service) ByCoordinate(ctx context.Context, lat, lon float64, units string) (*domain.Weather, error) {
	w, err := s.byCoordinate(ctx, lat, lon, units)
	s.observe("coordinate", err)
	return w, err
}

func (s *Service) byCoordinate(ctx context.Context, lat, lon float64, units string) (*domain.Weather, error) {
	u, err := domain.ParseUnits(units)
	if err != nil {
		return nil, err
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return nil, fmt.Errorf("coordinate %.4f,%.4f out of range", lat, lon)
	}

	m, err := s.locator.Resolve(ctx, lat, lon)
	if err != nil {
		return nil, err
	}
	loc := domain.Location{Lat: lat, Lon: lon, Timezone: "UTC"}
	return s.forCell(ctx, m, loc, u)
}

// ByPlace returns the weather at a named place. The stored association is
// used when present and its cell has run data; otherwise the place
// coordinate is resolved and the association saved for next time.
func (s *Service) ByPlace(ctx context.Context, name string, units string) (*domain.Weather, error) {
	w, err := s.byPlace(ctx, name, units)
	s.observe("place", err)
	return w, err
}

func (s *Service) byPlace(ctx context.Context, name string, units string) (*domain.Weather, error) {
	u, err := domain.ParseUnits(units)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("empty place name: %w", domain.ErrNotFound)
	}

	place, assoc, err := s.places.FindPlace(ctx, name)
	if err != nil {
		return nil, err
	}

	tz := place.Timezone
	if tz == "" {
		tz = "UTC"
	}
	loc := domain.Location{Name: place.DisplayName(), Country: place.Country, Lat: place.Lat, Lon: place.Lon, Timezone: tz}

	var staleErr error
	if assoc != nil {
		m := domain.Match{CellID: assoc.CellID, DistanceKm: assoc.DistanceKm}
		w, err := s.forCell(ctx, m, loc, u)
		if !errors.Is(err, domain.ErrNotFound) {
			return w, err
		}
		s.logger.Info("place association has no data, resolving again", "place", place.Name, "cell_id", assoc.CellID)
		staleErr = err
	}

	m, err := s.locator.Resolve(ctx, place.Lat, place.Lon)
	if err != nil {
		return nil, err
	}
	if assoc != nil && assoc.CellID == m.CellID {
		return nil, staleErr
	}
	a := domain.Association{PlaceID: place.ID, PlaceName: place.Name, CellID: m.CellID, DistanceKm: m.DistanceKm}
	if err := s.places.SaveAssociation(ctx, a); err != nil {
		s.logger.Warn("could not store place association", "place", place.Name, "cell_id", m.CellID, "error", err)
	}
	return s.forCell(ctx, m, loc, u)
}

func (s *Service) forCell(ctx context.Context, m domain.Match, loc domain.Location, units domain.Units) (*domain.Weather, error) {
	run, err := s.series.LatestRun(ctx, m.CellID)
	if err != nil {
		return nil, err
	}
	records, err := s.series.Series(ctx, m.CellID, run)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("records for cell %d run %s: %w", m.CellID, run, domain.ErrNotFound)
	}

	var updated time.Time
	for _, r := range records {
		if r.UpdatedAt.After(updated) {
			updated = r.UpdatedAt
		}
	}

	end := records[len(records)-1].ValidTime
	if s.opts.MaxStep > 0 {
		end = run.ValidTime(s.opts.MaxStep)
	}

	now := s.opts.Clock.Now().UTC()
	w := &domain.Weather{
		Location: loc,
		Source: domain.Source{
			Model:        s.opts.Model,
			Run:          run.String(),
			CellID:       m.CellID,
			ResolutionKm: m.DistanceKm,
			UpdatedAt:    updated,
			ForecastEnd:  end,
		},
		Units:    domain.UnitsMetric,
		Forecast: domain.BuildForecast(domain.DeriveSeries(records), now, s.opts.HourlyHorizon, s.opts.DailyHorizon),
	}
	w.ConvertUnits(units)
	return w, nil
}

func (s *Service) observe(kind string, err error) {
	outcome := "ok"
	switch {
	case errors.Is(err, domain.ErrNotFound):
		outcome = "not_found"
	case err != nil:
		outcome = "error"
	}
	s.metrics.QueryRequests.WithLabelValues(kind, outcome).Inc()
}
