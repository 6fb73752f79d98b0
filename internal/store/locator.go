package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/couchcryptid/nwp-forecast-service/internal/domain"
)

// Locator resolves coordinates against icon_cells with PostGIS.
type Locator struct {
	db       *sql.DB
	radiusKm float64
}

// NewLocator creates a Locator whose nearest fallback searches radiusKm.
func NewLocator(db *sql.DB, radiusKm float64) *Locator {
	return &Locator{db: db, radiusKm: radiusKm}
}

// Contains returns the enabled cell whose boundary contains the point. The
// bounding-box operator narrows candidates through the GiST index before the
// exact test runs.
func (l *Locator) Contains(ctx context.Context, lat, lon float64) (domain.Match, bool, error) {
	var m domain.Match
	err := l.db.QueryRowContext(ctx, `
		WITH pt AS (SELECT ST_SetSRID(ST_MakePoint($1, $2), 4326) AS geom)
		SELECT c.id, ST_Distance(c.centroid, pt.geom::geography) / 1000.0
		FROM icon_cells c, pt
		WHERE c.is_enabled
		  AND c.boundary && pt.geom::geography
		  AND ST_Contains(c.boundary::geometry, pt.geom)
		ORDER BY c.id
		LIMIT 1`, lon, lat).Scan(&m.CellID, &m.DistanceKm)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Match{}, false, nil
	}
	if err != nil {
		return domain.Match{}, false, fmt.Errorf("query containing cell: %w", err)
	}
	return m, true, nil
}

// Nearest returns the enabled cell with the closest centroid whose boundary
// lies within the search radius.
func (l *Locator) Nearest(ctx context.Context, lat, lon float64) (domain.Match, bool, error) {
	var m domain.Match
	err := l.db.QueryRowContext(ctx, `
		WITH pt AS (SELECT ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography AS geog)
		SELECT c.id, ST_Distance(c.centroid, pt.geog) / 1000.0 AS distance_km
		FROM icon_cells c, pt
		WHERE c.is_enabled
		  AND ST_DWithin(c.boundary, pt.geog, $3)
		ORDER BY distance_km ASC
		LIMIT 1`, lon, lat, l.radiusKm*1000).Scan(&m.CellID, &m.DistanceKm)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Match{}, false, nil
	}
	if err != nil {
		return domain.Match{}, false, fmt.Errorf("query nearest cell: %w", err)
	}
	return m, true, nil
}

// Resolve tries containment first and falls back to the nearest cell. It
// returns an error wrapping domain.ErrNotFound when neither matches.
func (l *Locator) Resolve(ctx context.Context, lat, lon float64) (domain.Match, error) {
	m, ok, err := l.Contains(ctx, lat, lon)
	if err != nil {
		return domain.Match{}, err
	}
	if ok {
		return m, nil
	}
	m, ok, err = l.Nearest(ctx, lat, lon)
	if err != nil {
		return domain.Match{}, err
	}
	if ok {
		return m, nil
	}
	return domain.Match{}, fmt.Errorf("cell for %.4f,%.4f: %w", lat, lon, domain.ErrNotFound)
}
