// Package cellindex resolves coordinates to grid cells in memory.
//
// The index holds every enabled cell as an s2 polygon. A lookup first keeps
// only the cells whose centroid lies within the cell's own reach of the point
// (the largest centroid-to-vertex distance), then runs the exact
// point-in-polygon test on that shortlist. When no polygon contains the point
// the closest centroid within the search radius wins.
package cellindex

import (
	"context"
	"errors"
	"fmt"

	"github.com/couchcryptid/nwp-forecast-service/internal/domain"
	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"
)

const earthRadiusKm = 6371.0088

// Resolver maps a coordinate to the covering or nearest cell.
type Resolver interface {
	Resolve(ctx context.Context, lat, lon float64) (domain.Match, error)
}

type indexedCell struct {
	id       int64
	polygon  *s2.Polygon
	centroid s2.LatLng
	reach    s1.Angle
}

// Index is an immutable in-memory cell index.
type Index struct {
	cells  []indexedCell
	radius s1.Angle
}

// New builds an Index from the enabled cells. radiusKm bounds the nearest
// fallback.
func New(cells []domain.Cell, radiusKm float64) (*Index, error) {
	ix := &Index{radius: kmToAngle(radiusKm)}
	for _, c := range cells {
		if !c.Enabled {
			continue
		}
		ic, err := newIndexedCell(c)
		if err != nil {
			return nil, err
		}
		ix.cells = append(ix.cells, ic)
	}
	return ix, nil
}

func newIndexedCell(c domain.Cell) (indexedCell, error) {
	ring := c.Boundary
	if n := len(ring); n > 1 && ring[0] == ring[n-1] {
		ring = ring[:n-1]
	}
	if len(ring) < 3 {
		return indexedCell{}, fmt.Errorf("cell %d: boundary needs at least 3 distinct vertices", c.ID)
	}

	var sumLat, sumLon float64
	points := make([]s2.Point, len(ring))
	for i, v := range ring {
		points[i] = s2.PointFromLatLng(s2.LatLngFromDegrees(v[1], v[0]))
		sumLon += v[0]
		sumLat += v[1]
	}
	n := float64(len(ring))
	centroid := s2.LatLngFromDegrees(sumLat/n, sumLon/n)

	loop := s2.LoopFromPoints(points)
	loop.Normalize()

	var reach s1.Angle
	for _, p := range points {
		if d := centroid.Distance(s2.LatLngFromPoint(p)); d > reach {
			reach = d
		}
	}

	return indexedCell{
		id:       c.ID,
		polygon:  s2.PolygonFromLoops([]*s2.Loop{loop}),
		centroid: centroid,
		reach:    reach,
	}, nil
}

// Len returns the number of indexed cells.
func (ix *Index) Len() int { return len(ix.cells) }

// Contains returns the cell whose polygon contains the coordinate.
func (ix *Index) Contains(lat, lon float64) (domain.Match, bool) {
	ll := s2.LatLngFromDegrees(lat, lon)
	p := s2.PointFromLatLng(ll)
	for i := range ix.cells {
		c := &ix.cells[i]
		d := c.centroid.Distance(ll)
		if d > c.reach {
			continue
		}
		if c.polygon.ContainsPoint(p) {
			return domain.Match{CellID: c.id, DistanceKm: angleToKm(d)}, true
		}
	}
	return domain.Match{}, false
}

// Nearest returns the cell with the closest centroid within the search radius.
func (ix *Index) Nearest(lat, lon float64) (domain.Match, bool) {
	ll := s2.LatLngFromDegrees(lat, lon)
	best := -1
	var bestDist s1.Angle
	for i := range ix.cells {
		d := ix.cells[i].centroid.Distance(ll)
		if d > ix.radius {
			continue
		}
		if best < 0 || d < bestDist {
			best, bestDist = i, d
		}
	}
	if best < 0 {
		return domain.Match{}, false
	}
	return domain.Match{CellID: ix.cells[best].id, DistanceKm: angleToKm(bestDist)}, true
}

// Resolve tries containment first and falls back to the nearest cell.
func (ix *Index) Resolve(_ context.Context, lat, lon float64) (domain.Match, error) {
	if m, ok := ix.Contains(lat, lon); ok {
		return m, nil
	}
	if m, ok := ix.Nearest(lat, lon); ok {
		return m, nil
	}
	return domain.Match{}, fmt.Errorf("cell for %.4f,%.4f: %w", lat, lon, domain.ErrNotFound)
}

// IsMiss reports whether err is a lookup miss rather than a failure.
func IsMiss(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}

func kmToAngle(km float64) s1.Angle {
	return s1.Angle(km / earthRadiusKm)
}

func angleToKm(a s1.Angle) float64 {
	return a.Radians() * earthRadiusKm
}
