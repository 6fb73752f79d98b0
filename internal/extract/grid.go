// Package extract turns the grid files of a run into per-cell forecast
// records for the configured region.
package extract

import (
	"fmt"
	"io"
	"math"

	"github.com/nilsmagnus/grib/griblib"
)

// GRIB2 scanning mode flags (code table 3.4).
const (
	scanNegativeI = 0x80
	scanPositiveJ = 0x40
	scanJFirst    = 0x20
)

// Grid is one decoded message on a regular lat/lon mesh. Angles are degrees;
// Lo1 is normalized to [-180, 180).
type Grid struct {
	La1, Lo1 float64
	Di, Dj   float64
	Ni, Nj   int
	ScanMode byte
	Values   []float64
}

// Len is the number of grid points.
func (g Grid) Len() int {
	return g.Ni * g.Nj
}

// Point returns the coordinate of the k-th value.
func (g Grid) Point(k int) (lat, lon float64) {
	var i, j int
	if g.ScanMode&scanJFirst != 0 {
		i, j = k/g.Nj, k%g.Nj
	} else {
		i, j = k%g.Ni, k/g.Ni
	}

	lon = g.Lo1 + float64(i)*g.Di
	if g.ScanMode&scanNegativeI != 0 {
		lon = g.Lo1 - float64(i)*g.Di
	}
	lat = g.La1 - float64(j)*g.Dj
	if g.ScanMode&scanPositiveJ != 0 {
		lat = g.La1 + float64(j)*g.Dj
	}
	return lat, normalizeLon(lon)
}

func normalizeLon(lon float64) float64 {
	for lon >= 180 {
		lon -= 360
	}
	for lon < -180 {
		lon += 360
	}
	return lon
}

// Decoder reads the grids of one file.
type Decoder interface {
	Decode(r io.Reader) ([]Grid, error)
}

// GribDecoder decodes GRIB2 files with griblib. Messages on anything other
// than a regular lat/lon grid (template 3.0) are skipped.
type GribDecoder struct{}

func (GribDecoder) Decode(r io.Reader) ([]Grid, error) {
	messages, err := griblib.ReadMessages(r)
	if err != nil {
		return nil, fmt.Errorf("read grib messages: %w", err)
	}

	grids := make([]Grid, 0, len(messages))
	for _, msg := range messages {
		var def griblib.Grid0
		switch d := msg.Section3.Definition.(type) {
		case *griblib.Grid0:
			def = *d
		case griblib.Grid0:
			def = d
		default:
			continue
		}

		g := Grid{
			La1:      float64(def.La1) / 1e6,
			Lo1:      normalizeLon(float64(def.Lo1) / 1e6),
			Di:       math.Abs(float64(def.Di) / 1e6),
			Dj:       math.Abs(float64(def.Dj) / 1e6),
			Ni:       int(def.Ni),
			Nj:       int(def.Nj),
			ScanMode: byte(def.ScanningMode),
			Values:   msg.Data(),
		}
		if g.Len() == 0 || len(g.Values) < g.Len() {
			return nil, fmt.Errorf("message has %d values for a %dx%d grid", len(g.Values), g.Ni, g.Nj)
		}
		grids = append(grids, g)
	}
	return grids, nil
}
