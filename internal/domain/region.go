package domain

import "fmt"

// BBox is a latitude/longitude bounding box in degrees, inclusive on all sides.
type BBox struct {
	LatMin float64 `yaml:"lat_min"`
	LatMax float64 `yaml:"lat_max"`
	LonMin float64 `yaml:"lon_min"`
	LonMax float64 `yaml:"lon_max"`
}

// Contains reports whether the coordinate lies inside the box.
func (b BBox) Contains(lat, lon float64) bool {
	return lat >= b.LatMin && lat <= b.LatMax && lon >= b.LonMin && lon <= b.LonMax
}

// Validate rejects inverted or out-of-range boxes.
func (b BBox) Validate() error {
	if b.LatMin >= b.LatMax || b.LonMin >= b.LonMax {
		return fmt.Errorf("bounding box is empty: %+v", b)
	}
	if b.LatMin < -90 || b.LatMax > 90 || b.LonMin < -180 || b.LonMax > 180 {
		return fmt.Errorf("bounding box out of range: %+v", b)
	}
	return nil
}
