package domain

// Cell is one polygon of the served region. Boundary is a closed ring of
// (lon, lat) vertices in WGS-84.
type Cell struct {
	ID       int64        `json:"id"`
	Name     string       `json:"name"`
	Boundary [][2]float64 `json:"boundary"`
	Enabled  bool         `json:"enabled"`
}

// Match is the result of a cell lookup. DistanceKm is the distance from the
// queried coordinate to the cell centroid.
type Match struct {
	CellID     int64   `json:"cell_id"`
	DistanceKm float64 `json:"distance_km"`
}

// Place is a named location that can be queried by name.
type Place struct {
	ID       int64   `json:"id" csv:"id,omitempty"`
	Name     string  `json:"name" csv:"name"`
	NameEn   string  `json:"name_en,omitempty" csv:"name_en,omitempty"`
	Lat      float64 `json:"lat" csv:"lat"`
	Lon      float64 `json:"lon" csv:"lon"`
	Country  string  `json:"country,omitempty" csv:"country_code,omitempty"`
	Timezone string  `json:"timezone,omitempty" csv:"timezone,omitempty"`
}

// DisplayName prefers the English name when one is known.
func (p Place) DisplayName() string {
	if p.NameEn != "" {
		return p.NameEn
	}
	return p.Name
}

// Association caches the cell covering a place.
type Association struct {
	PlaceID    int64   `json:"place_id"`
	PlaceName  string  `json:"place_name,omitempty"`
	CellID     int64   `json:"cell_id"`
	DistanceKm float64 `json:"distance_km"`
}
