package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/couchcryptid/nwp-forecast-service/internal/domain"
)

// CellStore reads and writes icon_cells.
type CellStore struct {
	db *sql.DB
}

// NewCellStore creates a CellStore.
func NewCellStore(db *sql.DB) *CellStore {
	return &CellStore{db: db}
}

type geoJSONPolygon struct {
	Type        string         `json:"type"`
	Coordinates [][][2]float64 `json:"coordinates"`
}

func encodeBoundary(ring [][2]float64) (string, error) {
	if len(ring) > 0 && ring[0] != ring[len(ring)-1] {
		ring = append(ring[:len(ring):len(ring)], ring[0])
	}
	b, err := json.Marshal(geoJSONPolygon{Type: "Polygon", Coordinates: [][][2]float64{ring}})
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeBoundary(raw []byte) ([][2]float64, error) {
	var p geoJSONPolygon
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	if p.Type != "Polygon" || len(p.Coordinates) == 0 {
		return nil, fmt.Errorf("unexpected geometry %q", p.Type)
	}
	return p.Coordinates[0], nil
}

// Cells returns every cell, enabled or not, ordered by id.
func (s *CellStore) Cells(ctx context.Context) ([]domain.Cell, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, ST_AsGeoJSON(boundary), is_enabled
		FROM icon_cells
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query cells: %w", err)
	}
	defer rows.Close()

	var cells []domain.Cell
	for rows.Next() {
		var (
			c   domain.Cell
			raw []byte
		)
		if err := rows.Scan(&c.ID, &c.Name, &raw, &c.Enabled); err != nil {
			return nil, fmt.Errorf("scan cell: %w", err)
		}
		if c.Boundary, err = decodeBoundary(raw); err != nil {
			return nil, fmt.Errorf("decode boundary of cell %d: %w", c.ID, err)
		}
		cells = append(cells, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cells: %w", err)
	}
	return cells, nil
}

// Save inserts a cell and returns its assigned id. The ring is closed if the
// caller left it open.
func (s *CellStore) Save(ctx context.Context, c domain.Cell) (int64, error) {
	geojson, err := encodeBoundary(c.Boundary)
	if err != nil {
		return 0, fmt.Errorf("encode boundary: %w", err)
	}
	var id int64
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO icon_cells (name, boundary, is_enabled)
		VALUES ($1, ST_GeomFromGeoJSON($2)::geography, $3)
		RETURNING id`, c.Name, geojson, c.Enabled).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert cell %q: %w", c.Name, err)
	}
	return id, nil
}
