package cellindex

import (
	"context"
	"fmt"

	"github.com/couchcryptid/nwp-forecast-service/internal/domain"
)

// CellSource lists the cells of the served region.
type CellSource interface {
	Cells(ctx context.Context) ([]domain.Cell, error)
}

// Load builds an Index from every cell the source returns.
func Load(ctx context.Context, src CellSource, radiusKm float64) (*Index, error) {
	cells, err := src.Cells(ctx)
	if err != nil {
		return nil, fmt.Errorf("load cells: %w", err)
	}
	ix, err := New(cells, radiusKm)
	if err != nil {
		return nil, err
	}
	if ix.Len() == 0 {
		return nil, fmt.Errorf("no enabled cells: %w", domain.ErrNotFound)
	}
	return ix, nil
}
