package cellindex

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/couchcryptid/nwp-forecast-service/internal/domain"
	"github.com/couchcryptid/nwp-forecast-service/internal/observability"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// square returns a closed ring for a cell of the given size with its
// south-west corner at (lat, lon).
func square(lat, lon, size float64) [][2]float64 {
	return [][2]float64{
		{lon, lat},
		{lon + size, lat},
		{lon + size, lat + size},
		{lon, lat + size},
		{lon, lat},
	}
}

func testCells() []domain.Cell {
	return []domain.Cell{
		{ID: 1, Name: "athens", Boundary: square(37.9, 23.6, 0.25), Enabled: true},
		{ID: 2, Name: "piraeus-west", Boundary: square(37.9, 23.35, 0.25), Enabled: true},
		{ID: 3, Name: "disabled", Boundary: square(38.15, 23.6, 0.25), Enabled: false},
	}
}

func TestIndex_Contains(t *testing.T) {
	ix, err := New(testCells(), 50)
	require.NoError(t, err)
	assert.Equal(t, 2, ix.Len())

	m, ok := ix.Contains(37.98, 23.73)
	require.True(t, ok)
	assert.Equal(t, int64(1), m.CellID)
	assert.Less(t, m.DistanceKm, 10.0)

	m, ok = ix.Contains(38.0, 23.4)
	require.True(t, ok)
	assert.Equal(t, int64(2), m.CellID)

	_, ok = ix.Contains(38.2, 23.7)
	assert.False(t, ok, "disabled cells are not indexed")
}

func TestIndex_Nearest(t *testing.T) {
	ix, err := New(testCells(), 50)
	require.NoError(t, err)

	// Offshore point just south of the Athens cell.
	m, ok := ix.Nearest(37.8, 23.75)
	require.True(t, ok)
	assert.Equal(t, int64(1), m.CellID)
	assert.Greater(t, m.DistanceKm, 0.0)
	assert.Less(t, m.DistanceKm, 50.0)

	_, ok = ix.Nearest(35.3, 25.1)
	assert.False(t, ok, "Crete is beyond the search radius")
}

func TestIndex_Resolve(t *testing.T) {
	ix, err := New(testCells(), 50)
	require.NoError(t, err)
	ctx := context.Background()

	m, err := ix.Resolve(ctx, 37.95, 23.65)
	require.NoError(t, err)
	assert.Equal(t, int64(1), m.CellID)

	m, err = ix.Resolve(ctx, 37.85, 23.5)
	require.NoError(t, err)
	assert.Positive(t, m.DistanceKm)

	_, err = ix.Resolve(ctx, 40.6, 22.9)
	require.ErrorIs(t, err, domain.ErrNotFound)
	assert.True(t, IsMiss(err))
}

func TestNew_RejectsDegenerateBoundary(t *testing.T) {
	_, err := New([]domain.Cell{{ID: 9, Boundary: [][2]float64{{23, 37}, {24, 37}, {23, 37}}, Enabled: true}}, 50)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cell 9")
}

type countingResolver struct {
	calls atomic.Int64
	err   error
}

func (r *countingResolver) Resolve(_ context.Context, lat, _ float64) (domain.Match, error) {
	r.calls.Add(1)
	if r.err != nil {
		return domain.Match{}, r.err
	}
	if lat > 40 {
		return domain.Match{}, domain.ErrNotFound
	}
	return domain.Match{CellID: 42, DistanceKm: 1.5}, nil
}

func TestCachedResolver(t *testing.T) {
	inner := &countingResolver{}
	metrics := observability.NewMetricsForTesting()
	c, err := NewCachedResolver(inner, 2, metrics)
	require.NoError(t, err)
	ctx := context.Background()

	for range 3 {
		m, err := c.Resolve(ctx, 37.9, 23.7)
		require.NoError(t, err)
		assert.Equal(t, int64(42), m.CellID)
	}
	assert.Equal(t, int64(1), inner.calls.Load())

	t.Run("misses are cached", func(t *testing.T) {
		_, err := c.Resolve(ctx, 41, 23)
		require.ErrorIs(t, err, domain.ErrNotFound)
		_, err = c.Resolve(ctx, 41, 23)
		require.ErrorIs(t, err, domain.ErrNotFound)
		assert.Equal(t, int64(2), inner.calls.Load())
	})

	t.Run("evicts least recently used", func(t *testing.T) {
		_, _ = c.Resolve(ctx, 36, 22)
		assert.Equal(t, 2, c.Len())
		_, _ = c.Resolve(ctx, 37.9, 23.7)
		assert.Equal(t, int64(4), inner.calls.Load(), "oldest entry was evicted")
	})

	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.CellLookups.WithLabelValues("hit")))
}

func TestCachedResolver_DoesNotCacheFailures(t *testing.T) {
	inner := &countingResolver{err: errors.New("connection reset")}
	c, err := NewCachedResolver(inner, 10, nil)
	require.NoError(t, err)

	_, err = c.Resolve(context.Background(), 37.9, 23.7)
	require.Error(t, err)
	_, err = c.Resolve(context.Background(), 37.9, 23.7)
	require.Error(t, err)
	assert.Equal(t, int64(2), inner.calls.Load())
	assert.Zero(t, c.Len())
}

func TestNewCachedResolver_RejectsEmptyCache(t *testing.T) {
	_, err := NewCachedResolver(&countingResolver{}, 0, nil)
	require.Error(t, err)
}

type sliceSource struct {
	cells []domain.Cell
	err   error
}

func (s sliceSource) Cells(context.Context) ([]domain.Cell, error) { return s.cells, s.err }

func TestLoad(t *testing.T) {
	ix, err := Load(context.Background(), sliceSource{cells: testCells()}, 50)
	require.NoError(t, err)
	assert.Equal(t, 2, ix.Len())

	_, err = Load(context.Background(), sliceSource{err: errors.New("relation icon_cells does not exist")}, 50)
	require.Error(t, err)

	_, err = Load(context.Background(), sliceSource{cells: testCells()[2:]}, 50)
	require.ErrorIs(t, err, domain.ErrNotFound)
}
