package extract

import (
	"cmp"
	"slices"
	"sync"
	"time"

	"github.com/couchcryptid/nwp-forecast-service/internal/domain"
)

// Key identifies one record of a run.
type Key struct {
	CellID    int64
	ValidTime time.Time
}

type mean struct {
	sum   float64
	count int
}

// partial holds the per-variable running means of one file before it is
// merged into the shared Accumulator.
type partial map[Key]map[string]mean

func (p partial) add(k Key, variable string, v float64) {
	vars, ok := p[k]
	if !ok {
		vars = make(map[string]mean)
		p[k] = vars
	}
	m := vars[variable]
	m.sum += v
	m.count++
	vars[variable] = m
}

// Accumulator collects extracted values across files. Several grid points in
// one cell average into a single value per variable. It is safe for
// concurrent use.
type Accumulator struct {
	mu    sync.Mutex
	data  partial
	files int
}

// NewAccumulator creates an empty Accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{data: make(partial)}
}

// Add folds one value into the record of k.
func (a *Accumulator) Add(k Key, variable string, v float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.data.add(k, variable, v)
}

func (a *Accumulator) merge(p partial) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for k, vars := range p {
		dst, ok := a.data[k]
		if !ok {
			a.data[k] = vars
			continue
		}
		for name, m := range vars {
			cur := dst[name]
			cur.sum += m.sum
			cur.count += m.count
			dst[name] = cur
		}
	}
	a.files++
}

// Len is the number of distinct records.
func (a *Accumulator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.data)
}

// Files is the number of files merged.
func (a *Accumulator) Files() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.files
}

// Cells is the number of distinct cells with at least one record.
func (a *Accumulator) Cells() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	seen := make(map[int64]struct{})
	for k := range a.data {
		seen[k.CellID] = struct{}{}
	}
	return len(seen)
}

// Records returns the accumulated records of run ordered by cell, then time.
func (a *Accumulator) Records(run domain.Run) []domain.Record {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]domain.Record, 0, len(a.data))
	for k, vars := range a.data {
		fields := make(domain.Fields, len(vars))
		for name, m := range vars {
			fields[name] = m.sum / float64(m.count)
		}
		out = append(out, domain.Record{CellID: k.CellID, Run: run, ValidTime: k.ValidTime, Fields: fields})
	}
	slices.SortFunc(out, func(x, y domain.Record) int {
		if c := cmp.Compare(x.CellID, y.CellID); c != 0 {
			return c
		}
		return x.ValidTime.Compare(y.ValidTime)
	})
	return out
}
