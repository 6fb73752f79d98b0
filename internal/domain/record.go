package domain

import "time"

// Fields is the open bag of raw upstream values for one cell and instant,
// keyed by the published variable name.
type Fields map[string]float64

// First returns the value of the first name present in the bag.
func (f Fields) First(names ...string) (float64, string, bool) {
	for _, n := range names {
		if v, ok := f[n]; ok {
			return v, n, true
		}
	}
	return 0, "", false
}

// Clone returns a shallow copy safe to mutate.
func (f Fields) Clone() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Record is one stored forecast row: the field bag for a cell at ValidTime,
// as issued by Run.
type Record struct {
	CellID    int64     `json:"cell_id"`
	Run       Run       `json:"run"`
	ValidTime time.Time `json:"valid_time"`
	Fields    Fields    `json:"fields"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}
