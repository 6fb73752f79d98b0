package domain

import (
	"fmt"
	"time"
)

const runLayout = "2006010215"

// Run identifies one model issuance by date and cycle hour.
type Run struct {
	Date  time.Time `json:"date"`
	Cycle int       `json:"cycle"`
}

// NewRun builds the Run issued at t. Minutes and seconds are discarded.
func NewRun(t time.Time) Run {
	t = t.UTC()
	return Run{
		Date:  time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC),
		Cycle: t.Hour(),
	}
}

// ParseRun parses a YYYYMMDDHH run identifier.
func ParseRun(s string) (Run, error) {
	t, err := time.ParseInLocation(runLayout, s, time.UTC)
	if err != nil {
		return Run{}, fmt.Errorf("%w: %q", ErrInvalidRun, s)
	}
	return NewRun(t), nil
}

// Time returns the issuance instant.
func (r Run) Time() time.Time {
	return r.Date.Add(time.Duration(r.Cycle) * time.Hour)
}

func (r Run) String() string {
	return r.Time().Format(runLayout)
}

// IsZero reports whether r is the zero Run.
func (r Run) IsZero() bool {
	return r.Date.IsZero() && r.Cycle == 0
}

// After reports whether r was issued later than o.
func (r Run) After(o Run) bool {
	if !r.Date.Equal(o.Date) {
		return r.Date.After(o.Date)
	}
	return r.Cycle > o.Cycle
}

// ValidTime returns the forecast instant of the given step.
func (r Run) ValidTime(step int) time.Time {
	return r.Time().Add(time.Duration(step) * time.Hour)
}
