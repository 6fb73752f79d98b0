package domain

import (
	"time"

	"github.com/google/uuid"
)

// RunImported announces that a run finished importing.
type RunImported struct {
	ID         string    `json:"id"`
	Run        string    `json:"run"`
	Model      string    `json:"model"`
	Records    int       `json:"records"`
	Cells      int       `json:"cells"`
	Files      int       `json:"files"`
	Partial    bool      `json:"partial"`
	ImportedAt time.Time `json:"imported_at"`
}

// NewRunImported stamps a RunImported event with a fresh id and the package clock.
func NewRunImported(model string, run Run, records, cells, files int, partial bool) RunImported {
	return RunImported{
		ID:         uuid.NewString(),
		Run:        run.String(),
		Model:      model,
		Records:    records,
		Cells:      cells,
		Files:      files,
		Partial:    partial,
		ImportedAt: clock.Now().UTC(),
	}
}
