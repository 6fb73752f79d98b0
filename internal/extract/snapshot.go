package extract

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/couchcryptid/nwp-forecast-service/internal/domain"
	"github.com/jszwec/csvutil"
)

// snapshotRow is one variable of one record in long format, so the CSV keeps
// the open field bag without a fixed column set.
type snapshotRow struct {
	CellID    int64     `csv:"cell_id"`
	ValidTime time.Time `csv:"valid_time"`
	Variable  string    `csv:"variable"`
	Value     float64   `csv:"value"`
}

// SnapshotPath is where the extraction of run is persisted between the
// extract and import modes.
func SnapshotPath(dataDir string, run domain.Run) string {
	return filepath.Join(dataDir, "processed", run.String()+".csv")
}

// WriteSnapshot writes records to path atomically.
func WriteSnapshot(path string, records []domain.Record) error {
	rows := make([]snapshotRow, 0, len(records)*4)
	for _, r := range records {
		names := make([]string, 0, len(r.Fields))
		for name := range r.Fields {
			names = append(names, name)
		}
		slices.Sort(names)
		for _, name := range names {
			rows = append(rows, snapshotRow{CellID: r.CellID, ValidTime: r.ValidTime.UTC(), Variable: name, Value: r.Fields[name]})
		}
	}

	data, err := csvutil.Marshal(rows)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create snapshot directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}

// ReadSnapshot loads the records of run written by WriteSnapshot, ordered by
// cell, then time.
func ReadSnapshot(path string, run domain.Run) ([]domain.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	var rows []snapshotRow
	if err := csvutil.Unmarshal(data, &rows); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}

	acc := NewAccumulator()
	for _, row := range rows {
		acc.Add(Key{CellID: row.CellID, ValidTime: row.ValidTime.UTC()}, row.Variable, row.Value)
	}
	return acc.Records(run), nil
}
