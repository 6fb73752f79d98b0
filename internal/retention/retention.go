// Package retention removes expired run files and forecast rows.
package retention

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/couchcryptid/nwp-forecast-service/internal/domain"
	"github.com/couchcryptid/nwp-forecast-service/internal/observability"
	"github.com/hashicorp/go-multierror"
	"github.com/jonboulle/clockwork"
)

// RowDeleter deletes stored forecasts older than a cutoff.
type RowDeleter interface {
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// Result reports what one sweep removed.
type Result struct {
	Cutoff    time.Time
	RunDirs   int
	TempFiles int
	Rows      int64
}

// Sweeper deletes everything older than the horizon.
type Sweeper struct {
	dataDir string
	horizon time.Duration
	rows    RowDeleter
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewSweeper creates a Sweeper. rows may be nil to sweep files only.
func NewSweeper(dataDir string, horizon time.Duration, rows RowDeleter, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Sweeper {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Sweeper{dataDir: dataDir, horizon: horizon, rows: rows, clock: clock, logger: logger, metrics: metrics}
}

// Sweep removes run directories issued before now minus the horizon, stray
// temporary files, then expired rows. Both halves run even if one fails.
func (s *Sweeper) Sweep(ctx context.Context) (Result, error) {
	res := Result{Cutoff: s.clock.Now().UTC().Add(-s.horizon)}
	var errs *multierror.Error

	if err := s.sweepFiles(&res); err != nil {
		errs = multierror.Append(errs, err)
	}
	if s.rows != nil {
		n, err := s.rows.DeleteExpired(ctx, res.Cutoff)
		if err != nil {
			errs = multierror.Append(errs, err)
		}
		res.Rows = n
	}

	s.metrics.RetentionDeletions.WithLabelValues("files").Add(float64(res.RunDirs + res.TempFiles))
	s.metrics.RetentionDeletions.WithLabelValues("rows").Add(float64(res.Rows))
	s.logger.Info("retention sweep",
		"cutoff", res.Cutoff.Format(time.RFC3339),
		"run_dirs", res.RunDirs,
		"temp_files", res.TempFiles,
		"rows", res.Rows,
	)
	return res, errs.ErrorOrNil()
}

func (s *Sweeper) sweepFiles(res *Result) error {
	entries, err := os.ReadDir(s.dataDir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("list data directory: %w", err)
	}

	var errs *multierror.Error
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		run, err := domain.ParseRun(e.Name())
		if err != nil {
			continue
		}
		if !run.Time().Before(res.Cutoff) {
			continue
		}
		path := filepath.Join(s.dataDir, e.Name())
		if err := os.RemoveAll(path); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("remove %s: %w", path, err))
			continue
		}
		snapshot := filepath.Join(s.dataDir, "processed", e.Name()+".csv")
		if err := os.Remove(snapshot); err != nil && !os.IsNotExist(err) {
			errs = multierror.Append(errs, fmt.Errorf("remove %s: %w", snapshot, err))
		}
		res.RunDirs++
		s.logger.Debug("removed run directory", "run", run.String())
	}

	walkErr := filepath.WalkDir(s.dataDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".tmp") {
			return nil
		}
		if err := os.Remove(path); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("remove %s: %w", path, err))
			return nil
		}
		res.TempFiles++
		return nil
	})
	if walkErr != nil {
		errs = multierror.Append(errs, fmt.Errorf("walk data directory: %w", walkErr))
	}
	return errs.ErrorOrNil()
}
