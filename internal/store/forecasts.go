package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/couchcryptid/nwp-forecast-service/internal/domain"
	"github.com/couchcryptid/nwp-forecast-service/internal/observability"
)

const (
	DefaultBatchSize = 100
	columnsPerRow    = 5
)

// ForecastStore reads and writes icon_tile_forecasts.
type ForecastStore struct {
	db        *sql.DB
	batchSize int
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// NewForecastStore creates a ForecastStore. A non-positive batchSize uses
// DefaultBatchSize.
func NewForecastStore(db *sql.DB, batchSize int, logger *slog.Logger, metrics *observability.Metrics) *ForecastStore {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &ForecastStore{db: db, batchSize: batchSize, logger: logger, metrics: metrics}
}

type recordKey struct {
	cell  int64
	valid int64
	run   string
}

// Import upserts records in batches, each batch in its own transaction. On a
// key collision the stored field bag is replaced and updated_at bumped. A
// failed batch aborts the call; the returned count covers the batches already
// committed.
func (s *ForecastStore) Import(ctx context.Context, records []domain.Record) (int, error) {
	imported := 0
	for start := 0; start < len(records); start += s.batchSize {
		end := min(start+s.batchSize, len(records))
		batch := dedupe(records[start:end])

		began := time.Now()
		if err := s.upsertBatch(ctx, batch); err != nil {
			return imported, fmt.Errorf("import batch %d-%d: %w", start, end, err)
		}
		s.metrics.ImportBatchDuration.Observe(time.Since(began).Seconds())
		s.metrics.RecordsImported.Add(float64(len(batch)))
		imported += len(batch)
	}
	return imported, nil
}

// dedupe collapses repeated keys within one batch, last write wins, because
// Postgres rejects an ON CONFLICT statement that touches the same row twice.
func dedupe(batch []domain.Record) []domain.Record {
	index := make(map[recordKey]int, len(batch))
	out := make([]domain.Record, 0, len(batch))
	for _, r := range batch {
		k := recordKey{cell: r.CellID, valid: r.ValidTime.Unix(), run: r.Run.String()}
		if i, ok := index[k]; ok {
			out[i] = r
			continue
		}
		index[k] = len(out)
		out = append(out, r)
	}
	return out
}

func (s *ForecastStore) upsertBatch(ctx context.Context, batch []domain.Record) error {
	query, args, err := buildUpsert(batch)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func buildUpsert(batch []domain.Record) (string, []any, error) {
	var b strings.Builder
	b.WriteString(`INSERT INTO icon_tile_forecasts (cell_id, run_date, utc_cycle_time, forecast_datetime, forecast_data) VALUES `)

	args := make([]any, 0, len(batch)*columnsPerRow)
	for i, r := range batch {
		data, err := json.Marshal(r.Fields)
		if err != nil {
			return "", nil, fmt.Errorf("encode fields for cell %d: %w", r.CellID, err)
		}
		if i > 0 {
			b.WriteString(", ")
		}
		n := i * columnsPerRow
		fmt.Fprintf(&b, "($%d, $%d, $%d, $%d, $%d::jsonb)", n+1, n+2, n+3, n+4, n+5)
		args = append(args, r.CellID, r.Run.Date, r.Run.Cycle, r.ValidTime.UTC(), string(data))
	}
	b.WriteString(` ON CONFLICT (cell_id, forecast_datetime, run_date, utc_cycle_time) DO UPDATE SET forecast_data = EXCLUDED.forecast_data, updated_at = now()`)
	return b.String(), args, nil
}

// LatestRun returns the newest run with at least one record for the cell.
func (s *ForecastStore) LatestRun(ctx context.Context, cellID int64) (domain.Run, error) {
	var (
		runDate time.Time
		cycle   int
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT run_date, utc_cycle_time
		FROM icon_tile_forecasts
		WHERE cell_id = $1
		ORDER BY run_date DESC, utc_cycle_time DESC
		LIMIT 1`, cellID).Scan(&runDate, &cycle)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Run{}, fmt.Errorf("run for cell %d: %w", cellID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Run{}, fmt.Errorf("query latest run: %w", err)
	}
	return domain.Run{
		Date:  time.Date(runDate.Year(), runDate.Month(), runDate.Day(), 0, 0, 0, 0, time.UTC),
		Cycle: cycle,
	}, nil
}

// Series returns every record of one run for the cell in ascending time order.
func (s *ForecastStore) Series(ctx context.Context, cellID int64, run domain.Run) ([]domain.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT forecast_datetime, forecast_data, updated_at
		FROM icon_tile_forecasts
		WHERE cell_id = $1 AND run_date = $2 AND utc_cycle_time = $3
		ORDER BY forecast_datetime ASC`, cellID, run.Date, run.Cycle)
	if err != nil {
		return nil, fmt.Errorf("query series: %w", err)
	}
	defer rows.Close()

	var out []domain.Record
	for rows.Next() {
		var (
			r    = domain.Record{CellID: cellID, Run: run}
			data []byte
		)
		if err := rows.Scan(&r.ValidTime, &data, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan forecast row: %w", err)
		}
		if err := json.Unmarshal(data, &r.Fields); err != nil {
			return nil, fmt.Errorf("decode forecast_data at %s: %w", r.ValidTime.Format(time.RFC3339), err)
		}
		r.ValidTime = r.ValidTime.UTC()
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate series: %w", err)
	}
	return out, nil
}

// DeleteExpired removes records whose run was issued, or whose forecast time
// falls, before cutoff.
func (s *ForecastStore) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM icon_tile_forecasts
		WHERE forecast_datetime < $1
		   OR (run_date::timestamp + utc_cycle_time * INTERVAL '1 hour') AT TIME ZONE 'UTC' < $1`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete expired forecasts: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// HasData reports whether any forecast has been imported.
func (s *ForecastStore) HasData(ctx context.Context) (bool, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM icon_tile_forecasts)`).Scan(&exists); err != nil {
		return false, fmt.Errorf("check forecast data: %w", err)
	}
	return exists, nil
}

// Ping verifies the database connection.
func (s *ForecastStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
