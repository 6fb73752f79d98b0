// Command ingest downloads, extracts and imports model runs into the tile
// store. Without -mode it imports each new run on a schedule and serves
// health and metrics endpoints.
//
// Usage:
//
//	ingest [-mode serve|fetch|extract|import|all|sweep] [-run YYYYMMDDHH]
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/couchcryptid/nwp-forecast-service/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/nwp-forecast-service/internal/adapter/kafka"
	"github.com/couchcryptid/nwp-forecast-service/internal/cellindex"
	"github.com/couchcryptid/nwp-forecast-service/internal/config"
	"github.com/couchcryptid/nwp-forecast-service/internal/domain"
	"github.com/couchcryptid/nwp-forecast-service/internal/extract"
	"github.com/couchcryptid/nwp-forecast-service/internal/fetch"
	"github.com/couchcryptid/nwp-forecast-service/internal/observability"
	"github.com/couchcryptid/nwp-forecast-service/internal/pipeline"
	"github.com/couchcryptid/nwp-forecast-service/internal/retention"
	"github.com/couchcryptid/nwp-forecast-service/internal/store"
)

func main() {
	mode := flag.String("mode", "serve", "serve, fetch, extract, import, all or sweep")
	runFlag := flag.String("run", "", "run to process as YYYYMMDDHH (default: newest published)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *mode, *runFlag, logger, metrics); err != nil {
		logger.Error("ingest failed", "mode", *mode, "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, mode, runFlag string, logger *slog.Logger, metrics *observability.Metrics) error {
	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := store.Migrate(db, logger); err != nil {
		return err
	}

	forecasts := store.NewForecastStore(db, cfg.ImportBatchSize, logger, metrics)
	sweeper := retention.NewSweeper(cfg.DataDir, cfg.RetentionHorizon, forecasts, nil, logger, metrics)
	if mode == "sweep" {
		_, err := sweeper.Sweep(ctx)
		return err
	}

	fetcher := fetch.New(fetch.Options{
		BaseURL:   cfg.BaseURL,
		DataDir:   cfg.DataDir,
		Variables: cfg.Variables,
		Steps:     fetch.Steps(cfg.HourlyStepsUntil, cfg.CoarseStepHours, cfg.MaxStep),
		Workers:   cfg.FetchWorkers,
		Timeout:   cfg.FetchTimeout,
	}, logger, metrics)

	var extractor pipeline.Extractor
	if mode == "serve" || mode == string(pipeline.ModeExtract) || mode == string(pipeline.ModeAll) {
		resolver, err := newResolver(ctx, cfg, db, logger, metrics)
		if err != nil {
			return err
		}
		extractor = extract.New(extract.GribDecoder{}, resolver, extract.Options{
			Region:  cfg.Region,
			Workers: cfg.ExtractWorkers,
		}, logger, metrics)
	}

	var publisher pipeline.Publisher
	if cfg.EventsEnabled() {
		p := kafkaadapter.NewRunPublisher(cfg, logger)
		defer func() {
			if err := p.Close(); err != nil {
				logger.Error("kafka publisher close error", "error", err)
			}
		}()
		publisher = p
		logger.Info("run notifications enabled", "topic", cfg.KafkaRunTopic)
	}

	runner := pipeline.NewRunner(fetcher, extractor, forecasts, publisher, cfg.DataDir, cfg.Model, logger, metrics)
	pick := runPicker(cfg, logger)

	if mode != "serve" {
		m, err := pipeline.ParseMode(mode)
		if err != nil {
			return err
		}
		var r domain.Run
		if runFlag != "" {
			r, err = domain.ParseRun(runFlag)
		} else {
			r, err = pick(ctx, time.Now())
		}
		if err != nil {
			return err
		}
		rep, err := runner.RunOnce(ctx, r, m)
		if err != nil {
			return err
		}
		logger.Info("run processed", "run", r.String(), "files", rep.Files, "cells", rep.Cells, "records", rep.Records, "partial", rep.Partial)
		return nil
	}

	sched := pipeline.NewScheduler(runner, pick, sweeper, forecasts, cfg.ScheduleInterval, nil, logger, metrics)
	srv := httpadapter.NewServer(cfg.HTTPAddr, sched, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start scheduler.
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := sched.Run(ctx); err != nil {
			logger.Error("scheduler error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	select {
	case <-done:
	case <-shutdownCtx.Done():
		logger.Warn("scheduler did not stop before the shutdown timeout")
	}

	logger.Info("shutdown complete")
	return nil
}

// newResolver builds the grid point resolver used by extraction: an
// in-memory s2 index by default, or PostGIS lookups when CELL_INDEX=store.
// Either way repeated points are served from an LRU cache.
func newResolver(ctx context.Context, cfg *config.Config, db *sql.DB, logger *slog.Logger, metrics *observability.Metrics) (cellindex.Resolver, error) {
	var inner cellindex.Resolver
	switch cfg.CellIndex {
	case "store":
		inner = store.NewLocator(db, cfg.CellSearchRadiusKm)
	default:
		ix, err := cellindex.Load(ctx, store.NewCellStore(db), cfg.CellSearchRadiusKm)
		if err != nil {
			return nil, fmt.Errorf("build cell index: %w", err)
		}
		logger.Info("cell index loaded", "cells", ix.Len())
		inner = ix
	}
	return cellindex.NewCachedResolver(inner, cfg.CellCacheSize, metrics)
}

// runPicker returns the newest run expected to be published, optionally
// confirmed against the upstream directory listing.
func runPicker(cfg *config.Config, logger *slog.Logger) pipeline.RunPicker {
	var discoverer *fetch.Discoverer
	if cfg.DiscoverRuns {
		discoverer = fetch.NewDiscoverer(cfg.BaseURL, cfg.CycleHours, cfg.FetchTimeout, logger)
	}
	return func(ctx context.Context, now time.Time) (domain.Run, error) {
		latest := fetch.LatestRun(now, cfg.CycleHours, cfg.PublishDelay)
		if discoverer == nil {
			return latest, nil
		}
		return discoverer.Discover(ctx, latest, cfg.Variables[0], 0)
	}
}
