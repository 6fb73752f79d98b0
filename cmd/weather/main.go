// Command weather prints the forecast for a coordinate or a named place as
// JSON, read from the tile store.
//
// Usage:
//
//	weather -lat 37.98 -lon 23.73 [-units imperial]
//	weather -place Athens
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/nwp-forecast-service/internal/config"
	"github.com/couchcryptid/nwp-forecast-service/internal/domain"
	"github.com/couchcryptid/nwp-forecast-service/internal/observability"
	"github.com/couchcryptid/nwp-forecast-service/internal/query"
	"github.com/couchcryptid/nwp-forecast-service/internal/store"
)

func main() {
	lat := flag.Float64("lat", math.NaN(), "latitude in degrees")
	lon := flag.Float64("lon", math.NaN(), "longitude in degrees")
	place := flag.String("place", "", "place name (instead of -lat/-lon)")
	units := flag.String("units", "metric", "metric or imperial")
	flag.Parse()

	if err := run(*lat, *lon, *place, *units); err != nil {
		fmt.Fprintln(os.Stderr, "weather:", err)
		if errors.Is(err, domain.ErrNotFound) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run(lat, lon float64, place, units string) error {
	if place == "" && (math.IsNaN(lat) || math.IsNaN(lon)) {
		return errors.New("either -place or both -lat and -lon are required")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	cfg.LogFormat = "text"
	logger := observability.NewLogger(cfg).With("cmd", "weather")
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	metrics := observability.NewMetrics()
	svc := query.NewService(
		store.NewLocator(db, cfg.CellSearchRadiusKm),
		store.NewForecastStore(db, cfg.ImportBatchSize, logger, metrics),
		store.NewPlaceStore(db),
		query.Options{Model: cfg.Model, MaxStep: cfg.MaxStep},
		logger,
		metrics,
	)

	var w *domain.Weather
	if place != "" {
		w, err = svc.ByPlace(ctx, place, units)
	} else {
		w, err = svc.ByCoordinate(ctx, lat, lon, units)
	}
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(w)
}
