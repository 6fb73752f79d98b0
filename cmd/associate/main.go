// Command associate loads places from a CSV file and refreshes the cached
// place to cell associations.
//
// Usage:
//
//	associate [-places places.csv]
//
// The CSV header is id,name,name_en,lat,lon,country_code,timezone; id may be
// empty for new places.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/nwp-forecast-service/internal/cellindex"
	"github.com/couchcryptid/nwp-forecast-service/internal/config"
	"github.com/couchcryptid/nwp-forecast-service/internal/domain"
	"github.com/couchcryptid/nwp-forecast-service/internal/observability"
	"github.com/couchcryptid/nwp-forecast-service/internal/store"
	"github.com/jszwec/csvutil"
)

func main() {
	placesFile := flag.String("places", "", "CSV file of places to upsert before refreshing")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *placesFile, logger); err != nil {
		logger.Error("associate failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, placesFile string, logger *slog.Logger) error {
	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := store.Migrate(db, logger); err != nil {
		return err
	}
	places := store.NewPlaceStore(db)

	if placesFile != "" {
		data, err := os.ReadFile(placesFile)
		if err != nil {
			return fmt.Errorf("read places: %w", err)
		}
		list, err := readPlaces(data)
		if err != nil {
			return err
		}
		for _, p := range list {
			if _, err := places.SavePlace(ctx, p); err != nil {
				return err
			}
		}
		logger.Info("places loaded", "file", placesFile, "count", len(list))
	}

	var resolver cellindex.Resolver
	if cfg.CellIndex == "store" {
		resolver = store.NewLocator(db, cfg.CellSearchRadiusKm)
	} else {
		ix, err := cellindex.Load(ctx, store.NewCellStore(db), cfg.CellSearchRadiusKm)
		if err != nil {
			return fmt.Errorf("build cell index: %w", err)
		}
		resolver = ix
	}

	res, err := associate(ctx, places, resolver, logger)
	logger.Info("associations refreshed", "saved", res.Saved, "unmatched", res.Unmatched)
	return err
}

// readPlaces decodes a places CSV.
func readPlaces(data []byte) ([]domain.Place, error) {
	var list []domain.Place
	if err := csvutil.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("decode places: %w", err)
	}
	for i, p := range list {
		if p.Name == "" {
			return nil, fmt.Errorf("place on line %d has no name", i+2)
		}
		if p.Lat < -90 || p.Lat > 90 || p.Lon < -180 || p.Lon > 180 {
			return nil, fmt.Errorf("place %q has invalid coordinates %.4f,%.4f", p.Name, p.Lat, p.Lon)
		}
	}
	return list, nil
}

type placeStore interface {
	Places(ctx context.Context) ([]domain.Place, error)
	SaveAssociation(ctx context.Context, a domain.Association) error
}

type result struct {
	Saved     int
	Unmatched int
}

// associate resolves every place to its cell and upserts the association.
// Places outside every cell are skipped.
func associate(ctx context.Context, places placeStore, resolver cellindex.Resolver, logger *slog.Logger) (result, error) {
	var res result
	list, err := places.Places(ctx)
	if err != nil {
		return res, err
	}
	for _, p := range list {
		m, err := resolver.Resolve(ctx, p.Lat, p.Lon)
		if errors.Is(err, domain.ErrNotFound) {
			logger.Warn("place outside every cell", "place", p.Name, "lat", p.Lat, "lon", p.Lon)
			res.Unmatched++
			continue
		}
		if err != nil {
			return res, err
		}
		a := domain.Association{PlaceID: p.ID, PlaceName: p.Name, CellID: m.CellID, DistanceKm: m.DistanceKm}
		if err := places.SaveAssociation(ctx, a); err != nil {
			return res, err
		}
		res.Saved++
	}
	return res, nil
}
