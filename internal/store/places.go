package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/couchcryptid/nwp-forecast-service/internal/domain"
)

// PlaceStore reads places and their cached cell associations.
type PlaceStore struct {
	db *sql.DB
}

// NewPlaceStore creates a PlaceStore.
func NewPlaceStore(db *sql.DB) *PlaceStore {
	return &PlaceStore{db: db}
}

// FindPlace looks a place up by name or English name, case-insensitively. The
// association is nil when none has been stored yet.
func (s *PlaceStore) FindPlace(ctx context.Context, name string) (domain.Place, *domain.Association, error) {
	var (
		p              domain.Place
		nameEn, cc, tz sql.NullString
		cellID         sql.NullInt64
		distanceKm     sql.NullFloat64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT p.id, p.name, p.name_en, p.lat, p.lon, p.country_code, p.timezone,
		       a.cell_id, a.distance_km
		FROM places p
		LEFT JOIN city_cell_associations a ON a.city_id = p.id
		WHERE LOWER(p.name) = LOWER($1) OR LOWER(p.name_en) = LOWER($1)
		ORDER BY p.id
		LIMIT 1`, strings.TrimSpace(name)).Scan(
		&p.ID, &p.Name, &nameEn, &p.Lat, &p.Lon, &cc, &tz, &cellID, &distanceKm)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Place{}, nil, fmt.Errorf("place %q: %w", name, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Place{}, nil, fmt.Errorf("query place: %w", err)
	}
	p.NameEn, p.Country, p.Timezone = nameEn.String, cc.String, tz.String

	if !cellID.Valid {
		return p, nil, nil
	}
	return p, &domain.Association{
		PlaceID:    p.ID,
		PlaceName:  p.Name,
		CellID:     cellID.Int64,
		DistanceKm: distanceKm.Float64,
	}, nil
}

// SaveAssociation stores or replaces the cell association of a place.
func (s *PlaceStore) SaveAssociation(ctx context.Context, a domain.Association) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO city_cell_associations (city_id, cell_id, distance_km)
		VALUES ($1, $2, $3)
		ON CONFLICT (city_id) DO UPDATE
		SET cell_id = EXCLUDED.cell_id, distance_km = EXCLUDED.distance_km, updated_at = now()`,
		a.PlaceID, a.CellID, a.DistanceKm)
	if err != nil {
		return fmt.Errorf("save association for place %d: %w", a.PlaceID, err)
	}
	return nil
}

// Places returns every known place ordered by id.
func (s *PlaceStore) Places(ctx context.Context) ([]domain.Place, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, COALESCE(name_en, ''), lat, lon, COALESCE(country_code, ''), COALESCE(timezone, '')
		FROM places
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query places: %w", err)
	}
	defer rows.Close()

	var out []domain.Place
	for rows.Next() {
		var p domain.Place
		if err := rows.Scan(&p.ID, &p.Name, &p.NameEn, &p.Lat, &p.Lon, &p.Country, &p.Timezone); err != nil {
			return nil, fmt.Errorf("scan place: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate places: %w", err)
	}
	return out, nil
}

// SavePlace inserts a place and returns its id. A non-zero ID is kept, and an
// existing row with that id is updated. The id sequence is then moved past
// the highest stored id so later inserts without an id do not collide.
func (s *PlaceStore) SavePlace(ctx context.Context, p domain.Place) (int64, error) {
	var (
		id  int64
		err error
	)
	if p.ID != 0 {
		id, err = s.savePlaceWithID(ctx, p)
	} else {
		err = s.db.QueryRowContext(ctx, `
			INSERT INTO places (name, name_en, lat, lon, country_code, timezone)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id`,
			p.Name, nullable(p.NameEn), p.Lat, p.Lon, nullable(p.Country), nullable(p.Timezone)).Scan(&id)
	}
	if err != nil {
		return 0, fmt.Errorf("save place %q: %w", p.Name, err)
	}
	return id, nil
}

func (s *PlaceStore) savePlaceWithID(ctx context.Context, p domain.Place) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var id int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO places (id, name, name_en, lat, lon, country_code, timezone)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, name_en = EXCLUDED.name_en, lat = EXCLUDED.lat, lon = EXCLUDED.lon,
		    country_code = EXCLUDED.country_code, timezone = EXCLUDED.timezone
		RETURNING id`,
		p.ID, p.Name, nullable(p.NameEn), p.Lat, p.Lon, nullable(p.Country), nullable(p.Timezone)).Scan(&id)
	if err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx,
		`SELECT setval(pg_get_serial_sequence('places', 'id'), (SELECT MAX(id) FROM places))`); err != nil {
		return 0, fmt.Errorf("advance id sequence: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return id, nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
