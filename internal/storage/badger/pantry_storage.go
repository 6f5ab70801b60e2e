package badger

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/quaero/internal/common"
	"github.com/ternarybob/quaero/internal/interfaces"
	"github.com/ternarybob/quaero/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// earthRadiusMeters is used for the haversine distance computed by Nearby.
// badgerhold has no native geospatial index, so Nearby falls back to a
// full-table scan with haversine filtering; acceptable at this store's
// expected scale (a metro area's worth of pantries per deployment).
const earthRadiusMeters = 6371000.0

// PantryStorage implements interfaces.PantryStorage for Badger/badgerhold.
type PantryStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

func NewPantryStorage(db *BadgerDB, logger arbor.ILogger) interfaces.PantryStorage {
	return &PantryStorage{db: db, logger: logger}
}

var _ interfaces.PantryStorage = (*PantryStorage)(nil)

// Upsert inserts or updates by PlaceID, merging onto any existing record
// (models.Pantry.Merge) so a PlacesOnly pass never regresses a previously
// Enriched one.
//
// PlaceID carries a badgerholdUnique index, so the path for a record this
// call believes is new goes through Insert rather than Upsert: if a
// concurrent discovery already created the record between our GetByPlaceID
// check and the Insert, badgerhold reports ErrUniqueExists instead of
// silently producing two documents for the same place_id. The loser of
// that race re-fetches the winner, merges onto it, and retries once as an
// Upsert keyed by the winner's ID.
func (s *PantryStorage) Upsert(ctx context.Context, pantry models.Pantry) (models.Pantry, error) {
	existing, err := s.GetByPlaceID(ctx, pantry.PlaceID)
	if err != nil {
		return models.Pantry{}, fmt.Errorf("failed to check existing pantry: %w", err)
	}

	if existing != nil {
		merged := existing.Merge(pantry)
		merged.ID = existing.ID
		merged.LastUpdated = time.Now()
		if err := s.db.Store().Upsert(merged.ID, &merged); err != nil {
			return models.Pantry{}, fmt.Errorf("failed to upsert pantry: %w", err)
		}
		return merged, nil
	}

	candidate := pantry
	if candidate.ID == "" {
		candidate.ID = common.NewPantryID()
	}
	candidate.LastUpdated = time.Now()

	if err := s.db.Store().Insert(candidate.ID, &candidate); err != nil {
		if err != badgerhold.ErrUniqueExists {
			return models.Pantry{}, fmt.Errorf("failed to insert pantry: %w", err)
		}

		winner, getErr := s.GetByPlaceID(ctx, pantry.PlaceID)
		if getErr != nil {
			return models.Pantry{}, fmt.Errorf("failed to resolve unique conflict for place_id %s: %w", pantry.PlaceID, getErr)
		}
		if winner == nil {
			return models.Pantry{}, fmt.Errorf("unique conflict for place_id %s but no record found on retry", pantry.PlaceID)
		}

		merged := winner.Merge(pantry)
		merged.ID = winner.ID
		merged.LastUpdated = time.Now()
		if err := s.db.Store().Upsert(merged.ID, &merged); err != nil {
			return models.Pantry{}, fmt.Errorf("failed to upsert pantry after unique conflict: %w", err)
		}
		return merged, nil
	}
	return candidate, nil
}

func (s *PantryStorage) GetByPlaceID(ctx context.Context, placeID string) (*models.Pantry, error) {
	if placeID == "" {
		return nil, nil
	}
	var matches []models.Pantry
	if err := s.db.Store().Find(&matches, badgerhold.Where("PlaceID").Eq(placeID)); err != nil {
		return nil, fmt.Errorf("failed to query pantry by place_id: %w", err)
	}
	if len(matches) == 0 {
		return nil, nil
	}
	return &matches[0], nil
}

func (s *PantryStorage) GetByID(ctx context.Context, id string) (*models.Pantry, error) {
	var pantry models.Pantry
	if err := s.db.Store().Get(id, &pantry); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get pantry: %w", err)
	}
	return &pantry, nil
}

func (s *PantryStorage) ExistingPlaceIDs(ctx context.Context, placeIDs []string) (map[string]bool, error) {
	existing := make(map[string]bool, len(placeIDs))
	for _, id := range placeIDs {
		if id == "" {
			continue
		}
		pantry, err := s.GetByPlaceID(ctx, id)
		if err != nil {
			return nil, err
		}
		if pantry != nil {
			existing[id] = true
		}
	}
	return existing, nil
}

func (s *PantryStorage) List(ctx context.Context, opts interfaces.PantryListOptions) ([]models.Pantry, error) {
	query := badgerhold.Where("ID").Ne("")
	if opts.City != "" {
		query = badgerhold.Where("City").Eq(opts.City)
		if opts.State != "" {
			query = query.And("State").Eq(opts.State)
		}
	} else if opts.State != "" {
		query = badgerhold.Where("State").Eq(opts.State)
	}

	var pantries []models.Pantry
	if err := s.db.Store().Find(&pantries, query.SortBy("City", "Name")); err != nil {
		return nil, fmt.Errorf("failed to list pantries: %w", err)
	}
	return pantries, nil
}

func (s *PantryStorage) Nearby(ctx context.Context, query interfaces.NearbyQuery) ([]interfaces.NearbyResult, error) {
	var all []models.Pantry
	if err := s.db.Store().Find(&all, nil); err != nil {
		return nil, fmt.Errorf("failed to scan pantries for proximity query: %w", err)
	}

	results := make([]interfaces.NearbyResult, 0, len(all))
	for _, pantry := range all {
		dist := haversineMeters(query.Center, pantry.Point)
		if query.MaxDistance > 0 && dist > query.MaxDistance {
			continue
		}
		results = append(results, interfaces.NearbyResult{Pantry: pantry, DistanceM: dist})
	}

	sort.Slice(results, func(i, j int) bool { return results[i].DistanceM < results[j].DistanceM })

	if query.Limit > 0 && len(results) > query.Limit {
		results = results[:query.Limit]
	}
	return results, nil
}

func (s *PantryStorage) ListCities(ctx context.Context) ([]interfaces.CityGroup, error) {
	var all []models.Pantry
	if err := s.db.Store().Find(&all, nil); err != nil {
		return nil, fmt.Errorf("failed to scan pantries for city grouping: %w", err)
	}

	type accum struct {
		city   string
		state  string
		count  int
		sumLat float64
		sumLng float64
	}
	groups := make(map[string]*accum)
	for _, p := range all {
		if p.City == "" {
			continue
		}
		key := p.City + "|" + p.State
		g, ok := groups[key]
		if !ok {
			g = &accum{city: p.City, state: p.State}
			groups[key] = g
		}
		g.count++
		g.sumLat += p.Point.Lat
		g.sumLng += p.Point.Lng
	}

	keys := make([]string, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	out := make([]interfaces.CityGroup, 0, len(groups))
	for _, key := range keys {
		g := groups[key]
		out = append(out, interfaces.CityGroup{
			City:  g.city,
			State: g.state,
			Count: g.count,
			Center: models.Point{
				Lat: g.sumLat / float64(g.count),
				Lng: g.sumLng / float64(g.count),
			},
		})
	}
	return out, nil
}

func (s *PantryStorage) Count(ctx context.Context) (int, error) {
	count, err := s.db.Store().Count(&models.Pantry{}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to count pantries: %w", err)
	}
	return count, nil
}

// haversineMeters computes the great-circle distance between two points.
func haversineMeters(a, b models.Point) float64 {
	lat1, lat2 := toRadians(a.Lat), toRadians(b.Lat)
	dLat := toRadians(b.Lat - a.Lat)
	dLng := toRadians(b.Lng - a.Lng)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusMeters * c
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
