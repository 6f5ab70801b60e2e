package orchestrator

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/ternarybob/quaero/internal/interfaces"
	"github.com/ternarybob/quaero/internal/models"
)

// earthRadiusMeters mirrors internal/storage/badger/pantry_storage.go's
// haversine constant, duplicated here since that helper is unexported
// across packages.
const earthRadiusMeters = 6371000.0

// haversineMeters computes the great-circle distance between two points,
// matching the real PantryStorage.Nearby implementation closely enough for
// ordering assertions in these tests.
func haversineMeters(a, b models.Point) float64 {
	toRadians := func(deg float64) float64 { return deg * math.Pi / 180 }
	lat1, lat2 := toRadians(a.Lat), toRadians(b.Lat)
	dLat := toRadians(b.Lat - a.Lat)
	dLng := toRadians(b.Lng - a.Lng)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusMeters * c
}

// fakePantryStorage is a minimal in-memory interfaces.PantryStorage, good
// enough to exercise the orchestrator's upsert/partition/query logic
// without a real Badger instance.
type fakePantryStorage struct {
	mu      sync.Mutex
	byID    map[string]models.Pantry
	byPlace map[string]string // place_id -> id
	idSeq   int
}

func newFakePantryStorage() *fakePantryStorage {
	return &fakePantryStorage{byID: map[string]models.Pantry{}, byPlace: map[string]string{}}
}

func (f *fakePantryStorage) Upsert(ctx context.Context, pantry models.Pantry) (models.Pantry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if id, ok := f.byPlace[pantry.PlaceID]; ok {
		existing := f.byID[id]
		merged := existing.Merge(pantry)
		merged.ID = id
		f.byID[id] = merged
		return merged, nil
	}

	f.idSeq++
	pantry.ID = fmt.Sprintf("pantry_%d", f.idSeq)
	f.byID[pantry.ID] = pantry
	f.byPlace[pantry.PlaceID] = pantry.ID
	return pantry, nil
}

func (f *fakePantryStorage) GetByPlaceID(ctx context.Context, placeID string) (*models.Pantry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.byPlace[placeID]
	if !ok {
		return nil, nil
	}
	p := f.byID[id]
	return &p, nil
}

func (f *fakePantryStorage) GetByID(ctx context.Context, id string) (*models.Pantry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.byID[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (f *fakePantryStorage) ExistingPlaceIDs(ctx context.Context, placeIDs []string) (map[string]bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string]bool{}
	for _, id := range placeIDs {
		if _, ok := f.byPlace[id]; ok {
			out[id] = true
		}
	}
	return out, nil
}

func (f *fakePantryStorage) List(ctx context.Context, opts interfaces.PantryListOptions) ([]models.Pantry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Pantry, 0, len(f.byID))
	for _, p := range f.byID {
		if opts.City != "" && p.City != opts.City {
			continue
		}
		if opts.State != "" && p.State != opts.State {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *fakePantryStorage) Nearby(ctx context.Context, query interfaces.NearbyQuery) ([]interfaces.NearbyResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]interfaces.NearbyResult, 0, len(f.byID))
	for _, p := range f.byID {
		dist := haversineMeters(query.Center, p.Point)
		if query.MaxDistance > 0 && dist > query.MaxDistance {
			continue
		}
		out = append(out, interfaces.NearbyResult{Pantry: p, DistanceM: dist})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DistanceM < out[j].DistanceM })
	if query.Limit > 0 && len(out) > query.Limit {
		out = out[:query.Limit]
	}
	return out, nil
}

func (f *fakePantryStorage) ListCities(ctx context.Context) ([]interfaces.CityGroup, error) {
	return nil, nil
}

func (f *fakePantryStorage) Count(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.byID), nil
}

func (f *fakePantryStorage) snapshot() []models.Pantry {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Pantry, 0, len(f.byID))
	for _, p := range f.byID {
		out = append(out, p)
	}
	return out
}

type fakeStorageManager struct {
	pantries *fakePantryStorage
	cache    interfaces.PlacesCacheStorage
}

func newFakeStorageManager() *fakeStorageManager {
	return &fakeStorageManager{pantries: newFakePantryStorage(), cache: noopPlacesCache{}}
}

func (f *fakeStorageManager) PantryStorage() interfaces.PantryStorage           { return f.pantries }
func (f *fakeStorageManager) PlacesCacheStorage() interfaces.PlacesCacheStorage { return f.cache }
func (f *fakeStorageManager) KeyValueStorage() interfaces.KeyValueStorage       { return nil }
func (f *fakeStorageManager) Close() error                                     { return nil }

type noopPlacesCache struct{}

func (noopPlacesCache) Get(ctx context.Context, fingerprint string) (*models.PlacesCacheEntry, bool, error) {
	return nil, false, nil
}
func (noopPlacesCache) Put(ctx context.Context, entry models.PlacesCacheEntry) error { return nil }
func (noopPlacesCache) Sweep(ctx context.Context, ttl time.Duration) (int, error)    { return 0, nil }

// fakePlacesClient returns a fixed CandidateSet or error, ignoring its
// fingerprint cache entirely (that behavior is the real Client's concern,
// already covered by internal/services/places tests).
type fakePlacesClient struct {
	set models.CandidateSet
	err error
}

func (f *fakePlacesClient) FindCandidates(ctx context.Context, center models.Point, radiusMeters int, variants []string) (models.CandidateSet, error) {
	if f.err != nil {
		return models.CandidateSet{}, f.err
	}
	return f.set, nil
}
