package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/quaero/internal/models"
)

// PantryListOptions filters ListPantries.
type PantryListOptions struct {
	City  string
	State string
}

// NearbyQuery is the input to NearbyPantries.
type NearbyQuery struct {
	Center      models.Point
	MaxDistance float64 // meters
	Limit       int
}

// NearbyResult pairs a pantry with its distance from the query center.
type NearbyResult struct {
	Pantry      models.Pantry
	DistanceM   float64
}

// CityGroup is one entry of ListCities.
type CityGroup struct {
	City   string       `json:"city"`
	State  string       `json:"state"`
	Count  int          `json:"count"`
	Center models.Point `json:"center"`
}

// PantryStorage persists the canonical enriched pantry records, indexed by
// PlaceID (unique) and queryable by geographic proximity.
type PantryStorage interface {
	// Upsert inserts or updates by PlaceID. If a record already exists for
	// the PlaceID, fields on the incoming pantry are merged onto the stored
	// one (see models.Pantry.Merge) rather than overwriting wholesale, so a
	// PlacesOnly pass never regresses a previously Enriched record.
	Upsert(ctx context.Context, pantry models.Pantry) (models.Pantry, error)

	GetByPlaceID(ctx context.Context, placeID string) (*models.Pantry, error)
	GetByID(ctx context.Context, id string) (*models.Pantry, error)

	// ExistingPlaceIDs returns the subset of the given place IDs already
	// present in the store, used by StartJob to partition candidates.
	ExistingPlaceIDs(ctx context.Context, placeIDs []string) (map[string]bool, error)

	List(ctx context.Context, opts PantryListOptions) ([]models.Pantry, error)
	Nearby(ctx context.Context, query NearbyQuery) ([]NearbyResult, error)
	ListCities(ctx context.Context) ([]CityGroup, error)

	Count(ctx context.Context) (int, error)
}

// PlacesCacheStorage persists the content-addressed TTL cache of places
// provider results, keyed by fingerprint.
type PlacesCacheStorage interface {
	// Get returns the cache entry for fingerprint and whether it was found.
	// Callers are responsible for checking expiry via models.PlacesCacheEntry.Expired.
	Get(ctx context.Context, fingerprint string) (*models.PlacesCacheEntry, bool, error)

	// Put performs a single atomic replace of the entry for fingerprint.
	Put(ctx context.Context, entry models.PlacesCacheEntry) error

	// Sweep deletes all entries older than ttl, returning the count removed.
	Sweep(ctx context.Context, ttl time.Duration) (int, error)
}

// StorageManager is the composition root's handle on all persistent state.
type StorageManager interface {
	PantryStorage() PantryStorage
	PlacesCacheStorage() PlacesCacheStorage
	KeyValueStorage() KeyValueStorage
	Close() error
}
