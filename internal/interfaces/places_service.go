package interfaces

import (
	"context"

	"github.com/ternarybob/quaero/internal/models"
)

// PlacesClient turns a geo query plus a set of query variants into a
// deduplicated, TTL-cached CandidateSet (spec §4.1).
type PlacesClient interface {
	FindCandidates(ctx context.Context, center models.Point, radiusMeters int, variants []string) (models.CandidateSet, error)
}
