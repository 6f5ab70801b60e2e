package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/quaero/internal/interfaces"
	"github.com/ternarybob/quaero/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// PlacesCacheStorage implements interfaces.PlacesCacheStorage for
// Badger/badgerhold, keyed by content-addressed fingerprint.
type PlacesCacheStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

func NewPlacesCacheStorage(db *BadgerDB, logger arbor.ILogger) interfaces.PlacesCacheStorage {
	return &PlacesCacheStorage{db: db, logger: logger}
}

var _ interfaces.PlacesCacheStorage = (*PlacesCacheStorage)(nil)

func (s *PlacesCacheStorage) Get(ctx context.Context, fingerprint string) (*models.PlacesCacheEntry, bool, error) {
	var entry models.PlacesCacheEntry
	err := s.db.Store().Get(fingerprint, &entry)
	if err == badgerhold.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get places cache entry: %w", err)
	}
	return &entry, true, nil
}

func (s *PlacesCacheStorage) Put(ctx context.Context, entry models.PlacesCacheEntry) error {
	if err := s.db.Store().Upsert(entry.Fingerprint, &entry); err != nil {
		return fmt.Errorf("failed to put places cache entry: %w", err)
	}
	return nil
}

// Sweep deletes every entry older than ttl, returning the count removed. Run
// periodically by the orchestrator's cron-scheduled housekeeping (§4.6).
func (s *PlacesCacheStorage) Sweep(ctx context.Context, ttl time.Duration) (int, error) {
	cutoff := time.Now().Add(-ttl)

	var stale []models.PlacesCacheEntry
	if err := s.db.Store().Find(&stale, badgerhold.Where("CreatedAt").Lt(cutoff)); err != nil {
		return 0, fmt.Errorf("failed to find stale places cache entries: %w", err)
	}

	removed := 0
	for _, entry := range stale {
		if err := s.db.Store().Delete(entry.Fingerprint, &models.PlacesCacheEntry{}); err != nil {
			s.logger.Warn().Err(err).Str("fingerprint", entry.Fingerprint).Msg("failed to delete stale places cache entry")
			continue
		}
		removed++
	}

	if removed > 0 {
		s.logger.Info().Int("count", removed).Msg("swept expired places cache entries")
	}
	return removed, nil
}
