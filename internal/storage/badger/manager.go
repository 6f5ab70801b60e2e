package badger

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/quaero/internal/common"
	"github.com/ternarybob/quaero/internal/interfaces"
)

// Manager implements interfaces.StorageManager for Badger.
type Manager struct {
	db          *BadgerDB
	pantry      interfaces.PantryStorage
	placesCache interfaces.PlacesCacheStorage
	kv          interfaces.KeyValueStorage
	logger      arbor.ILogger
}

// NewManager creates a new Badger storage manager.
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (interfaces.StorageManager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	manager := &Manager{
		db:          db,
		pantry:      NewPantryStorage(db, logger),
		placesCache: NewPlacesCacheStorage(db, logger),
		kv:          NewKVStorage(db, logger),
		logger:      logger,
	}

	logger.Info().Msg("Badger storage manager initialized")
	return manager, nil
}

func (m *Manager) PantryStorage() interfaces.PantryStorage {
	return m.pantry
}

func (m *Manager) PlacesCacheStorage() interfaces.PlacesCacheStorage {
	return m.placesCache
}

func (m *Manager) KeyValueStorage() interfaces.KeyValueStorage {
	return m.kv
}

func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
