package badger

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/munio/internal/common"
	"github.com/ternarybob/munio/internal/interfaces"
)

// Manager implements the StorageManager interface for Badger
type Manager struct {
	db       *BadgerDB
	template interfaces.TemplateStorage
	secret   interfaces.SecretStorage
	run      interfaces.RunStorage
	logger   arbor.ILogger
}

// NewManager creates a new Badger storage manager
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (interfaces.StorageManager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	manager := &Manager{
		db:       db,
		template: NewTemplateStorage(db, logger),
		secret:   NewSecretStorage(db, logger),
		run:      NewRunStorage(db, logger),
		logger:   logger,
	}

	logger.Info().Msg("Badger storage manager initialized")

	return manager, nil
}

// TemplateStorage returns the Template storage interface
func (m *Manager) TemplateStorage() interfaces.TemplateStorage {
	return m.template
}

// SecretStorage returns the Secret storage interface
func (m *Manager) SecretStorage() interfaces.SecretStorage {
	return m.secret
}

// RunStorage returns the analysis run storage interface
func (m *Manager) RunStorage() interfaces.RunStorage {
	return m.run
}

// DB returns the underlying database connection
func (m *Manager) DB() interface{} {
	if m.db != nil {
		return m.db.Store()
	}
	return nil
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}

var _ interfaces.StorageManager = (*Manager)(nil)
