package badger

import (
	"context"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tokenscope/internal/common"
	"github.com/ternarybob/tokenscope/internal/interfaces"
)

// Manager implements the StorageManager interface for Badger
type Manager struct {
	db            *BadgerDB
	kv            interfaces.KeyValueStorage
	credential    interfaces.CredentialStorage
	usage         interfaces.UsageStorage
	captureConfig interfaces.CaptureConfigStorage
	logger        arbor.ILogger
}

// NewManager creates a new Badger storage manager
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (interfaces.StorageManager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	kv := NewKVStorage(db, logger)
	manager := &Manager{
		db:            db,
		kv:            kv,
		credential:    NewCredentialStorage(kv, logger),
		usage:         NewUsageStorage(kv, logger),
		captureConfig: NewCaptureConfigStorage(kv, logger),
		logger:        logger,
	}

	logger.Info().Msg("Badger storage manager initialized")

	return manager, nil
}

// KeyValueStorage returns the KeyValue storage interface
func (m *Manager) KeyValueStorage() interfaces.KeyValueStorage {
	return m.kv
}

// CredentialStorage returns the credential document storage
func (m *Manager) CredentialStorage() interfaces.CredentialStorage {
	return m.credential
}

// UsageStorage returns the endpoint usage document storage
func (m *Manager) UsageStorage() interfaces.UsageStorage {
	return m.usage
}

// CaptureConfigStorage returns the capture config document storage
func (m *Manager) CaptureConfigStorage() interfaces.CaptureConfigStorage {
	return m.captureConfig
}

// LoadRulesFromFiles loads custom rules from TOML/YAML files
func (m *Manager) LoadRulesFromFiles(ctx context.Context, dirPath string) error {
	return LoadRulesFromFiles(ctx, m.captureConfig, dirPath, m.logger)
}

// RunGarbageCollection reclaims value log space
func (m *Manager) RunGarbageCollection(discardRatio float64) (int, error) {
	return m.db.RunValueLogGC(discardRatio)
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
