package interfaces

import (
	"context"

	"github.com/ternarybob/tokenscope/internal/models"
)

// CredentialStorage persists the active credentials, expired tokens and
// capture history documents
type CredentialStorage interface {
	GetCredentials(ctx context.Context) (map[string]*models.StoredCredential, error)
	GetExpiredTokens(ctx context.Context) ([]*models.ExpiredToken, error)
	GetHistory(ctx context.Context) ([]*models.HistoryEntry, error)

	// UpdateState loads all three documents, applies fn and writes them back atomically
	UpdateState(ctx context.Context, fn func(state *models.CredentialState) error) error

	ClearCredentials(ctx context.Context) error
	ClearExpiredTokens(ctx context.Context) error
	ClearHistory(ctx context.Context) error
}

// UsageStorage persists the per-page endpoint usage document
type UsageStorage interface {
	GetEndpointUsage(ctx context.Context) (map[string]*models.PageUsage, error)

	// UpdateEndpointUsage loads the usage map, applies fn and writes it back atomically
	UpdateEndpointUsage(ctx context.Context, fn func(usage map[string]*models.PageUsage) error) error
}

// CaptureConfigStorage persists the capture configuration document
type CaptureConfigStorage interface {
	// GetCaptureConfig returns ErrKeyNotFound when nothing has been saved yet
	GetCaptureConfig(ctx context.Context) (*models.CaptureConfig, error)
	SaveCaptureConfig(ctx context.Context, config *models.CaptureConfig) error

	// UpdateCaptureConfig loads the config (defaults when absent), applies fn and writes it back atomically
	UpdateCaptureConfig(ctx context.Context, fn func(config *models.CaptureConfig) error) (*models.CaptureConfig, error)
}

// StorageManager - interface for managing storage backends
type StorageManager interface {
	KeyValueStorage() KeyValueStorage
	CredentialStorage() CredentialStorage
	UsageStorage() UsageStorage
	CaptureConfigStorage() CaptureConfigStorage

	// LoadRulesFromFiles upserts custom rules from TOML/YAML files into the capture config
	LoadRulesFromFiles(ctx context.Context, dirPath string) error

	// RunGarbageCollection reclaims space in the value log, returning the number of rewritten files
	RunGarbageCollection(discardRatio float64) (int, error)

	DB() interface{}
	Close() error
}
