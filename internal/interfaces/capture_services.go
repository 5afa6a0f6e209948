package interfaces

import (
	"context"

	"github.com/ternarybob/tokenscope/internal/models"
)

// UpdateResult is the outcome of recording one extraction
type UpdateResult struct {
	Stored           *models.StoredCredential
	RotationDetected bool
	Previous         *models.ExpiredToken
}

// CredentialService owns credential identity, rotation detection and the
// credential query operations
type CredentialService interface {
	Update(ctx context.Context, key string, extraction *models.Extraction) (*UpdateResult, error)

	GetAll(ctx context.Context) (map[string]*models.StoredCredential, error)
	List(ctx context.Context) ([]*models.StoredCredential, error)
	Get(ctx context.Context, key string) (*models.StoredCredential, error)
	Remove(ctx context.Context, key string) error
	Clear(ctx context.Context) error

	History(ctx context.Context) ([]*models.HistoryEntry, error)
	ClearHistory(ctx context.Context) error
	ExpiredTokens(ctx context.Context) ([]*models.ExpiredToken, error)
	ClearExpiredTokens(ctx context.Context) error
}

// TrackRequest is the part of a request the usage aggregator looks at
type TrackRequest struct {
	URL     string
	Method  string
	Headers []models.Header
}

// UsageService aggregates API endpoint usage per page domain
type UsageService interface {
	Track(ctx context.Context, pageDomain string, req TrackRequest) error

	GetUsage(ctx context.Context, pageDomain string) (*models.PageUsage, error)
	TrackedDomains(ctx context.Context) ([]*models.TrackedDomain, error)
	Clear(ctx context.Context, pageDomain string) error
	ClearAll(ctx context.Context) error
}

// CaptureConfigService manages the persisted capture configuration and
// announces every change on the event bus
type CaptureConfigService interface {
	GetConfig(ctx context.Context) (*models.CaptureConfig, error)
	SetConfig(ctx context.Context, config *models.CaptureConfig) (*models.CaptureConfig, error)

	ListRules(ctx context.Context) ([]models.CustomRule, error)
	AddRule(ctx context.Context, rule models.CustomRule) (*models.CaptureConfig, error)
	UpdateRule(ctx context.Context, name string, rule models.CustomRule) (*models.CaptureConfig, error)
	RemoveRule(ctx context.Context, name string) (*models.CaptureConfig, error)
}

// CaptureService runs intercepted requests through the capture pipeline
type CaptureService interface {
	HandleRequest(ctx context.Context, record *models.RequestRecord) (*CaptureResult, error)
}

// CaptureResult summarizes what the pipeline did with one request
type CaptureResult struct {
	Filtered    bool                   `json:"filtered"`
	Extractions int                    `json:"extractions"`
	Rotations   int                    `json:"rotations"`
	PageDomain  string                 `json:"pageDomain,omitempty"`
	Tracked     bool                   `json:"tracked"`
	Captured    []*models.CaptureEvent `json:"captured,omitempty"`
}
