package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tokenscope/internal/interfaces"
	"github.com/ternarybob/tokenscope/internal/models"
)

// UsageStorage keeps the endpoint usage document, one bucket per page domain
type UsageStorage struct {
	kv     interfaces.KeyValueStorage
	logger arbor.ILogger
}

// NewUsageStorage creates a new UsageStorage instance
func NewUsageStorage(kv interfaces.KeyValueStorage, logger arbor.ILogger) interfaces.UsageStorage {
	return &UsageStorage{
		kv:     kv,
		logger: logger,
	}
}

func (s *UsageStorage) GetEndpointUsage(ctx context.Context) (map[string]*models.PageUsage, error) {
	usage := make(map[string]*models.PageUsage)
	if _, err := loadDocument(ctx, s.kv, interfaces.KeyEndpointUsage, &usage); err != nil {
		return nil, fmt.Errorf("failed to load endpoint usage: %w", err)
	}
	return usage, nil
}

// UpdateEndpointUsage loads the usage map, applies fn and writes it back in one transaction
func (s *UsageStorage) UpdateEndpointUsage(ctx context.Context, fn func(usage map[string]*models.PageUsage) error) error {
	err := s.kv.Update(ctx, []string{interfaces.KeyEndpointUsage}, func(values map[string]string) (map[string]string, error) {
		usage := make(map[string]*models.PageUsage)
		if err := decodeDocument(values, interfaces.KeyEndpointUsage, &usage); err != nil {
			return nil, err
		}

		if err := fn(usage); err != nil {
			return nil, err
		}

		updated := make(map[string]string, 1)
		if err := encodeDocument(updated, interfaces.KeyEndpointUsage, usage); err != nil {
			return nil, err
		}
		return updated, nil
	})
	if err != nil {
		return fmt.Errorf("failed to update endpoint usage: %w", err)
	}
	return nil
}
