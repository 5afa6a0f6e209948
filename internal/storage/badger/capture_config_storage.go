package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tokenscope/internal/interfaces"
	"github.com/ternarybob/tokenscope/internal/models"
)

// CaptureConfigStorage keeps the capture configuration document
type CaptureConfigStorage struct {
	kv     interfaces.KeyValueStorage
	logger arbor.ILogger
}

// NewCaptureConfigStorage creates a new CaptureConfigStorage instance
func NewCaptureConfigStorage(kv interfaces.KeyValueStorage, logger arbor.ILogger) interfaces.CaptureConfigStorage {
	return &CaptureConfigStorage{
		kv:     kv,
		logger: logger,
	}
}

// GetCaptureConfig returns interfaces.ErrKeyNotFound when no config has been saved
func (s *CaptureConfigStorage) GetCaptureConfig(ctx context.Context) (*models.CaptureConfig, error) {
	config := models.NewDefaultCaptureConfig()
	found, err := loadDocument(ctx, s.kv, interfaces.KeyCaptureConfig, config)
	if err != nil {
		return nil, fmt.Errorf("failed to load capture config: %w", err)
	}
	if !found {
		return nil, interfaces.ErrKeyNotFound
	}
	return config, nil
}

func (s *CaptureConfigStorage) SaveCaptureConfig(ctx context.Context, config *models.CaptureConfig) error {
	_, err := s.UpdateCaptureConfig(ctx, func(current *models.CaptureConfig) error {
		*current = *config.Clone()
		return nil
	})
	return err
}

func (s *CaptureConfigStorage) UpdateCaptureConfig(ctx context.Context, fn func(config *models.CaptureConfig) error) (*models.CaptureConfig, error) {
	var result *models.CaptureConfig

	err := s.kv.Update(ctx, []string{interfaces.KeyCaptureConfig}, func(values map[string]string) (map[string]string, error) {
		config := models.NewDefaultCaptureConfig()
		if err := decodeDocument(values, interfaces.KeyCaptureConfig, config); err != nil {
			return nil, err
		}

		if err := fn(config); err != nil {
			return nil, err
		}
		if err := config.Validate(); err != nil {
			return nil, err
		}

		updated := make(map[string]string, 1)
		if err := encodeDocument(updated, interfaces.KeyCaptureConfig, config); err != nil {
			return nil, err
		}
		result = config
		return updated, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update capture config: %w", err)
	}

	s.logger.Debug().
		Bool("enabled", result.Enabled).
		Int("custom_rules", len(result.CustomRules)).
		Msg("Capture config saved")
	return result, nil
}
