package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tokenscope/internal/interfaces"
	"github.com/ternarybob/tokenscope/internal/models"
)

// Service manages the persisted capture configuration. Every change is
// published synchronously as capture_config_changed so listeners have
// reloaded before the call returns.
type Service struct {
	storage  interfaces.CaptureConfigStorage
	eventSvc interfaces.EventService
	seed     *models.CaptureConfig
	logger   arbor.ILogger
	mu       sync.RWMutex
	cached   *models.CaptureConfig
}

// NewService creates a new capture config service. seed is saved on first
// run when nothing has been persisted yet.
func NewService(
	storage interfaces.CaptureConfigStorage,
	eventSvc interfaces.EventService,
	seed *models.CaptureConfig,
	logger arbor.ILogger,
) (*Service, error) {
	if storage == nil {
		return nil, fmt.Errorf("storage cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if seed == nil {
		seed = models.NewDefaultCaptureConfig()
	}

	return &Service{
		storage:  storage,
		eventSvc: eventSvc,
		seed:     seed.Clone(),
		logger:   logger,
	}, nil
}

// Initialize persists the seed when no config exists and returns the active config
func (s *Service) Initialize(ctx context.Context) (*models.CaptureConfig, error) {
	config, err := s.storage.GetCaptureConfig(ctx)
	if errors.Is(err, interfaces.ErrKeyNotFound) {
		s.logger.Info().Msg("No capture config stored, saving defaults from configuration file")
		if err := s.storage.SaveCaptureConfig(ctx, s.seed); err != nil {
			return nil, fmt.Errorf("failed to seed capture config: %w", err)
		}
		config = s.seed.Clone()
	} else if err != nil {
		return nil, err
	}

	s.setCache(config)
	return config.Clone(), nil
}

// InvalidateCache forces the next GetConfig to read storage
func (s *Service) InvalidateCache() {
	s.mu.Lock()
	s.cached = nil
	s.mu.Unlock()
}

func (s *Service) setCache(config *models.CaptureConfig) {
	s.mu.Lock()
	s.cached = config.Clone()
	s.mu.Unlock()
}

// GetConfig returns a copy of the active capture config
func (s *Service) GetConfig(ctx context.Context) (*models.CaptureConfig, error) {
	s.mu.RLock()
	if s.cached != nil {
		config := s.cached.Clone()
		s.mu.RUnlock()
		return config, nil
	}
	s.mu.RUnlock()

	config, err := s.storage.GetCaptureConfig(ctx)
	if errors.Is(err, interfaces.ErrKeyNotFound) {
		return s.seed.Clone(), nil
	}
	if err != nil {
		return nil, err
	}

	s.setCache(config)
	return config.Clone(), nil
}

// SetConfig replaces the whole config
func (s *Service) SetConfig(ctx context.Context, config *models.CaptureConfig) (*models.CaptureConfig, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrInvalidConfig, err)
	}

	return s.update(ctx, "set", func(current *models.CaptureConfig) error {
		*current = *config.Clone()
		return nil
	})
}

// ListRules returns the custom rules in registration order
func (s *Service) ListRules(ctx context.Context) ([]models.CustomRule, error) {
	config, err := s.GetConfig(ctx)
	if err != nil {
		return nil, err
	}
	return config.CustomRules, nil
}

// AddRule appends a new custom rule; names are unique ignoring case
func (s *Service) AddRule(ctx context.Context, rule models.CustomRule) (*models.CaptureConfig, error) {
	rule = normalizeRule(rule)
	if err := rule.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrInvalidConfig, err)
	}

	return s.update(ctx, "add_rule", func(config *models.CaptureConfig) error {
		if config.FindRule(rule.Name) >= 0 {
			return fmt.Errorf("%w: %s", interfaces.ErrRuleExists, rule.Name)
		}
		config.CustomRules = append(config.CustomRules, rule)
		return nil
	})
}

// UpdateRule replaces the named rule in place. The rule may be renamed as
// long as the new name is free.
func (s *Service) UpdateRule(ctx context.Context, name string, rule models.CustomRule) (*models.CaptureConfig, error) {
	rule = normalizeRule(rule)
	if rule.Name == "" {
		rule.Name = name
	}
	if err := rule.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrInvalidConfig, err)
	}

	return s.update(ctx, "update_rule", func(config *models.CaptureConfig) error {
		idx := config.FindRule(name)
		if idx < 0 {
			return fmt.Errorf("%w: %s", interfaces.ErrRuleNotFound, name)
		}
		if other := config.FindRule(rule.Name); other >= 0 && other != idx {
			return fmt.Errorf("%w: %s", interfaces.ErrRuleExists, rule.Name)
		}
		config.CustomRules[idx] = rule
		return nil
	})
}

// RemoveRule deletes the named rule
func (s *Service) RemoveRule(ctx context.Context, name string) (*models.CaptureConfig, error) {
	return s.update(ctx, "remove_rule", func(config *models.CaptureConfig) error {
		idx := config.FindRule(name)
		if idx < 0 {
			return fmt.Errorf("%w: %s", interfaces.ErrRuleNotFound, name)
		}
		config.CustomRules = append(config.CustomRules[:idx], config.CustomRules[idx+1:]...)
		return nil
	})
}

func (s *Service) update(ctx context.Context, op string, fn func(config *models.CaptureConfig) error) (*models.CaptureConfig, error) {
	config, err := s.storage.UpdateCaptureConfig(ctx, fn)
	if err != nil {
		s.logger.Warn().Err(err).Str("op", op).Msg("Capture config update rejected")
		return nil, err
	}

	s.setCache(config)
	s.logger.Info().Str("op", op).Int("custom_rules", len(config.CustomRules)).Msg("Capture config updated")

	if s.eventSvc != nil {
		event := interfaces.Event{Type: interfaces.EventCaptureConfigChanged, Payload: config.Clone()}
		if err := s.eventSvc.PublishSync(ctx, event); err != nil {
			s.logger.Warn().Err(err).Msg("Capture config listeners failed")
		}
	}

	return config.Clone(), nil
}

func normalizeRule(rule models.CustomRule) models.CustomRule {
	rule.Name = strings.TrimSpace(rule.Name)
	rule.Method = strings.ToUpper(strings.TrimSpace(rule.Method))
	rule.ExtractFrom = models.ExtractFrom(strings.ToLower(string(rule.ExtractFrom)))
	return rule
}
