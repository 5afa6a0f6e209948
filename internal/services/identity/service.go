package identity

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tokenscope/internal/common"
	"github.com/ternarybob/tokenscope/internal/interfaces"
	"github.com/ternarybob/tokenscope/internal/models"
)

// Service records extractions against their identity keys and detects rotations.
// Updates for the same key are serialized; different keys run in parallel.
type Service struct {
	storage interfaces.CredentialStorage
	locks   *common.KeyedMutex
	logger  arbor.ILogger
	now     func() time.Time
}

// NewService creates a new identity service
func NewService(storage interfaces.CredentialStorage, logger arbor.ILogger) *Service {
	return &Service{
		storage: storage,
		locks:   common.NewKeyedMutex(),
		logger:  logger,
		now:     time.Now,
	}
}

// Update records one observation of extraction under key.
// A new key creates an entry with rotationCount 0. The same value refreshes
// lastSeenAt only. A different value snapshots the old one into the expired
// list and bumps rotationCount. Every call prepends a history entry.
func (s *Service) Update(ctx context.Context, key string, extraction *models.Extraction) (*interfaces.UpdateResult, error) {
	if key == "" {
		return nil, fmt.Errorf("identity key cannot be empty")
	}
	if extraction == nil {
		return nil, fmt.Errorf("extraction cannot be nil")
	}

	unlock := s.locks.Lock(key)
	defer unlock()

	var result *interfaces.UpdateResult
	err := s.storage.UpdateState(ctx, func(state *models.CredentialState) error {
		now := s.now()
		result = &interfaces.UpdateResult{}
		event := models.HistoryEventCapture

		existing, found := state.Credentials[key]
		switch {
		case !found:
			result.Stored = models.NewStoredCredential(key, extraction, now)

		case existing.Value == extraction.Value:
			refreshed := *existing
			refreshed.LastSeenAt = now
			result.Stored = &refreshed

		default:
			result.Previous = &models.ExpiredToken{
				Key:           key,
				Type:          existing.Type,
				Value:         existing.Value,
				Source:        existing.Source,
				CapturedAt:    existing.CapturedAt,
				ExpiredAt:     now,
				RotationCount: existing.RotationCount,
			}
			state.PrependExpired(result.Previous)
			result.Stored = existing.Rotate(extraction, now)
			result.RotationDetected = true
			event = models.HistoryEventRotation
		}

		state.Credentials[key] = result.Stored
		state.PrependHistory(&models.HistoryEntry{
			ID:        common.NewHistoryID(),
			Key:       key,
			Type:      extraction.Type,
			Value:     extraction.Value,
			Source:    extraction.Source,
			Timestamp: now,
			Event:     event,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug().
		Str("key", key).
		Bool("rotated", result.RotationDetected).
		Int("rotation_count", result.Stored.RotationCount).
		Str("fingerprint", common.Fingerprint(result.Stored.Value)).
		Msg("Credential updated")

	return result, nil
}

// GetAll returns every active credential keyed by identity key
func (s *Service) GetAll(ctx context.Context) (map[string]*models.StoredCredential, error) {
	return s.storage.GetCredentials(ctx)
}

// List returns every active credential, most recently seen first
func (s *Service) List(ctx context.Context) ([]*models.StoredCredential, error) {
	credentials, err := s.storage.GetCredentials(ctx)
	if err != nil {
		return nil, err
	}

	list := make([]*models.StoredCredential, 0, len(credentials))
	for _, c := range credentials {
		list = append(list, c)
	}
	sort.Slice(list, func(i, j int) bool {
		if !list[i].LastSeenAt.Equal(list[j].LastSeenAt) {
			return list[i].LastSeenAt.After(list[j].LastSeenAt)
		}
		return list[i].Key < list[j].Key
	})
	return list, nil
}

// Get returns the credential stored under key
func (s *Service) Get(ctx context.Context, key string) (*models.StoredCredential, error) {
	credentials, err := s.storage.GetCredentials(ctx)
	if err != nil {
		return nil, err
	}
	credential, ok := credentials[key]
	if !ok {
		return nil, interfaces.ErrCredentialNotFound
	}
	return credential, nil
}

// Remove deletes a single credential. Its history and expired snapshots stay.
func (s *Service) Remove(ctx context.Context, key string) error {
	unlock := s.locks.Lock(key)
	defer unlock()

	err := s.storage.UpdateState(ctx, func(state *models.CredentialState) error {
		if _, ok := state.Credentials[key]; !ok {
			return interfaces.ErrCredentialNotFound
		}
		delete(state.Credentials, key)
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info().Str("key", key).Msg("Credential removed")
	return nil
}

// Clear deletes every active credential
func (s *Service) Clear(ctx context.Context) error {
	return s.storage.ClearCredentials(ctx)
}

// History returns the capture log, most recent first
func (s *Service) History(ctx context.Context) ([]*models.HistoryEntry, error) {
	return s.storage.GetHistory(ctx)
}

func (s *Service) ClearHistory(ctx context.Context) error {
	return s.storage.ClearHistory(ctx)
}

// ExpiredTokens returns rotated-out values, most recent first
func (s *Service) ExpiredTokens(ctx context.Context) ([]*models.ExpiredToken, error) {
	return s.storage.GetExpiredTokens(ctx)
}

func (s *Service) ClearExpiredTokens(ctx context.Context) error {
	return s.storage.ClearExpiredTokens(ctx)
}
