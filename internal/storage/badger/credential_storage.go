package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tokenscope/internal/interfaces"
	"github.com/ternarybob/tokenscope/internal/models"
)

// CredentialStorage keeps the credentials, expired tokens and history documents
type CredentialStorage struct {
	kv     interfaces.KeyValueStorage
	logger arbor.ILogger
}

// NewCredentialStorage creates a new CredentialStorage instance
func NewCredentialStorage(kv interfaces.KeyValueStorage, logger arbor.ILogger) interfaces.CredentialStorage {
	return &CredentialStorage{
		kv:     kv,
		logger: logger,
	}
}

func (s *CredentialStorage) GetCredentials(ctx context.Context) (map[string]*models.StoredCredential, error) {
	credentials := make(map[string]*models.StoredCredential)
	if _, err := loadDocument(ctx, s.kv, interfaces.KeyCredentials, &credentials); err != nil {
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}
	return credentials, nil
}

func (s *CredentialStorage) GetExpiredTokens(ctx context.Context) ([]*models.ExpiredToken, error) {
	tokens := []*models.ExpiredToken{}
	if _, err := loadDocument(ctx, s.kv, interfaces.KeyExpiredTokens, &tokens); err != nil {
		return nil, fmt.Errorf("failed to load expired tokens: %w", err)
	}
	return tokens, nil
}

func (s *CredentialStorage) GetHistory(ctx context.Context) ([]*models.HistoryEntry, error) {
	history := []*models.HistoryEntry{}
	if _, err := loadDocument(ctx, s.kv, interfaces.KeyHistory, &history); err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	return history, nil
}

// UpdateState loads all three documents, applies fn and writes them back in one transaction
func (s *CredentialStorage) UpdateState(ctx context.Context, fn func(state *models.CredentialState) error) error {
	keys := []string{interfaces.KeyCredentials, interfaces.KeyExpiredTokens, interfaces.KeyHistory}

	err := s.kv.Update(ctx, keys, func(values map[string]string) (map[string]string, error) {
		state := &models.CredentialState{
			Credentials:   make(map[string]*models.StoredCredential),
			ExpiredTokens: []*models.ExpiredToken{},
			History:       []*models.HistoryEntry{},
		}
		if err := decodeDocument(values, interfaces.KeyCredentials, &state.Credentials); err != nil {
			return nil, err
		}
		if err := decodeDocument(values, interfaces.KeyExpiredTokens, &state.ExpiredTokens); err != nil {
			return nil, err
		}
		if err := decodeDocument(values, interfaces.KeyHistory, &state.History); err != nil {
			return nil, err
		}

		if err := fn(state); err != nil {
			return nil, err
		}

		updated := make(map[string]string, len(keys))
		if err := encodeDocument(updated, interfaces.KeyCredentials, state.Credentials); err != nil {
			return nil, err
		}
		if err := encodeDocument(updated, interfaces.KeyExpiredTokens, state.ExpiredTokens); err != nil {
			return nil, err
		}
		if err := encodeDocument(updated, interfaces.KeyHistory, state.History); err != nil {
			return nil, err
		}
		return updated, nil
	})
	if err != nil {
		return fmt.Errorf("failed to update credential state: %w", err)
	}
	return nil
}

func (s *CredentialStorage) ClearCredentials(ctx context.Context) error {
	return s.replace(ctx, interfaces.KeyCredentials, map[string]*models.StoredCredential{})
}

func (s *CredentialStorage) ClearExpiredTokens(ctx context.Context) error {
	return s.replace(ctx, interfaces.KeyExpiredTokens, []*models.ExpiredToken{})
}

func (s *CredentialStorage) ClearHistory(ctx context.Context) error {
	return s.replace(ctx, interfaces.KeyHistory, []*models.HistoryEntry{})
}

func (s *CredentialStorage) replace(ctx context.Context, key string, empty interface{}) error {
	err := s.kv.Update(ctx, []string{key}, func(map[string]string) (map[string]string, error) {
		updated := make(map[string]string, 1)
		if err := encodeDocument(updated, key, empty); err != nil {
			return nil, err
		}
		return updated, nil
	})
	if err != nil {
		return fmt.Errorf("failed to clear %s: %w", key, err)
	}
	s.logger.Info().Str("key", key).Msg("Cleared credential document")
	return nil
}
