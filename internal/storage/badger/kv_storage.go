package badger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tokenscope/internal/interfaces"
	"github.com/timshannon/badgerhold/v4"
)

// KVStorage implements the KeyValueStorage interface for Badger.
// Writers are serialized so read-modify-write cycles never interleave.
type KVStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
	mu     sync.Mutex
	now    func() time.Time
}

// NewKVStorage creates a new KVStorage instance
func NewKVStorage(db *BadgerDB, logger arbor.ILogger) *KVStorage {
	return &KVStorage{
		db:     db,
		logger: logger,
		now:    time.Now,
	}
}

// normalizeKey trims surrounding whitespace; keys keep their case
func normalizeKey(key string) string {
	return strings.TrimSpace(key)
}

// Get retrieves a value by key
func (s *KVStorage) Get(ctx context.Context, key string) (string, error) {
	pair, err := s.GetPair(ctx, key)
	if err != nil {
		return "", err
	}
	return pair.Value, nil
}

// GetPair retrieves a full KeyValuePair by key
func (s *KVStorage) GetPair(ctx context.Context, key string) (*interfaces.KeyValuePair, error) {
	var pair interfaces.KeyValuePair
	err := s.db.Store().Get(normalizeKey(key), &pair)
	if errors.Is(err, badgerhold.ErrNotFound) {
		return nil, interfaces.ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get key/value pair: %w", err)
	}

	return &pair, nil
}

// Set inserts or updates a key/value pair
func (s *KVStorage) Set(ctx context.Context, key string, value string, description string) error {
	return s.update([]string{key}, func(values map[string]string) (map[string]string, error) {
		return map[string]string{key: value}, nil
	}, description)
}

// Update reads keys, hands their current values to fn and writes the returned
// values back in a single Badger transaction. Keys absent from the store are
// absent from the map passed to fn. Nothing is written when fn fails.
func (s *KVStorage) Update(ctx context.Context, keys []string, fn interfaces.UpdateFunc) error {
	return s.update(keys, fn, "")
}

func (s *KVStorage) update(keys []string, fn interfaces.UpdateFunc, description string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	store := s.db.Store()
	err := store.Badger().Update(func(tx *badgerdb.Txn) error {
		existing := make(map[string]interfaces.KeyValuePair, len(keys))
		current := make(map[string]string, len(keys))

		for _, key := range keys {
			normalizedKey := normalizeKey(key)
			var pair interfaces.KeyValuePair
			err := store.TxGet(tx, normalizedKey, &pair)
			if errors.Is(err, badgerhold.ErrNotFound) {
				continue
			}
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", normalizedKey, err)
			}
			existing[normalizedKey] = pair
			current[normalizedKey] = pair.Value
		}

		updated, err := fn(current)
		if err != nil {
			return err
		}

		now := s.now()
		for key, value := range updated {
			normalizedKey := normalizeKey(key)
			pair := interfaces.KeyValuePair{
				Key:       normalizedKey,
				Value:     value,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if prev, ok := existing[normalizedKey]; ok {
				pair.CreatedAt = prev.CreatedAt
				pair.Description = prev.Description
			}
			if description != "" {
				pair.Description = description
			}
			if err := store.TxUpsert(tx, normalizedKey, &pair); err != nil {
				return fmt.Errorf("failed to write %s: %w", normalizedKey, err)
			}
		}
		return nil
	})
	if err != nil {
		s.logger.Debug().Err(err).Strs("keys", keys).Msg("Key/value update rolled back")
	}
	return err
}

// Delete removes a key/value pair
func (s *KVStorage) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.db.Store().Delete(normalizeKey(key), &interfaces.KeyValuePair{})
	if errors.Is(err, badgerhold.ErrNotFound) {
		return interfaces.ErrKeyNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete key: %w", err)
	}
	return nil
}

// DeleteAll removes all key/value pairs from storage
func (s *KVStorage) DeleteAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pairs []interfaces.KeyValuePair
	if err := s.db.Store().Find(&pairs, nil); err != nil {
		return fmt.Errorf("failed to list key/value pairs for deletion: %w", err)
	}

	for _, pair := range pairs {
		if err := s.db.Store().Delete(pair.Key, &interfaces.KeyValuePair{}); err != nil {
			s.logger.Warn().Str("key", pair.Key).Err(err).Msg("Failed to delete key during DeleteAll")
		}
	}

	s.logger.Info().Int("count", len(pairs)).Msg("Deleted all key/value pairs")
	return nil
}

// List returns all key/value pairs ordered by updated_at DESC
func (s *KVStorage) List(ctx context.Context) ([]interfaces.KeyValuePair, error) {
	var pairs []interfaces.KeyValuePair
	err := s.db.Store().Find(&pairs, badgerhold.Where("Key").Ne("").SortBy("UpdatedAt").Reverse())
	if err != nil {
		return nil, fmt.Errorf("failed to list key/value pairs: %w", err)
	}
	return pairs, nil
}

// GetAll returns all key/value pairs as a map
func (s *KVStorage) GetAll(ctx context.Context) (map[string]string, error) {
	var pairs []interfaces.KeyValuePair
	if err := s.db.Store().Find(&pairs, nil); err != nil {
		return nil, fmt.Errorf("failed to get all key/value pairs: %w", err)
	}

	kvMap := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		kvMap[pair.Key] = pair.Value
	}
	return kvMap, nil
}
