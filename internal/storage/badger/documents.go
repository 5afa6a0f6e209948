package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ternarybob/tokenscope/internal/interfaces"
)

// loadDocument decodes the JSON document stored under key into out.
// It reports false when the key does not exist.
func loadDocument(ctx context.Context, kv interfaces.KeyValueStorage, key string, out interface{}) (bool, error) {
	raw, err := kv.Get(ctx, key)
	if errors.Is(err, interfaces.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return true, nil
}

// decodeDocument decodes values[key] into out when present
func decodeDocument(values map[string]string, key string, out interface{}) error {
	raw, ok := values[key]
	if !ok || raw == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return nil
}

// encodeDocument writes the JSON encoding of doc into values[key]
func encodeDocument(values map[string]string, key string, doc interface{}) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	values[key] = string(data)
	return nil
}
