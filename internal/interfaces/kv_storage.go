package interfaces

import (
	"context"
	"errors"
	"time"
)

// ErrKeyNotFound is returned when a named value is not present in the store
var ErrKeyNotFound = errors.New("key not found")

// Named values owned by the capture core. Keys are case-sensitive.
const (
	KeyCredentials   = "credentials"
	KeyExpiredTokens = "expiredTokens"
	KeyHistory       = "history"
	KeyEndpointUsage = "endpointUsage"
	KeyCaptureConfig = "captureConfig"
)

// KeyValuePair represents a single named value with metadata
type KeyValuePair struct {
	Key         string    `json:"key"`
	Value       string    `json:"value"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// UpdateFunc receives the current values of the requested keys (absent keys
// are missing from the map) and returns the values to write back
type UpdateFunc func(values map[string]string) (map[string]string, error)

// KeyValueStorage stores whole named values. There are no field-level
// patches; Update is the only multi-key atomic operation.
type KeyValueStorage interface {
	// Get retrieves a value by key, returns ErrKeyNotFound if absent
	Get(ctx context.Context, key string) (string, error)

	// GetPair retrieves a full KeyValuePair by key
	GetPair(ctx context.Context, key string) (*KeyValuePair, error)

	// Set replaces the value stored under key
	Set(ctx context.Context, key string, value string, description string) error

	// Update reads keys, calls fn and writes the returned values in one transaction
	Update(ctx context.Context, keys []string, fn UpdateFunc) error

	// Delete removes a key/value pair, returns ErrKeyNotFound if absent
	Delete(ctx context.Context, key string) error

	// DeleteAll removes all key/value pairs from storage
	DeleteAll(ctx context.Context) error

	// List returns all key/value pairs ordered by updated_at DESC
	List(ctx context.Context) ([]KeyValuePair, error)

	// GetAll returns all key/value pairs as a map
	GetAll(ctx context.Context) (map[string]string, error)
}
