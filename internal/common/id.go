package common

import (
	"github.com/google/uuid"
)

// NewHistoryID generates a unique history entry ID with the "hist_" prefix
func NewHistoryID() string {
	return "hist_" + uuid.New().String()
}

// NewInstanceID identifies one server process to websocket clients
func NewInstanceID() string {
	return uuid.New().String()
}
