package usage

import (
	"strings"

	"github.com/ternarybob/tokenscope/internal/models"
)

// authHeaders indicate an authenticated API call
var authHeaders = map[string]bool{
	"authorization":   true,
	"x-auth-token":    true,
	"x-api-key":       true,
	"x-access-token":  true,
	"api-key":         true,
	"x-session-token": true,
}

// detectAuth reports whether any auth header carries a value and classifies it
func detectAuth(headers []models.Header) (bool, string) {
	for _, h := range headers {
		if !authHeaders[strings.ToLower(h.Name)] {
			continue
		}
		value := strings.TrimSpace(h.Value)
		if value == "" {
			continue
		}

		lower := strings.ToLower(value)
		switch {
		case strings.HasPrefix(lower, "bearer "):
			return true, models.AuthTypeBearer
		case strings.HasPrefix(lower, "basic "):
			return true, models.AuthTypeBasic
		default:
			return true, models.AuthTypeToken
		}
	}
	return false, ""
}
