package filter

import (
	"strings"

	"github.com/ternarybob/tokenscope/internal/models"
)

// ShouldCapture reports whether requests to domain may be inspected.
// Blocked patterns take precedence; an empty allow list allows everything
// that is not blocked. An empty domain is never captured.
func ShouldCapture(domain string, config *models.CaptureConfig) bool {
	domain = strings.ToLower(strings.TrimSpace(domain))
	if domain == "" {
		return false
	}
	if config == nil {
		return true
	}

	for _, pattern := range config.BlockedDomains {
		if MatchDomain(pattern, domain) {
			return false
		}
	}

	if len(config.AllowedDomains) == 0 {
		return true
	}

	for _, pattern := range config.AllowedDomains {
		if MatchDomain(pattern, domain) {
			return true
		}
	}
	return false
}

// MatchDomain matches an exact domain or a "*.suffix" wildcard.
// The wildcard covers every subdomain of suffix and suffix itself.
func MatchDomain(pattern, domain string) bool {
	pattern = strings.ToLower(strings.TrimSpace(pattern))
	domain = strings.ToLower(domain)
	if pattern == "" {
		return false
	}

	if suffix, ok := strings.CutPrefix(pattern, "*."); ok {
		return domain == suffix || strings.HasSuffix(domain, "."+suffix)
	}
	return pattern == domain
}
