package extractors

import (
	"strings"

	"github.com/ternarybob/tokenscope/internal/models"
)

const bearerPrefix = "bearer "

// AuthTokenExtractor captures credentials sent in auth headers
type AuthTokenExtractor struct {
	headers     map[string]bool
	urlPatterns []*URLPattern
}

// NewAuthTokenExtractor watches the given header names. When urlPatterns is
// non-empty, only URLs matching one of them are considered.
func NewAuthTokenExtractor(headers, urlPatterns []string) *AuthTokenExtractor {
	return &AuthTokenExtractor{
		headers:     lowerSet(headers),
		urlPatterns: compileURLPatterns(urlPatterns),
	}
}

func (e *AuthTokenExtractor) Name() string        { return NameAuthToken }
func (e *AuthTokenExtractor) DisplayName() string { return "Auth Token" }
func (e *AuthTokenExtractor) Enabled() bool       { return len(e.headers) > 0 }

func (e *AuthTokenExtractor) Matches(req *Request) bool {
	if len(e.urlPatterns) > 0 && !matchAnyURLPattern(e.urlPatterns, req.URL) {
		return false
	}
	for _, h := range req.Headers {
		if e.headers[strings.ToLower(h.Name)] {
			return true
		}
	}
	return false
}

func (e *AuthTokenExtractor) Extract(req *Request) (*models.Extraction, error) {
	var primary *models.Header
	var primaryType models.TokenType
	var primaryValue string
	allMatches := make(map[string]string)

	for i := range req.Headers {
		h := &req.Headers[i]
		name := strings.ToLower(h.Name)
		if !e.headers[name] {
			continue
		}

		value, tokenType := classifyAuthValue(h.Value)
		if value == "" {
			continue
		}
		if _, seen := allMatches[name]; !seen {
			allMatches[name] = value
		}

		if primary == nil || (name == "authorization" && !strings.EqualFold(primary.Name, "authorization")) {
			primary = h
			primaryType = tokenType
			primaryValue = value
		}
	}

	if primary == nil {
		return nil, nil
	}

	return &models.Extraction{
		Type:       models.ExtractionAuthToken,
		Value:      primaryValue,
		Source:     req.Source(),
		HeaderName: primary.Name,
		TokenType:  primaryType,
		AllMatches: allMatches,
	}, nil
}

// classifyAuthValue strips a case-insensitive "Bearer " prefix. Every other
// scheme, Basic included, is returned unparsed as raw.
func classifyAuthValue(value string) (string, models.TokenType) {
	value = strings.TrimSpace(value)
	if len(value) > len(bearerPrefix) && strings.EqualFold(value[:len(bearerPrefix)], bearerPrefix) {
		return strings.TrimSpace(value[len(bearerPrefix):]), models.TokenTypeBearer
	}
	return value, models.TokenTypeRaw
}
