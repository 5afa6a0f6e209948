package models

import "time"

// ExtractionType is the kind of credential a matcher produced
type ExtractionType string

const (
	ExtractionAuthToken  ExtractionType = "auth-token"
	ExtractionCookie     ExtractionType = "cookie"
	ExtractionQueryParam ExtractionType = "query-param"
	ExtractionCustom     ExtractionType = "custom"
)

// TokenType classifies an auth header value. Basic credentials are kept
// unparsed and reported as raw.
type TokenType string

const (
	TokenTypeBearer TokenType = "bearer"
	TokenTypeRaw    TokenType = "raw"
)

// ExtractFrom selects where a custom rule reads its value
type ExtractFrom string

const (
	ExtractFromHeader ExtractFrom = "header"
	ExtractFromCookie ExtractFrom = "cookie"
	ExtractFromQuery  ExtractFrom = "query"
	ExtractFromPath   ExtractFrom = "path"
)

// Source locates the request a credential was taken from
type Source struct {
	Domain   string `json:"domain"`
	Path     string `json:"path"`
	Method   string `json:"method"`
	OriginID string `json:"originId"`
	URL      string `json:"url,omitempty"`
}

// Extraction is the normalized output of a single matcher for one request.
// Value is the primary secret; AllMatches holds every value of the same kind
// seen on the request.
type Extraction struct {
	Type          ExtractionType    `json:"type"`
	Value         string            `json:"value"`
	Source        Source            `json:"source"`
	Timestamp     time.Time         `json:"timestamp"`
	ExtractorName string            `json:"extractorName,omitempty"`
	DisplayName   string            `json:"displayName,omitempty"`
	AllMatches    map[string]string `json:"allMatches,omitempty"`

	// auth-token
	HeaderName string    `json:"headerName,omitempty"`
	TokenType  TokenType `json:"tokenType,omitempty"`

	// cookie
	CookieName string `json:"cookieName,omitempty"`

	// query-param
	ParamName string `json:"paramName,omitempty"`

	// custom
	RuleName    string      `json:"ruleName,omitempty"`
	ExtractFrom ExtractFrom `json:"extractFrom,omitempty"`
}

// FromCookie reports whether the value was read from the Cookie header
func (e *Extraction) FromCookie() bool {
	return e.Type == ExtractionCookie ||
		(e.Type == ExtractionCustom && e.ExtractFrom == ExtractFromCookie)
}
