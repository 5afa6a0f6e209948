// Package extractors turns intercepted requests into credential extractions.
// Each unit decides on its own whether a request is relevant; the Dispatcher
// runs every unit and isolates their failures.
package extractors

import (
	"net/url"
	"strings"
	"time"

	"github.com/ternarybob/tokenscope/internal/models"
)

// Built-in unit names
const (
	NameAuthToken  = "auth-token"
	NameCookie     = "cookie"
	NameQueryParam = "query-param"

	customPrefix = "custom:"
)

// Request is a request record with its URL already parsed
type Request struct {
	*models.RequestRecord
	Parsed *url.URL
}

// NewRequest parses the record's URL. It fails for relative or malformed URLs.
func NewRequest(record *models.RequestRecord) (*Request, error) {
	parsed, err := url.Parse(record.URL)
	if err != nil {
		return nil, err
	}
	if parsed.Host == "" {
		return nil, &url.Error{Op: "parse", URL: record.URL, Err: errMissingHost}
	}
	return &Request{RequestRecord: record, Parsed: parsed}, nil
}

// Domain returns the lower-cased request hostname
func (r *Request) Domain() string {
	return strings.ToLower(r.Parsed.Hostname())
}

// Source describes where an extraction came from
func (r *Request) Source() models.Source {
	path := r.Parsed.Path
	if path == "" {
		path = "/"
	}
	return models.Source{
		Domain:   r.Domain(),
		Path:     path,
		Method:   r.HTTPMethod(),
		OriginID: r.OriginID,
		URL:      r.URL,
	}
}

// Extractor is one matcher unit
type Extractor interface {
	Name() string
	DisplayName() string
	Enabled() bool
	Matches(req *Request) bool
	Extract(req *Request) (*models.Extraction, error)
}

// process calls Extract only for enabled, matching units and stamps the
// unit's identity on the result
func process(e Extractor, req *Request, now time.Time) (*models.Extraction, error) {
	if !e.Enabled() || !e.Matches(req) {
		return nil, nil
	}

	extraction, err := e.Extract(req)
	if err != nil || extraction == nil {
		return nil, err
	}

	extraction.ExtractorName = e.Name()
	extraction.DisplayName = e.DisplayName()
	if extraction.Timestamp.IsZero() {
		extraction.Timestamp = now
	}
	return extraction, nil
}

// lowerSet builds a case-insensitive lookup set
func lowerSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v != "" {
			set[v] = true
		}
	}
	return set
}
