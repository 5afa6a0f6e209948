package extractors

import (
	"strings"

	"github.com/ternarybob/tokenscope/internal/models"
)

// queryPriority is checked in order when several parameters match
var queryPriority = []string{"access_token", "api_key", "token", "client_secret"}

// QueryParamExtractor captures credentials passed in the query string.
// Names match exactly.
type QueryParamExtractor struct {
	params []string
}

func NewQueryParamExtractor(params []string) *QueryParamExtractor {
	cleaned := make([]string, 0, len(params))
	seen := make(map[string]bool, len(params))
	for _, p := range params {
		p = strings.TrimSpace(p)
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		cleaned = append(cleaned, p)
	}
	return &QueryParamExtractor{params: cleaned}
}

func (e *QueryParamExtractor) Name() string        { return NameQueryParam }
func (e *QueryParamExtractor) DisplayName() string { return "Query Parameter" }
func (e *QueryParamExtractor) Enabled() bool       { return len(e.params) > 0 }

func (e *QueryParamExtractor) Matches(req *Request) bool {
	if req.Parsed.RawQuery == "" {
		return false
	}
	query := req.Parsed.Query()
	for _, p := range e.params {
		if query.Has(p) {
			return true
		}
	}
	return false
}

func (e *QueryParamExtractor) Extract(req *Request) (*models.Extraction, error) {
	query := req.Parsed.Query()
	allMatches := make(map[string]string)
	var first string

	// Configured-list order, not URL order
	for _, p := range e.params {
		value := query.Get(p)
		if value == "" {
			continue
		}
		allMatches[p] = value
		if first == "" {
			first = p
		}
	}

	if first == "" {
		return nil, nil
	}

	primary := first
	for _, p := range queryPriority {
		if _, ok := allMatches[p]; ok {
			primary = p
			break
		}
	}

	return &models.Extraction{
		Type:       models.ExtractionQueryParam,
		Value:      allMatches[primary],
		Source:     req.Source(),
		ParamName:  primary,
		AllMatches: allMatches,
	}, nil
}
