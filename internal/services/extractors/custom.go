package extractors

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ternarybob/tokenscope/internal/models"
)

// CustomExtractor applies one user-defined rule
type CustomExtractor struct {
	rule       models.CustomRule
	urlPattern *URLPattern
	pathRegexp *regexp.Regexp
}

// NewCustomExtractor validates the rule and compiles its patterns
func NewCustomExtractor(rule models.CustomRule) (*CustomExtractor, error) {
	if err := rule.Validate(); err != nil {
		return nil, err
	}

	e := &CustomExtractor{rule: rule}
	if strings.TrimSpace(rule.URLPattern) != "" {
		e.urlPattern = CompileURLPattern(rule.URLPattern)
	}
	if rule.ExtractFrom == models.ExtractFromPath {
		re, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid custom rule %q: bad pattern: %w", rule.Name, err)
		}
		e.pathRegexp = re
	}
	return e, nil
}

func (e *CustomExtractor) Name() string        { return customPrefix + e.rule.Name }
func (e *CustomExtractor) DisplayName() string { return e.rule.Label() }
func (e *CustomExtractor) Enabled() bool       { return e.rule.Enabled }

// Rule returns a copy of the rule
func (e *CustomExtractor) Rule() models.CustomRule {
	return e.rule
}

func (e *CustomExtractor) Matches(req *Request) bool {
	if e.urlPattern != nil && !e.urlPattern.Match(req.URL) {
		return false
	}
	if e.rule.Method != "" && !strings.EqualFold(e.rule.Method, req.HTTPMethod()) {
		return false
	}
	return true
}

func (e *CustomExtractor) Extract(req *Request) (*models.Extraction, error) {
	var value string
	matchKey := e.rule.Key

	switch e.rule.ExtractFrom {
	case models.ExtractFromHeader:
		value, _ = req.Header(e.rule.Key)
	case models.ExtractFromCookie:
		for _, c := range requestCookies(req) {
			if c.Name == e.rule.Key {
				value = c.Value
				break
			}
		}
	case models.ExtractFromQuery:
		value = req.Parsed.Query().Get(e.rule.Key)
	case models.ExtractFromPath:
		matchKey = e.rule.Name
		if m := e.pathRegexp.FindStringSubmatch(req.Parsed.Path); m != nil {
			if len(m) > 1 {
				value = m[1]
			} else {
				value = m[0]
			}
		}
	default:
		return nil, fmt.Errorf("unknown extract_from %q", e.rule.ExtractFrom)
	}

	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}

	return &models.Extraction{
		Type:        models.ExtractionCustom,
		Value:       value,
		Source:      req.Source(),
		RuleName:    e.rule.Name,
		ExtractFrom: e.rule.ExtractFrom,
		AllMatches:  map[string]string{matchKey: value},
	}, nil
}
