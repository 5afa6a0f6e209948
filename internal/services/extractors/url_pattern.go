package extractors

import (
	"regexp"
	"strings"
)

// URLPattern matches full request URLs. A pattern containing "*" is an
// anchored, case-insensitive wildcard match; anything else is a
// case-insensitive substring test.
type URLPattern struct {
	raw       string
	substring string
	re        *regexp.Regexp
}

// CompileURLPattern compiles a URL pattern. Only "*" is special.
func CompileURLPattern(pattern string) *URLPattern {
	p := &URLPattern{raw: pattern}
	if !strings.Contains(pattern, "*") {
		p.substring = strings.ToLower(pattern)
		return p
	}

	parts := strings.Split(pattern, "*")
	for i, part := range parts {
		parts[i] = regexp.QuoteMeta(part)
	}
	p.re = regexp.MustCompile("(?i)^" + strings.Join(parts, ".*") + "$")
	return p
}

// Match reports whether rawURL satisfies the pattern
func (p *URLPattern) Match(rawURL string) bool {
	if p.re != nil {
		return p.re.MatchString(rawURL)
	}
	return strings.Contains(strings.ToLower(rawURL), p.substring)
}

func (p *URLPattern) String() string {
	return p.raw
}

func compileURLPatterns(patterns []string) []*URLPattern {
	compiled := make([]*URLPattern, 0, len(patterns))
	for _, pattern := range patterns {
		if strings.TrimSpace(pattern) == "" {
			continue
		}
		compiled = append(compiled, CompileURLPattern(pattern))
	}
	return compiled
}

func matchAnyURLPattern(patterns []*URLPattern, rawURL string) bool {
	for _, p := range patterns {
		if p.Match(rawURL) {
			return true
		}
	}
	return false
}
