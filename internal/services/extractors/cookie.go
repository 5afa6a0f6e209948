package extractors

import (
	"strings"

	"github.com/ternarybob/tokenscope/internal/models"
)

// cookiePriority is checked in order when several cookies match
var cookiePriority = []string{"session", "auth", "token", "jwt", "access_token"}

// Cookie is a single name/value pair from a Cookie header
type Cookie struct {
	Name  string
	Value string
}

// ParseCookieHeader splits a Cookie header on ";" and each pair on its first
// "=". Later "=" characters stay in the value.
func ParseCookieHeader(header string) []Cookie {
	var cookies []Cookie
	for _, part := range strings.Split(header, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, value, _ := strings.Cut(part, "=")
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		cookies = append(cookies, Cookie{Name: name, Value: strings.TrimSpace(value)})
	}
	return cookies
}

// requestCookies parses every Cookie header on the request
func requestCookies(req *Request) []Cookie {
	var cookies []Cookie
	for _, h := range req.Headers {
		if strings.EqualFold(h.Name, "cookie") {
			cookies = append(cookies, ParseCookieHeader(h.Value)...)
		}
	}
	return cookies
}

// CookieExtractor captures session-like cookies
type CookieExtractor struct {
	patterns []string
}

// NewCookieExtractor matches cookie names containing any of patterns (case-insensitive)
func NewCookieExtractor(patterns []string) *CookieExtractor {
	lowered := make([]string, 0, len(patterns))
	for p := range lowerSet(patterns) {
		lowered = append(lowered, p)
	}
	return &CookieExtractor{patterns: lowered}
}

func (e *CookieExtractor) Name() string        { return NameCookie }
func (e *CookieExtractor) DisplayName() string { return "Session Cookie" }
func (e *CookieExtractor) Enabled() bool       { return len(e.patterns) > 0 }

func (e *CookieExtractor) Matches(req *Request) bool {
	for _, c := range requestCookies(req) {
		if e.nameMatches(c.Name) {
			return true
		}
	}
	return false
}

func (e *CookieExtractor) Extract(req *Request) (*models.Extraction, error) {
	var matched []Cookie
	allMatches := make(map[string]string)

	for _, c := range requestCookies(req) {
		if !e.nameMatches(c.Name) || c.Value == "" {
			continue
		}
		if _, seen := allMatches[c.Name]; seen {
			continue
		}
		allMatches[c.Name] = c.Value
		matched = append(matched, c)
	}

	if len(matched) == 0 {
		return nil, nil
	}

	primary := selectPrimaryCookie(matched)
	return &models.Extraction{
		Type:       models.ExtractionCookie,
		Value:      primary.Value,
		Source:     req.Source(),
		CookieName: primary.Name,
		AllMatches: allMatches,
	}, nil
}

func (e *CookieExtractor) nameMatches(name string) bool {
	name = strings.ToLower(name)
	for _, p := range e.patterns {
		if strings.Contains(name, p) {
			return true
		}
	}
	return false
}

func selectPrimaryCookie(matched []Cookie) Cookie {
	for _, p := range cookiePriority {
		for _, c := range matched {
			if strings.Contains(strings.ToLower(c.Name), p) {
				return c
			}
		}
	}
	return matched[0]
}
