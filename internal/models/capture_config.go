package models

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Default matcher inputs
var (
	DefaultAuthHeaders = []string{
		"authorization",
		"x-auth-token",
		"x-api-key",
		"x-access-token",
		"x-session-token",
		"x-csrf-token",
		"x-xsrf-token",
		"api-key",
		"apikey",
	}

	DefaultCookiePatterns = []string{
		"session",
		"sess",
		"auth",
		"token",
		"jwt",
		"sid",
		"PHPSESSID",
		"JSESSIONID",
		"connect.sid",
		"access_token",
	}

	DefaultQueryParams = []string{
		"api_key",
		"apikey",
		"key",
		"token",
		"access_token",
		"auth",
		"auth_token",
		"client_id",
		"client_secret",
		"secret",
		"signature",
	}
)

// CustomRule is a user-defined extraction rule
type CustomRule struct {
	Name        string      `json:"name" toml:"name" yaml:"name" validate:"required"`
	DisplayName string      `json:"displayName,omitempty" toml:"display_name" yaml:"display_name"`
	URLPattern  string      `json:"urlPattern,omitempty" toml:"url_pattern" yaml:"url_pattern"`
	Method      string      `json:"method,omitempty" toml:"method" yaml:"method"`
	ExtractFrom ExtractFrom `json:"extractFrom" toml:"extract_from" yaml:"extract_from" validate:"required,oneof=header cookie query path"`
	Key         string      `json:"key,omitempty" toml:"key" yaml:"key" validate:"required_unless=ExtractFrom path"`
	Pattern     string      `json:"pattern,omitempty" toml:"pattern" yaml:"pattern" validate:"required_if=ExtractFrom path"`
	Enabled     bool        `json:"enabled" toml:"enabled" yaml:"enabled"`
}

// UnmarshalJSON defaults Enabled to true when the field is absent, matching
// rule files
func (r *CustomRule) UnmarshalJSON(data []byte) error {
	type plain CustomRule
	decoded := plain{Enabled: true}
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	*r = CustomRule(decoded)
	return nil
}

// Validate checks the rule's fields and compiles its path pattern
func (r *CustomRule) Validate() error {
	validate := validator.New()
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("invalid custom rule %q: %w", r.Name, err)
	}
	if r.ExtractFrom == ExtractFromPath {
		if _, err := regexp.Compile(r.Pattern); err != nil {
			return fmt.Errorf("invalid custom rule %q: bad pattern: %w", r.Name, err)
		}
	}
	return nil
}

// Label returns the display name, falling back to the rule name
func (r *CustomRule) Label() string {
	if r.DisplayName != "" {
		return r.DisplayName
	}
	return r.Name
}

// CaptureConfig is the persisted, user-editable capture configuration
type CaptureConfig struct {
	Enabled         bool         `json:"enabled" toml:"enabled"`
	AllowedDomains  []string     `json:"allowedDomains" toml:"allowed_domains"`
	BlockedDomains  []string     `json:"blockedDomains" toml:"blocked_domains"`
	AuthHeaders     []string     `json:"authHeaders" toml:"auth_headers"`
	AuthURLPatterns []string     `json:"authUrlPatterns" toml:"auth_url_patterns"`
	CookiePatterns  []string     `json:"cookiePatterns" toml:"cookie_patterns"`
	QueryParams     []string     `json:"queryParams" toml:"query_params"`
	CustomRules     []CustomRule `json:"customRules" toml:"custom_rules"`
}

// NewDefaultCaptureConfig returns capture enabled with the built-in matcher inputs
func NewDefaultCaptureConfig() *CaptureConfig {
	return &CaptureConfig{
		Enabled:         true,
		AllowedDomains:  []string{},
		BlockedDomains:  []string{},
		AuthHeaders:     append([]string(nil), DefaultAuthHeaders...),
		AuthURLPatterns: []string{},
		CookiePatterns:  append([]string(nil), DefaultCookiePatterns...),
		QueryParams:     append([]string(nil), DefaultQueryParams...),
		CustomRules:     []CustomRule{},
	}
}

// Validate checks every custom rule and rejects duplicate names
func (c *CaptureConfig) Validate() error {
	seen := make(map[string]bool, len(c.CustomRules))
	for i := range c.CustomRules {
		rule := &c.CustomRules[i]
		if err := rule.Validate(); err != nil {
			return err
		}
		name := strings.ToLower(rule.Name)
		if seen[name] {
			return fmt.Errorf("duplicate custom rule name: %s", rule.Name)
		}
		seen[name] = true
	}
	return nil
}

// FindRule returns the index of the named rule, or -1
func (c *CaptureConfig) FindRule(name string) int {
	for i := range c.CustomRules {
		if strings.EqualFold(c.CustomRules[i].Name, name) {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy
func (c *CaptureConfig) Clone() *CaptureConfig {
	if c == nil {
		return nil
	}
	clone := *c
	clone.AllowedDomains = append([]string{}, c.AllowedDomains...)
	clone.BlockedDomains = append([]string{}, c.BlockedDomains...)
	clone.AuthHeaders = append([]string{}, c.AuthHeaders...)
	clone.AuthURLPatterns = append([]string{}, c.AuthURLPatterns...)
	clone.CookiePatterns = append([]string{}, c.CookiePatterns...)
	clone.QueryParams = append([]string{}, c.QueryParams...)
	clone.CustomRules = append([]CustomRule{}, c.CustomRules...)
	return &clone
}
