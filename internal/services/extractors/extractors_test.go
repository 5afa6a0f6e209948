package extractors

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tokenscope/internal/models"
)

func newRequest(t *testing.T, rawURL string, headers ...models.Header) *Request {
	t.Helper()
	req, err := NewRequest(&models.RequestRecord{
		URL:      rawURL,
		Method:   "GET",
		Headers:  headers,
		OriginID: "tab-1",
		Kind:     models.RequestKindXHR,
	})
	require.NoError(t, err)
	return req
}

func h(name, value string) models.Header {
	return models.Header{Name: name, Value: value}
}

func TestNewRequest_Malformed(t *testing.T) {
	_, err := NewRequest(&models.RequestRecord{URL: "://nope"})
	assert.Error(t, err)

	_, err = NewRequest(&models.RequestRecord{URL: "/relative/only"})
	assert.Error(t, err)
}

func TestAuthTokenExtractor_Bearer(t *testing.T) {
	e := NewAuthTokenExtractor(models.DefaultAuthHeaders, nil)
	req := newRequest(t, "https://api.example.com/v1/users/123", h("Authorization", "Bearer abc123"))

	require.True(t, e.Matches(req))
	extraction, err := e.Extract(req)
	require.NoError(t, err)
	require.NotNil(t, extraction)

	assert.Equal(t, models.ExtractionAuthToken, extraction.Type)
	assert.Equal(t, "abc123", extraction.Value)
	assert.Equal(t, models.TokenTypeBearer, extraction.TokenType)
	assert.Equal(t, "Authorization", extraction.HeaderName)
	assert.Equal(t, "api.example.com", extraction.Source.Domain)
	assert.Equal(t, "/v1/users/123", extraction.Source.Path)
	assert.Equal(t, map[string]string{"authorization": "abc123"}, extraction.AllMatches)
}

func TestAuthTokenExtractor_BasicIsRaw(t *testing.T) {
	e := NewAuthTokenExtractor(models.DefaultAuthHeaders, nil)
	req := newRequest(t, "https://api.example.com/", h("authorization", "Basic dXNlcjpwYXNz"))

	extraction, err := e.Extract(req)
	require.NoError(t, err)
	assert.Equal(t, "Basic dXNlcjpwYXNz", extraction.Value)
	assert.Equal(t, models.TokenTypeRaw, extraction.TokenType)
}

func TestAuthTokenExtractor_AuthorizationWins(t *testing.T) {
	e := NewAuthTokenExtractor(models.DefaultAuthHeaders, nil)
	req := newRequest(t, "https://api.example.com/",
		h("X-Api-Key", "key-1"),
		h("Authorization", "bearer tok-2"),
		h("X-Auth-Token", "tok-3"),
	)

	extraction, err := e.Extract(req)
	require.NoError(t, err)
	assert.Equal(t, "tok-2", extraction.Value)
	assert.Equal(t, "Authorization", extraction.HeaderName)
	assert.Len(t, extraction.AllMatches, 3)
	assert.Equal(t, "key-1", extraction.AllMatches["x-api-key"])
}

func TestAuthTokenExtractor_FirstMatchWithoutAuthorization(t *testing.T) {
	e := NewAuthTokenExtractor(models.DefaultAuthHeaders, nil)
	req := newRequest(t, "https://api.example.com/",
		h("X-Auth-Token", "tok-3"),
		h("X-Api-Key", "key-1"),
	)

	extraction, err := e.Extract(req)
	require.NoError(t, err)
	assert.Equal(t, "tok-3", extraction.Value)
	assert.Equal(t, models.TokenTypeRaw, extraction.TokenType)
}

func TestAuthTokenExtractor_URLPatterns(t *testing.T) {
	e := NewAuthTokenExtractor(models.DefaultAuthHeaders, []string{"*api.example.com/v1/*"})

	assert.True(t, e.Matches(newRequest(t, "https://api.example.com/v1/me", h("Authorization", "Bearer x"))))
	assert.False(t, e.Matches(newRequest(t, "https://cdn.example.com/v1/me", h("Authorization", "Bearer x"))))
}

func TestParseCookieHeader(t *testing.T) {
	cookies := ParseCookieHeader("a=1; session_id=abc==; ; flag; jwt=x.y.z=")

	require.Len(t, cookies, 4)
	assert.Equal(t, Cookie{Name: "a", Value: "1"}, cookies[0])
	assert.Equal(t, Cookie{Name: "session_id", Value: "abc=="}, cookies[1])
	assert.Equal(t, Cookie{Name: "flag", Value: ""}, cookies[2])
	assert.Equal(t, Cookie{Name: "jwt", Value: "x.y.z="}, cookies[3])
}

func TestCookieExtractor(t *testing.T) {
	e := NewCookieExtractor(models.DefaultCookiePatterns)

	t.Run("priority name wins", func(t *testing.T) {
		req := newRequest(t, "https://app.example.com/", h("Cookie", "PHPSESSID=php1; theme=dark; auth_token=tok; my_session=s1"))
		require.True(t, e.Matches(req))

		extraction, err := e.Extract(req)
		require.NoError(t, err)
		assert.Equal(t, models.ExtractionCookie, extraction.Type)
		assert.Equal(t, "my_session", extraction.CookieName)
		assert.Equal(t, "s1", extraction.Value)
		assert.Len(t, extraction.AllMatches, 3)
		assert.NotContains(t, extraction.AllMatches, "theme")
	})

	t.Run("first match without priority name", func(t *testing.T) {
		req := newRequest(t, "https://app.example.com/", h("Cookie", "JSESSIONID=j1; PHPSESSID=p1"))

		extraction, err := e.Extract(req)
		require.NoError(t, err)
		// JSESSIONID contains "session"
		assert.Equal(t, "JSESSIONID", extraction.CookieName)
	})

	t.Run("no cookie header", func(t *testing.T) {
		assert.False(t, e.Matches(newRequest(t, "https://app.example.com/")))
	})

	t.Run("no matching name", func(t *testing.T) {
		assert.False(t, e.Matches(newRequest(t, "https://app.example.com/", h("Cookie", "theme=dark; lang=en"))))
	})
}

func TestQueryParamExtractor(t *testing.T) {
	e := NewQueryParamExtractor(models.DefaultQueryParams)

	t.Run("priority", func(t *testing.T) {
		req := newRequest(t, "https://maps.example.com/js?key=k1&access_token=at&client_id=cid")
		require.True(t, e.Matches(req))

		extraction, err := e.Extract(req)
		require.NoError(t, err)
		assert.Equal(t, "access_token", extraction.ParamName)
		assert.Equal(t, "at", extraction.Value)
		assert.Equal(t, map[string]string{"key": "k1", "access_token": "at", "client_id": "cid"}, extraction.AllMatches)
	})

	t.Run("configured order without priority", func(t *testing.T) {
		req := newRequest(t, "https://maps.example.com/js?signature=sig&key=k1")

		extraction, err := e.Extract(req)
		require.NoError(t, err)
		// "key" comes before "signature" in the configured list
		assert.Equal(t, "key", extraction.ParamName)
	})

	t.Run("exact names only", func(t *testing.T) {
		assert.False(t, e.Matches(newRequest(t, "https://example.com/?monkey=1&tokens=2")))
	})
}

func TestCustomExtractor_Modes(t *testing.T) {
	tests := []struct {
		name  string
		rule  models.CustomRule
		req   *Request
		value string
	}{
		{
			name:  "header",
			rule:  models.CustomRule{Name: "gh", ExtractFrom: models.ExtractFromHeader, Key: "X-GitHub-Token", Enabled: true},
			req:   newRequest(t, "https://api.github.com/user", h("x-github-token", "ghp_1")),
			value: "ghp_1",
		},
		{
			name:  "cookie",
			rule:  models.CustomRule{Name: "csrf", ExtractFrom: models.ExtractFromCookie, Key: "csrftoken", Enabled: true},
			req:   newRequest(t, "https://app.example.com/", h("Cookie", "a=1; csrftoken=c=2")),
			value: "c=2",
		},
		{
			name:  "query",
			rule:  models.CustomRule{Name: "sig", ExtractFrom: models.ExtractFromQuery, Key: "X-Amz-Signature", Enabled: true},
			req:   newRequest(t, "https://bucket.s3.amazonaws.com/obj?X-Amz-Signature=deadbeef"),
			value: "deadbeef",
		},
		{
			name:  "path capture group",
			rule:  models.CustomRule{Name: "share", ExtractFrom: models.ExtractFromPath, Pattern: `/share/([a-z0-9]+)`, Enabled: true},
			req:   newRequest(t, "https://files.example.com/share/abc123/view"),
			value: "abc123",
		},
		{
			name:  "path whole match",
			rule:  models.CustomRule{Name: "hex", ExtractFrom: models.ExtractFromPath, Pattern: `[0-9a-f]{8,}`, Enabled: true},
			req:   newRequest(t, "https://files.example.com/blob/cafebabe01"),
			value: "cafebabe01",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := NewCustomExtractor(tt.rule)
			require.NoError(t, err)
			require.True(t, e.Matches(tt.req))

			extraction, err := e.Extract(tt.req)
			require.NoError(t, err)
			require.NotNil(t, extraction)
			assert.Equal(t, models.ExtractionCustom, extraction.Type)
			assert.Equal(t, tt.value, extraction.Value)
			assert.Equal(t, tt.rule.Name, extraction.RuleName)
			assert.Equal(t, tt.rule.ExtractFrom, extraction.ExtractFrom)
		})
	}
}

func TestCustomExtractor_Filters(t *testing.T) {
	e, err := NewCustomExtractor(models.CustomRule{
		Name:        "posts",
		URLPattern:  "*/api/posts*",
		Method:      "post",
		ExtractFrom: models.ExtractFromHeader,
		Key:         "X-Token",
		Enabled:     true,
	})
	require.NoError(t, err)

	post := newRequest(t, "https://example.com/api/posts", h("X-Token", "t"))
	post.Method = "POST"
	assert.True(t, e.Matches(post))

	get := newRequest(t, "https://example.com/api/posts", h("X-Token", "t"))
	assert.False(t, e.Matches(get))

	other := newRequest(t, "https://example.com/api/users", h("X-Token", "t"))
	other.Method = "POST"
	assert.False(t, e.Matches(other))
}

func TestCustomExtractor_NoValue(t *testing.T) {
	e, err := NewCustomExtractor(models.CustomRule{Name: "gh", ExtractFrom: models.ExtractFromHeader, Key: "X-GitHub-Token", Enabled: true})
	require.NoError(t, err)

	extraction, err := e.Extract(newRequest(t, "https://api.github.com/user"))
	assert.NoError(t, err)
	assert.Nil(t, extraction)
}

func TestNewCustomExtractor_Invalid(t *testing.T) {
	_, err := NewCustomExtractor(models.CustomRule{Name: "bad", ExtractFrom: models.ExtractFromPath, Pattern: "("})
	assert.Error(t, err)

	_, err = NewCustomExtractor(models.CustomRule{Name: "nokey", ExtractFrom: models.ExtractFromHeader})
	assert.Error(t, err)

	_, err = NewCustomExtractor(models.CustomRule{ExtractFrom: models.ExtractFromHeader, Key: "x"})
	assert.Error(t, err)
}

func TestURLPattern(t *testing.T) {
	tests := []struct {
		pattern string
		url     string
		want    bool
	}{
		{"api.example.com", "https://API.example.com/v1", true},
		{"api.example.com", "https://cdn.example.com/v1", false},
		{"https://*.example.com/*", "https://api.example.com/v1/users", true},
		{"https://*.example.com/*", "http://api.example.com/v1/users", false},
		{"*/oauth/token", "https://auth.example.com/oauth/token", true},
		{"*/oauth/token", "https://auth.example.com/oauth/token?x=1", false},
		{"*?a=1*", "https://example.com/p?a=1&b=2", true},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+" "+tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, CompileURLPattern(tt.pattern).Match(tt.url))
		})
	}
}

type faultyExtractor struct {
	panics bool
}

func (f *faultyExtractor) Name() string              { return "faulty" }
func (f *faultyExtractor) DisplayName() string       { return "Faulty" }
func (f *faultyExtractor) Enabled() bool             { return true }
func (f *faultyExtractor) Matches(req *Request) bool { return true }
func (f *faultyExtractor) Extract(req *Request) (*models.Extraction, error) {
	if f.panics {
		panic("boom")
	}
	return nil, errors.New("boom")
}

func newTestDispatcher(config *models.CaptureConfig) *Dispatcher {
	d := NewDispatcher(config, arbor.NewLogger())
	d.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return d
}

func TestDispatcher_NoMatchYieldsNothing(t *testing.T) {
	d := newTestDispatcher(models.NewDefaultCaptureConfig())

	results := d.ProcessRequest(&models.RequestRecord{
		URL:     "https://static.example.com/app.js?v=3",
		Headers: []models.Header{{Name: "Accept", Value: "*/*"}},
	})
	assert.Empty(t, results)
}

func TestDispatcher_MultipleExtractionsInOrder(t *testing.T) {
	config := models.NewDefaultCaptureConfig()
	config.CustomRules = []models.CustomRule{
		{Name: "tenant", DisplayName: "Tenant Key", ExtractFrom: models.ExtractFromHeader, Key: "X-Tenant-Key", Enabled: true},
	}
	d := newTestDispatcher(config)

	results := d.ProcessRequest(&models.RequestRecord{
		URL:    "https://api.example.com/v1/items?api_key=k1",
		Method: "get",
		Headers: []models.Header{
			{Name: "Authorization", Value: "Bearer abc"},
			{Name: "Cookie", Value: "session=s1"},
			{Name: "X-Tenant-Key", Value: "t1"},
		},
	})

	require.Len(t, results, 4)
	assert.Equal(t, models.ExtractionAuthToken, results[0].Type)
	assert.Equal(t, models.ExtractionCookie, results[1].Type)
	assert.Equal(t, models.ExtractionQueryParam, results[2].Type)
	assert.Equal(t, models.ExtractionCustom, results[3].Type)

	assert.Equal(t, NameAuthToken, results[0].ExtractorName)
	assert.Equal(t, "custom:tenant", results[3].ExtractorName)
	assert.Equal(t, "Tenant Key", results[3].DisplayName)
	assert.Equal(t, "GET", results[0].Source.Method)
	assert.False(t, results[0].Timestamp.IsZero())
}

func TestDispatcher_FaultIsolation(t *testing.T) {
	d := newTestDispatcher(models.NewDefaultCaptureConfig())
	d.builtins = append([]Extractor{&faultyExtractor{panics: true}, &faultyExtractor{}}, d.builtins...)

	results := d.ProcessRequest(&models.RequestRecord{
		URL:     "https://api.example.com/",
		Headers: []models.Header{{Name: "Authorization", Value: "Bearer abc"}},
	})

	require.Len(t, results, 1)
	assert.Equal(t, "abc", results[0].Value)
}

func TestDispatcher_Disabled(t *testing.T) {
	config := models.NewDefaultCaptureConfig()
	config.Enabled = false
	d := newTestDispatcher(config)

	record := &models.RequestRecord{
		URL:     "https://api.example.com/",
		Headers: []models.Header{{Name: "Authorization", Value: "Bearer abc"}},
	}
	assert.Empty(t, d.ProcessRequest(record))

	d.SetEnabled(true)
	assert.Len(t, d.ProcessRequest(record), 1)
}

func TestDispatcher_MalformedURL(t *testing.T) {
	d := newTestDispatcher(models.NewDefaultCaptureConfig())
	assert.Empty(t, d.ProcessRequest(&models.RequestRecord{
		URL:     "http://[::1",
		Headers: []models.Header{{Name: "Authorization", Value: "Bearer abc"}},
	}))
}

func TestDispatcher_AddRemoveCustomRule(t *testing.T) {
	d := newTestDispatcher(models.NewDefaultCaptureConfig())
	require.Len(t, d.Extractors(), 3)

	require.NoError(t, d.AddCustomRule(models.CustomRule{Name: "a", ExtractFrom: models.ExtractFromHeader, Key: "X-A", Enabled: true}))
	require.NoError(t, d.AddCustomRule(models.CustomRule{Name: "b", ExtractFrom: models.ExtractFromHeader, Key: "X-B", Enabled: true}))
	require.NoError(t, d.AddCustomRule(models.CustomRule{Name: "A", ExtractFrom: models.ExtractFromHeader, Key: "X-A2", Enabled: true}))

	units := d.Extractors()
	require.Len(t, units, 5)
	assert.Equal(t, "custom:A", units[3].Name(), "same name replaces in place")
	assert.Equal(t, "custom:b", units[4].Name())

	assert.Error(t, d.AddCustomRule(models.CustomRule{Name: "bad", ExtractFrom: models.ExtractFromPath, Pattern: "("}))

	assert.True(t, d.RemoveCustomRule("a"))
	assert.False(t, d.RemoveCustomRule("a"))
	assert.Len(t, d.Extractors(), 4)
}

func TestDispatcher_ResetSkipsInvalidRules(t *testing.T) {
	config := models.NewDefaultCaptureConfig()
	config.CustomRules = []models.CustomRule{
		{Name: "good", ExtractFrom: models.ExtractFromHeader, Key: "X-Good", Enabled: true},
		{Name: "bad", ExtractFrom: models.ExtractFromPath, Pattern: "("},
	}
	d := newTestDispatcher(nil)
	d.Reset(config)

	assert.Len(t, d.Extractors(), 4)
}
