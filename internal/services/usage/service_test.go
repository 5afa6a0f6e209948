package usage

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tokenscope/internal/common"
	"github.com/ternarybob/tokenscope/internal/interfaces"
	"github.com/ternarybob/tokenscope/internal/models"
	"github.com/ternarybob/tokenscope/internal/storage/badger"
)

func newTestService(t *testing.T) *Service {
	t.Helper()

	logger := arbor.NewLogger()
	manager, err := badger.NewManager(logger, &common.BadgerConfig{Path: filepath.Join(t.TempDir(), "db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = manager.Close() })

	service := NewService(manager.UsageStorage(), logger)
	current := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
	service.now = func() time.Time {
		current = current.Add(time.Second)
		return current
	}
	return service
}

func get(url string, headers ...models.Header) interfaces.TrackRequest {
	return interfaces.TrackRequest{URL: url, Method: "GET", Headers: headers}
}

func TestRootDomain(t *testing.T) {
	tests := map[string]string{
		"app.stockbit.com":    "stockbit.com",
		"app.example.co.uk":   "example.co.uk",
		"a.b.shop.com.au":     "shop.com.au",
		"localhost":           "localhost",
		"192.168.1.1":         "192.168.1.1",
		"example.com":         "example.com",
		"WWW.Example.COM":     "example.com",
		"deep.api.github.com": "github.com",
		"co.uk":               "co.uk",
		"":                    "",
	}

	for host, want := range tests {
		t.Run(host, func(t *testing.T) {
			assert.Equal(t, want, RootDomain(host))
		})
	}
}

func TestPageDomain(t *testing.T) {
	domain, ok := PageDomain("https://app.stockbit.com/stream")
	assert.True(t, ok)
	assert.Equal(t, "stockbit.com", domain)

	_, ok = PageDomain("not a url")
	assert.False(t, ok)
}

func TestDetectAuth(t *testing.T) {
	tests := []struct {
		name     string
		headers  []models.Header
		hasAuth  bool
		authType string
	}{
		{"bearer", []models.Header{{Name: "Authorization", Value: "Bearer x"}}, true, models.AuthTypeBearer},
		{"basic", []models.Header{{Name: "authorization", Value: "basic dXNlcg=="}}, true, models.AuthTypeBasic},
		{"api key", []models.Header{{Name: "X-Api-Key", Value: "k"}}, true, models.AuthTypeToken},
		{"empty value", []models.Header{{Name: "X-Api-Key", Value: " "}}, false, ""},
		{"unrelated", []models.Header{{Name: "Accept", Value: "*/*"}}, false, ""},
		{"csrf not auth", []models.Header{{Name: "X-CSRF-Token", Value: "c"}}, false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hasAuth, authType := detectAuth(tt.headers)
			assert.Equal(t, tt.hasAuth, hasAuth)
			assert.Equal(t, tt.authType, authType)
		})
	}
}

func TestTrack_CreatesAndUpdatesEndpoint(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	require.NoError(t, service.Track(ctx, "stockbit.com", get("https://api.stockbit.com/v1/users/1/profile?fields=name&lang=en")))
	require.NoError(t, service.Track(ctx, "stockbit.com", get("https://api.stockbit.com/v1/users/2/profile?fields=email",
		models.Header{Name: "Authorization", Value: "Bearer t"})))
	require.NoError(t, service.Track(ctx, "stockbit.com", get("https://api.stockbit.com/v1/users/3/profile?fields=name")))
	require.NoError(t, service.Track(ctx, "stockbit.com", get("https://api.stockbit.com/v1/users/4/profile")))

	bucket, err := service.GetUsage(ctx, "stockbit.com")
	require.NoError(t, err)

	assert.Equal(t, 4, bucket.TotalRequests)
	require.Len(t, bucket.Endpoints, 1)

	entry := bucket.Endpoints[EndpointKey("api.stockbit.com", "/v1/users/*/profile", "GET")]
	require.NotNil(t, entry)
	assert.Equal(t, 4, entry.Count)
	assert.True(t, entry.LastSeen.After(entry.FirstSeen))
	assert.ElementsMatch(t, []string{"fields", "lang"}, entry.QueryParams)
	assert.Equal(t, []string{"name", "email"}, entry.ParamExamples["fields"])
	assert.True(t, entry.HasAuth, "auth is upgraded once seen")
	assert.Equal(t, models.AuthTypeBearer, entry.AuthType)
	assert.Len(t, entry.ExampleURLs, models.MaxExampleURLs)

	assert.Equal(t, 1, bucket.Stats.UniqueEndpoints)
	assert.Equal(t, 4, bucket.Stats.APIDomains["api.stockbit.com"])
	assert.Equal(t, 4, bucket.Stats.Methods["GET"])
}

func TestTrack_ParamExampleCap(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		require.NoError(t, service.Track(ctx, "example.com", get(fmt.Sprintf("https://api.example.com/search?q=term%d", i))))
	}
	require.NoError(t, service.Track(ctx, "example.com", get("https://api.example.com/search?q=term0")))

	bucket, err := service.GetUsage(ctx, "example.com")
	require.NoError(t, err)
	entry := bucket.Endpoints[EndpointKey("api.example.com", "/search", "GET")]
	require.NotNil(t, entry)
	assert.Len(t, entry.ParamExamples["q"], models.MaxParamExamples)
	assert.Equal(t, "term0", entry.ParamExamples["q"][0])
	assert.Len(t, entry.ExampleURLs, models.MaxExampleURLs)
}

func TestTrack_MethodsAreSeparateEndpoints(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	require.NoError(t, service.Track(ctx, "example.com", get("https://api.example.com/items")))
	require.NoError(t, service.Track(ctx, "example.com", interfaces.TrackRequest{URL: "https://api.example.com/items", Method: "post"}))

	bucket, err := service.GetUsage(ctx, "example.com")
	require.NoError(t, err)
	assert.Len(t, bucket.Endpoints, 2)
	assert.Equal(t, 1, bucket.Stats.Methods["POST"])
}

func TestTrack_MalformedURLSkipped(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	assert.NoError(t, service.Track(ctx, "example.com", get("http://[::1")))
	assert.NoError(t, service.Track(ctx, "example.com", get("/relative")))

	domains, err := service.TrackedDomains(ctx)
	require.NoError(t, err)
	assert.Empty(t, domains)
}

func TestTrack_EndpointCap(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	for i := 0; i < models.MaxEndpointsPerDomain+1; i++ {
		require.NoError(t, service.Track(ctx, "example.com", get(fmt.Sprintf("https://api.example.com/ep%c%c", 'a'+i/26, 'a'+i%26))))
	}

	bucket, err := service.GetUsage(ctx, "example.com")
	require.NoError(t, err)
	assert.Len(t, bucket.Endpoints, models.MaxEndpointsPerDomain)
	assert.NotContains(t, bucket.Endpoints, EndpointKey("api.example.com", "/epaa", "GET"), "least recently seen is evicted")
	assert.Contains(t, bucket.Endpoints, EndpointKey("api.example.com", "/epab", "GET"))
	assert.Equal(t, models.MaxEndpointsPerDomain, bucket.Stats.UniqueEndpoints)
}

func TestTrack_EndpointCapEvictsByLastSeen(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	for i := 0; i < models.MaxEndpointsPerDomain; i++ {
		require.NoError(t, service.Track(ctx, "example.com", get(fmt.Sprintf("https://api.example.com/ep%c%c", 'a'+i/26, 'a'+i%26))))
	}
	// Touch the first endpoint so the second becomes least recently seen
	require.NoError(t, service.Track(ctx, "example.com", get("https://api.example.com/epaa")))
	require.NoError(t, service.Track(ctx, "example.com", get("https://api.example.com/new")))

	bucket, err := service.GetUsage(ctx, "example.com")
	require.NoError(t, err)
	assert.Len(t, bucket.Endpoints, models.MaxEndpointsPerDomain)
	assert.Contains(t, bucket.Endpoints, EndpointKey("api.example.com", "/epaa", "GET"))
	assert.NotContains(t, bucket.Endpoints, EndpointKey("api.example.com", "/epab", "GET"))
}

func TestTrack_DomainCap(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	for i := 0; i < models.MaxTrackedDomains; i++ {
		require.NoError(t, service.Track(ctx, fmt.Sprintf("site%d.com", i), get("https://api.example.com/ping")))
	}
	// Revisit site0 so site1 is the least recently visited
	require.NoError(t, service.Track(ctx, "site0.com", get("https://api.example.com/ping")))
	require.NoError(t, service.Track(ctx, "newcomer.com", get("https://api.example.com/ping")))

	domains, err := service.TrackedDomains(ctx)
	require.NoError(t, err)
	require.Len(t, domains, models.MaxTrackedDomains)
	assert.Equal(t, "newcomer.com", domains[0].Domain)
	assert.Equal(t, "site0.com", domains[1].Domain)

	_, err = service.GetUsage(ctx, "site1.com")
	assert.ErrorIs(t, err, interfaces.ErrDomainNotTracked)
	_, err = service.GetUsage(ctx, "site0.com")
	assert.NoError(t, err)
}

func TestTrackedDomainsAndClear(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	require.NoError(t, service.Track(ctx, "a.com", get("https://api.a.com/x")))
	require.NoError(t, service.Track(ctx, "b.com", get("https://api.b.com/x")))
	require.NoError(t, service.Track(ctx, "b.com", get("https://api.b.com/y")))

	domains, err := service.TrackedDomains(ctx)
	require.NoError(t, err)
	require.Len(t, domains, 2)
	assert.Equal(t, "b.com", domains[0].Domain)
	assert.Equal(t, 2, domains[0].TotalRequests)
	assert.Equal(t, 2, domains[0].EndpointCount)

	require.NoError(t, service.Clear(ctx, "b.com"))
	require.NoError(t, service.Clear(ctx, "never-seen.com"))
	domains, err = service.TrackedDomains(ctx)
	require.NoError(t, err)
	require.Len(t, domains, 1)
	assert.Equal(t, "a.com", domains[0].Domain)

	require.NoError(t, service.ClearAll(ctx))
	domains, err = service.TrackedDomains(ctx)
	require.NoError(t, err)
	assert.Empty(t, domains)
}
