package capture

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tokenscope/internal/common"
	"github.com/ternarybob/tokenscope/internal/interfaces"
	"github.com/ternarybob/tokenscope/internal/models"
	"github.com/ternarybob/tokenscope/internal/services/events"
	"github.com/ternarybob/tokenscope/internal/services/identity"
	"github.com/ternarybob/tokenscope/internal/services/usage"
	"github.com/ternarybob/tokenscope/internal/storage/badger"
)

type staticTabs map[string]string

func (t staticTabs) PageURL(ctx context.Context, originID string) (string, bool) {
	u, ok := t[originID]
	return u, ok
}

type recorder struct {
	mu     sync.Mutex
	events map[interfaces.EventType]int
}

func (r *recorder) handle(ctx context.Context, event interfaces.Event) error {
	r.mu.Lock()
	r.events[event.Type]++
	r.mu.Unlock()
	return nil
}

func (r *recorder) count(eventType interfaces.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[eventType]
}

type fixture struct {
	service     *Service
	credentials *identity.Service
	usage       *usage.Service
	eventSvc    interfaces.EventService
	recorder    *recorder
}

func newFixture(t *testing.T, config *models.CaptureConfig) fixture {
	t.Helper()

	logger := arbor.NewLogger()
	manager, err := badger.NewManager(logger, &common.BadgerConfig{Path: filepath.Join(t.TempDir(), "db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = manager.Close() })

	eventSvc := events.NewService(logger)
	rec := &recorder{events: make(map[interfaces.EventType]int)}
	require.NoError(t, eventSvc.Subscribe(interfaces.EventCredentialCaptured, rec.handle))
	require.NoError(t, eventSvc.Subscribe(interfaces.EventEndpointTracked, rec.handle))

	credentials := identity.NewService(manager.CredentialStorage(), logger)
	usageSvc := usage.NewService(manager.UsageStorage(), logger)

	service, err := NewService(config, credentials, usageSvc, eventSvc, logger)
	require.NoError(t, err)

	return fixture{service: service, credentials: credentials, usage: usageSvc, eventSvc: eventSvc, recorder: rec}
}

func apiCall(url, token string) *models.RequestRecord {
	return &models.RequestRecord{
		URL:         url,
		Method:      "GET",
		Headers:     []models.Header{{Name: "Authorization", Value: "Bearer " + token}},
		OriginID:    "tab-1",
		Kind:        models.RequestKindXHR,
		DocumentURL: "https://app.example.com/dashboard",
	}
}

func TestHandleRequest_CaptureAndRotate(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	result, err := f.service.HandleRequest(ctx, apiCall("https://api.example.com/v1/users/42", "abc"))
	require.NoError(t, err)
	assert.False(t, result.Filtered)
	assert.Equal(t, 1, result.Extractions)
	assert.Equal(t, 0, result.Rotations)
	assert.Equal(t, "example.com", result.PageDomain)
	assert.True(t, result.Tracked)

	result, err = f.service.HandleRequest(ctx, apiCall("https://api.example.com/v1/users/99", "xyz"))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Rotations)
	require.Len(t, result.Captured, 1)
	assert.True(t, result.Captured[0].RotationDetected)
	assert.Equal(t, "abc", result.Captured[0].Previous.Value)

	stored, err := f.credentials.Get(ctx, "api.example.com::/v1/users/*::auth-token::Authorization")
	require.NoError(t, err)
	assert.Equal(t, "xyz", stored.Value)
	assert.Equal(t, 1, stored.RotationCount)

	bucket, err := f.usage.GetUsage(ctx, "example.com")
	require.NoError(t, err)
	assert.Equal(t, 2, bucket.TotalRequests)
	assert.Len(t, bucket.Endpoints, 1)

	require.Eventually(t, func() bool {
		return f.recorder.count(interfaces.EventCredentialCaptured) == 2 &&
			f.recorder.count(interfaces.EventEndpointTracked) == 2
	}, time.Second, 10*time.Millisecond)
}

func TestHandleRequest_BlockedDomainLeavesNothing(t *testing.T) {
	config := models.NewDefaultCaptureConfig()
	config.BlockedDomains = []string{"*.example.com"}
	f := newFixture(t, config)
	ctx := context.Background()

	result, err := f.service.HandleRequest(ctx, apiCall("https://api.example.com/v1/me?api_key=SUPERSECRET", "abc"))
	require.NoError(t, err)
	assert.True(t, result.Filtered)
	assert.Equal(t, 0, result.Extractions)
	assert.False(t, result.Tracked)

	all, err := f.credentials.GetAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	domains, err := f.usage.TrackedDomains(ctx)
	require.NoError(t, err)
	assert.Empty(t, domains)

	_, err = f.usage.GetUsage(ctx, "example.com")
	assert.ErrorIs(t, err, interfaces.ErrDomainNotTracked)
}

func TestHandleRequest_DisabledCaptureLeavesNothing(t *testing.T) {
	config := models.NewDefaultCaptureConfig()
	config.Enabled = false
	f := newFixture(t, config)
	ctx := context.Background()

	result, err := f.service.HandleRequest(ctx, apiCall("https://api.example.com/v1/me?token=t1", "abc"))
	require.NoError(t, err)
	assert.True(t, result.Filtered)
	assert.False(t, result.Tracked)

	domains, err := f.usage.TrackedDomains(ctx)
	require.NoError(t, err)
	assert.Empty(t, domains)
}

func TestHandleRequest_SupplementalOnlyAddsCookies(t *testing.T) {
	config := models.NewDefaultCaptureConfig()
	config.CustomRules = []models.CustomRule{
		{Name: "tenant", ExtractFrom: models.ExtractFromPath, Pattern: `/tenants/([^/]+)`, Enabled: true},
		{Name: "csrf", ExtractFrom: models.ExtractFromCookie, Key: "csrftoken", Enabled: true},
	}
	f := newFixture(t, config)
	ctx := context.Background()

	original := &models.RequestRecord{
		URL:         "https://api.example.com/tenants/acme/items?api_key=K1",
		Method:      "GET",
		OriginID:    "tab-1",
		Kind:        models.RequestKindXHR,
		DocumentURL: "https://app.example.com/",
	}
	result, err := f.service.HandleRequest(ctx, original)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Extractions)

	extra := &models.RequestRecord{
		URL:          original.URL,
		Method:       original.Method,
		Headers:      []models.Header{{Name: "Cookie", Value: "session=S1; csrftoken=C1"}},
		OriginID:     original.OriginID,
		Kind:         original.Kind,
		DocumentURL:  original.DocumentURL,
		Supplemental: true,
	}
	result, err = f.service.HandleRequest(ctx, extra)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Extractions)
	for _, event := range result.Captured {
		assert.True(t, event.Extraction.FromCookie(), "unexpected %s extraction", event.Extraction.Type)
	}

	history, err := f.credentials.History(ctx)
	require.NoError(t, err)
	byType := make(map[models.ExtractionType]int)
	for _, entry := range history {
		byType[entry.Type]++
	}
	assert.Equal(t, map[models.ExtractionType]int{
		models.ExtractionQueryParam: 1,
		models.ExtractionCustom:     2,
		models.ExtractionCookie:     1,
	}, byType)

	require.Eventually(t, func() bool {
		return f.recorder.count(interfaces.EventCredentialCaptured) == 4
	}, time.Second, 10*time.Millisecond)
}

func TestHandleRequest_TabResolverWins(t *testing.T) {
	f := newFixture(t, nil)
	f.service.SetTabResolver(staticTabs{"tab-1": "https://shop.example.co.uk/cart"})

	result, err := f.service.HandleRequest(context.Background(), apiCall("https://api.stripe.com/v1/charges", "abc"))
	require.NoError(t, err)
	assert.Equal(t, "example.co.uk", result.PageDomain)
}

func TestHandleRequest_NonAPIAndSupplementalNotTracked(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	doc := apiCall("https://app.example.com/", "abc")
	doc.Kind = models.RequestKindDocument
	result, err := f.service.HandleRequest(ctx, doc)
	require.NoError(t, err)
	assert.False(t, result.Tracked)
	assert.Equal(t, 1, result.Extractions)

	extra := &models.RequestRecord{
		URL:          "https://api.example.com/v1/me",
		Headers:      []models.Header{{Name: "Cookie", Value: "session_id=s1; theme=dark"}},
		Kind:         models.RequestKindFetch,
		DocumentURL:  "https://app.example.com/",
		Supplemental: true,
	}
	result, err = f.service.HandleRequest(ctx, extra)
	require.NoError(t, err)
	assert.False(t, result.Tracked)
	assert.Equal(t, 1, result.Extractions)

	domains, err := f.usage.TrackedDomains(ctx)
	require.NoError(t, err)
	assert.Empty(t, domains)
}

func TestHandleRequest_InvalidRecords(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.service.HandleRequest(ctx, nil)
	assert.Error(t, err)

	_, err = f.service.HandleRequest(ctx, &models.RequestRecord{})
	assert.Error(t, err)

	result, err := f.service.HandleRequest(ctx, &models.RequestRecord{URL: "not a url"})
	require.NoError(t, err)
	assert.True(t, result.Filtered)
}

func TestConfigChangeReloadsPipeline(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	disabled := models.NewDefaultCaptureConfig()
	disabled.Enabled = false
	require.NoError(t, f.eventSvc.PublishSync(ctx, interfaces.Event{Type: interfaces.EventCaptureConfigChanged, Payload: disabled}))

	result, err := f.service.HandleRequest(ctx, apiCall("https://api.example.com/v1/me", "abc"))
	require.NoError(t, err)
	assert.True(t, result.Filtered)
	assert.False(t, f.service.Dispatcher().Enabled())

	withRule := models.NewDefaultCaptureConfig()
	withRule.CustomRules = []models.CustomRule{{
		Name: "tenant", ExtractFrom: models.ExtractFromPath, Pattern: `/tenants/([^/]+)`, Enabled: true,
	}}
	require.NoError(t, f.eventSvc.PublishSync(ctx, interfaces.Event{Type: interfaces.EventCaptureConfigChanged, Payload: withRule}))

	record := &models.RequestRecord{URL: "https://api.example.com/tenants/acme/items", Kind: models.RequestKindXHR}
	result, err = f.service.HandleRequest(ctx, record)
	require.NoError(t, err)
	require.Len(t, result.Captured, 1)
	assert.Equal(t, "acme", result.Captured[0].Extraction.Value)

	err = f.eventSvc.PublishSync(ctx, interfaces.Event{Type: interfaces.EventCaptureConfigChanged, Payload: "bogus"})
	assert.Error(t, err)
}
