package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tokenscope/internal/common"
	"github.com/ternarybob/tokenscope/internal/interfaces"
	"github.com/ternarybob/tokenscope/internal/models"
	"github.com/ternarybob/tokenscope/internal/services/capture"
	configsvc "github.com/ternarybob/tokenscope/internal/services/config"
	"github.com/ternarybob/tokenscope/internal/services/events"
	"github.com/ternarybob/tokenscope/internal/services/identity"
	"github.com/ternarybob/tokenscope/internal/services/systemlogs"
	"github.com/ternarybob/tokenscope/internal/services/usage"
	"github.com/ternarybob/tokenscope/internal/storage/badger"
)

const testKey = "api.example.com::/v1/users/*::auth-token::Authorization"

type testEnv struct {
	eventSvc    interfaces.EventService
	credentials *identity.Service
	usage       *usage.Service
	config      *configsvc.Service
	capture     *capture.Service

	credentialHandler *CredentialHandler
	usageHandler      *UsageHandler
	configHandler     *ConfigHandler
	requestHandler    *RequestHandler
	commandHandler    *CommandHandler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := arbor.NewLogger()
	manager, err := badger.NewManager(logger, &common.BadgerConfig{Path: filepath.Join(t.TempDir(), "db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = manager.Close() })

	eventSvc := events.NewService(logger)
	credentials := identity.NewService(manager.CredentialStorage(), logger)
	usageSvc := usage.NewService(manager.UsageStorage(), logger)

	configService, err := configsvc.NewService(manager.CaptureConfigStorage(), eventSvc, nil, logger)
	require.NoError(t, err)
	initial, err := configService.Initialize(context.Background())
	require.NoError(t, err)

	captureSvc, err := capture.NewService(initial, credentials, usageSvc, eventSvc, logger)
	require.NoError(t, err)

	return &testEnv{
		eventSvc:          eventSvc,
		credentials:       credentials,
		usage:             usageSvc,
		config:            configService,
		capture:           captureSvc,
		credentialHandler: NewCredentialHandler(credentials, logger),
		usageHandler:      NewUsageHandler(usageSvc, logger),
		configHandler:     NewConfigHandler(logger, common.NewDefaultConfig(), configService),
		requestHandler:    NewRequestHandler(captureSvc, logger),
		commandHandler:    NewCommandHandler(credentials, usageSvc, configService, logger),
	}
}

func (e *testEnv) ingest(t *testing.T, token string) {
	t.Helper()
	record := &models.RequestRecord{
		URL:         "https://api.example.com/v1/users/42?page=1",
		Method:      "GET",
		Headers:     []models.Header{{Name: "Authorization", Value: "Bearer " + token}},
		OriginID:    "tab-1",
		Kind:        models.RequestKindXHR,
		DocumentURL: "https://app.example.com/",
	}
	_, err := e.capture.HandleRequest(context.Background(), record)
	require.NoError(t, err)
}

func do(handler http.HandlerFunc, method, target string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, _ := json.Marshal(b)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestCredentialHandler_ListMasksValues(t *testing.T) {
	env := newTestEnv(t)
	env.ingest(t, "supersecretvalue")

	rec := do(env.credentialHandler.ListHandler, http.MethodGet, "/api/credentials", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, float64(1), body["count"])

	credential := body["credentials"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "supe...alue", credential["value"])
	assert.Equal(t, common.Fingerprint("supersecretvalue"), credential["fingerprint"])
	assert.Equal(t, testKey, credential["key"])

	rec = do(env.credentialHandler.ListHandler, http.MethodGet, "/api/credentials?reveal=true", nil)
	credential = decode(t, rec)["credentials"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "supersecretvalue", credential["value"])

	// stored values are not modified by masking
	stored, err := env.credentials.Get(context.Background(), testKey)
	require.NoError(t, err)
	assert.Equal(t, "supersecretvalue", stored.Value)
}

func TestCredentialHandler_Item(t *testing.T) {
	env := newTestEnv(t)
	env.ingest(t, "abc")

	target := "/api/credentials/" + url.PathEscape(testKey)
	rec := do(env.credentialHandler.ItemHandler, http.MethodGet, target, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "********", decode(t, rec)["value"])

	rec = do(env.credentialHandler.ItemHandler, http.MethodDelete, target, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(env.credentialHandler.ItemHandler, http.MethodGet, target, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(env.credentialHandler.ItemHandler, http.MethodPatch, target, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestCredentialHandler_HistoryExpiredExport(t *testing.T) {
	env := newTestEnv(t)
	env.ingest(t, "first-token-value")
	env.ingest(t, "second-token-value")

	rec := do(env.credentialHandler.HistoryHandler, http.MethodGet, "/api/history?pageSize=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	history := body["history"].([]interface{})
	require.Len(t, history, 1)
	assert.Equal(t, "rotation", history[0].(map[string]interface{})["event"])
	assert.Equal(t, float64(2), body["pagination"].(map[string]interface{})["total_items"])

	rec = do(env.credentialHandler.ExpiredHandler, http.MethodGet, "/api/expired", nil)
	body = decode(t, rec)
	assert.Equal(t, float64(1), body["count"])
	assert.Equal(t, "firs...alue", body["expired"].([]interface{})[0].(map[string]interface{})["value"])

	rec = do(env.credentialHandler.ExportHandler, http.MethodGet, "/api/credentials/export", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")
	assert.Contains(t, rec.Body.String(), "second-token-value")

	rec = do(env.credentialHandler.HistoryHandler, http.MethodDelete, "/api/history", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = do(env.credentialHandler.ExpiredHandler, http.MethodDelete, "/api/expired", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	history2, err := env.credentials.History(context.Background())
	require.NoError(t, err)
	assert.Empty(t, history2)
}

func TestUsageHandler(t *testing.T) {
	env := newTestEnv(t)
	env.ingest(t, "abc")

	rec := do(env.usageHandler.DomainsHandler, http.MethodGet, "/api/usage", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decode(t, rec)["count"])

	rec = do(env.usageHandler.DomainHandler, http.MethodGet, "/api/usage/example.com", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "example.com", body["domain"])
	assert.Len(t, body["endpoints"].(map[string]interface{}), 1)

	rec = do(env.usageHandler.DomainHandler, http.MethodGet, "/api/usage/unknown.com", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(env.usageHandler.DomainHandler, http.MethodDelete, "/api/usage/example.com", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(env.usageHandler.DomainsHandler, http.MethodDelete, "/api/usage", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestConfigHandler_Rules(t *testing.T) {
	env := newTestEnv(t)

	rule := models.CustomRule{Name: "tenant", ExtractFrom: models.ExtractFromHeader, Key: "X-Tenant", Enabled: true}
	rec := do(env.configHandler.RulesHandler, http.MethodPost, "/api/rules", rule)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(env.configHandler.RulesHandler, http.MethodPost, "/api/rules", rule)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(env.configHandler.RulesHandler, http.MethodPost, "/api/rules",
		models.CustomRule{Name: "bad", ExtractFrom: models.ExtractFromPath, Pattern: "("})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(env.configHandler.RulesHandler, http.MethodPost, "/api/rules", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rule.Key = "X-Org"
	rec = do(env.configHandler.RuleHandler, http.MethodPut, "/api/rules/tenant", rule)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(env.configHandler.RulesHandler, http.MethodGet, "/api/rules", nil)
	body := decode(t, rec)
	assert.Equal(t, float64(1), body["count"])
	assert.Equal(t, "X-Org", body["rules"].([]interface{})[0].(map[string]interface{})["key"])

	// the pipeline picked up the rule
	result, err := env.capture.HandleRequest(context.Background(), &models.RequestRecord{
		URL:     "https://api.example.com/items",
		Headers: []models.Header{{Name: "X-Org", Value: "acme"}},
	})
	require.NoError(t, err)
	require.Len(t, result.Captured, 1)
	assert.Equal(t, "custom:tenant", result.Captured[0].Extraction.ExtractorName)

	rec = do(env.configHandler.RuleHandler, http.MethodDelete, "/api/rules/tenant", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = do(env.configHandler.RuleHandler, http.MethodDelete, "/api/rules/tenant", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestConfigHandler_GetSet(t *testing.T) {
	env := newTestEnv(t)

	rec := do(env.configHandler.CaptureConfigHandler, http.MethodGet, "/api/config", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, float64(8787), body["port"])
	assert.Equal(t, true, body["capture"].(map[string]interface{})["enabled"])

	next := models.NewDefaultCaptureConfig()
	next.Enabled = false
	rec = do(env.configHandler.CaptureConfigHandler, http.MethodPut, "/api/config", next)
	require.Equal(t, http.StatusOK, rec.Code)

	result, err := env.capture.HandleRequest(context.Background(), &models.RequestRecord{
		URL:     "https://api.example.com/items",
		Headers: []models.Header{{Name: "Authorization", Value: "Bearer abc"}},
	})
	require.NoError(t, err)
	assert.True(t, result.Filtered)
}

func TestRequestHandler(t *testing.T) {
	env := newTestEnv(t)

	single := `{"url":"https://api.example.com/v1/me?api_key=k1","method":"GET","kind":"fetch","documentUrl":"https://app.example.com/"}`
	rec := do(env.requestHandler.IngestHandler, http.MethodPost, "/api/requests", single)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	results := decode(t, rec)["results"].([]interface{})
	require.Len(t, results, 1)
	assert.Equal(t, float64(1), results[0].(map[string]interface{})["extractions"])
	assert.Equal(t, true, results[0].(map[string]interface{})["tracked"])

	batch := `[{"url":"https://a.example.com/"},{"url":"https://b.example.com/"}]`
	rec = do(env.requestHandler.IngestHandler, http.MethodPost, "/api/requests", batch)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["results"].([]interface{}), 2)

	rec = do(env.requestHandler.IngestHandler, http.MethodPost, "/api/requests", `{"method":"GET"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(env.requestHandler.IngestHandler, http.MethodPost, "/api/requests", `nope`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(env.requestHandler.IngestHandler, http.MethodGet, "/api/requests", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestCommandHandler(t *testing.T) {
	env := newTestEnv(t)
	env.ingest(t, "token-value-1234")

	rec := do(env.commandHandler.DispatchHandler, http.MethodPost, "/api/command", Command{Type: "do_something"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "error", body["status"])
	assert.Equal(t, "unrecognized operation: do_something", body["error"])

	rec = do(env.commandHandler.DispatchHandler, http.MethodPost, "/api/command", Command{Type: "get_credentials"})
	require.Equal(t, http.StatusOK, rec.Code)
	body = decode(t, rec)
	assert.Equal(t, "success", body["status"])
	assert.Len(t, body["data"].([]interface{}), 1)

	payload, _ := json.Marshal(map[string]interface{}{"key": testKey, "reveal": true})
	rec = do(env.commandHandler.DispatchHandler, http.MethodPost, "/api/command", Command{Type: "get_credential", Payload: payload})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "token-value-1234", decode(t, rec)["data"].(map[string]interface{})["value"])

	rec = do(env.commandHandler.DispatchHandler, http.MethodPost, "/api/command", Command{Type: "get_credential"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	payload, _ = json.Marshal(map[string]string{"domain": "example.com"})
	rec = do(env.commandHandler.DispatchHandler, http.MethodPost, "/api/command", Command{Type: "get_endpoint_usage", Payload: payload})
	assert.Equal(t, http.StatusOK, rec.Code)

	payload = json.RawMessage(`{"name":"tenant","extractFrom":"header","key":"X-Tenant"}`)
	rec = do(env.commandHandler.DispatchHandler, http.MethodPost, "/api/command", Command{Type: "add_custom_rule", Payload: payload})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	config, err := env.config.GetConfig(context.Background())
	require.NoError(t, err)
	require.Len(t, config.CustomRules, 1)
	assert.True(t, config.CustomRules[0].Enabled, "rules are enabled unless stated otherwise")

	payload, _ = json.Marshal(map[string]string{"name": "missing"})
	rec = do(env.commandHandler.DispatchHandler, http.MethodPost, "/api/command", Command{Type: "remove_custom_rule", Payload: payload})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(env.commandHandler.DispatchHandler, http.MethodPost, "/api/command", Command{Type: "clear_credentials"})
	assert.Equal(t, http.StatusOK, rec.Code)
	all, err := env.credentials.GetAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)

	assert.Contains(t, env.commandHandler.Operations(), "set_config")
}

func TestWebSocketHandler_BroadcastsCaptures(t *testing.T) {
	env := newTestEnv(t)
	ws := NewWebSocketHandler(env.eventSvc, arbor.NewLogger(), &common.WebSocketConfig{})

	server := httptest.NewServer(http.HandlerFunc(ws.HandleWebSocket))
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var hello WSMessage
	require.NoError(t, conn.ReadJSON(&hello))
	assert.Equal(t, "hello", hello.Type)
	assert.Equal(t, ws.ServerInstanceID(), hello.Payload.(map[string]interface{})["serverInstanceId"])

	require.Eventually(t, func() bool { return ws.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	env.ingest(t, "websocket-secret-value")

	seen := map[string]map[string]interface{}{}
	for len(seen) < 2 {
		var msg WSMessage
		require.NoError(t, conn.ReadJSON(&msg))
		seen[msg.Type] = msg.Payload.(map[string]interface{})
	}

	captured := seen[string(interfaces.EventCredentialCaptured)]
	require.NotNil(t, captured)
	assert.Equal(t, testKey, captured["key"])
	assert.Equal(t, "webs...alue", captured["credential"].(map[string]interface{})["value"])
	tracked := seen[string(interfaces.EventEndpointTracked)]
	require.NotNil(t, tracked)
	assert.Equal(t, "https://api.example.com/v1/users/42?page=********", tracked["url"])
	assert.Equal(t, "example.com", tracked["pageDomain"])
}

func TestStatusForError(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, StatusForError(interfaces.ErrCredentialNotFound))
	assert.Equal(t, http.StatusConflict, StatusForError(interfaces.ErrRuleExists))
	assert.Equal(t, http.StatusBadRequest, StatusForError(interfaces.ErrInvalidConfig))
	assert.Equal(t, http.StatusInternalServerError, StatusForError(assert.AnError))
}

func TestPaginate(t *testing.T) {
	items, page := Paginate([]int{1, 2, 3, 4, 5}, 1, 2)
	assert.Equal(t, []int{3, 4}, items)
	assert.Equal(t, 3, page.TotalPages)

	items, _ = Paginate([]int{1, 2}, 5, 2)
	assert.Empty(t, items)
}

func TestSystemLogsHandler(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tokenscope.log"),
		[]byte("10:00:01 INF > Credential captured\n10:00:02 WRN > Failed to track endpoint\n"), 0644))

	h := NewSystemLogsHandler(systemlogs.NewService(dir, arbor.NewLogger()), arbor.NewLogger())

	rec := do(h.ListFilesHandler, http.MethodGet, "/api/logs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decode(t, rec)["count"])

	rec = do(h.TailHandler, http.MethodGet, "/api/logs/tokenscope.log?level=warn", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, float64(1), body["count"])

	rec = do(h.TailHandler, http.MethodGet, "/api/logs/other.log", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
