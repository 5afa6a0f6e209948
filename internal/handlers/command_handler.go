package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tokenscope/internal/interfaces"
	"github.com/ternarybob/tokenscope/internal/models"
)

var errInvalidPayload = errors.New("invalid payload")

// Command is a message-style query operation
type Command struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type commandFunc func(ctx context.Context, payload json.RawMessage) (interface{}, error)

// CommandHandler dispatches message-style operations onto the services
type CommandHandler struct {
	credentials interfaces.CredentialService
	usage       interfaces.UsageService
	configSvc   interfaces.CaptureConfigService
	logger      arbor.ILogger
	operations  map[string]commandFunc
}

func NewCommandHandler(
	credentials interfaces.CredentialService,
	usage interfaces.UsageService,
	configSvc interfaces.CaptureConfigService,
	logger arbor.ILogger,
) *CommandHandler {
	h := &CommandHandler{
		credentials: credentials,
		usage:       usage,
		configSvc:   configSvc,
		logger:      logger,
	}

	h.operations = map[string]commandFunc{
		"get_credentials":      h.getCredentials,
		"get_credential":       h.getCredential,
		"remove_credential":    h.removeCredential,
		"clear_credentials":    h.clearCredentials,
		"get_history":          h.getHistory,
		"clear_history":        h.clearHistory,
		"get_expired_tokens":   h.getExpiredTokens,
		"clear_expired_tokens": h.clearExpiredTokens,
		"get_endpoint_usage":   h.getEndpointUsage,
		"get_tracked_domains":  h.getTrackedDomains,
		"clear_endpoint_usage": h.clearEndpointUsage,
		"add_custom_rule":      h.addCustomRule,
		"remove_custom_rule":   h.removeCustomRule,
		"get_config":           h.getConfig,
		"set_config":           h.setConfig,
	}

	return h
}

// Operations lists the supported command types
func (h *CommandHandler) Operations() []string {
	names := make([]string, 0, len(h.operations))
	for name := range h.operations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DispatchHandler handles POST /api/command
func (h *CommandHandler) DispatchHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var cmd Command
	if err := DecodeJSON(w, r, &cmd); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	op, ok := h.operations[cmd.Type]
	if !ok {
		h.logger.Debug().Str("type", cmd.Type).Msg("Unrecognized command")
		WriteError(w, http.StatusBadRequest, "unrecognized operation: "+cmd.Type)
		return
	}

	data, err := op(r.Context(), cmd.Payload)
	if err != nil {
		if errors.Is(err, errInvalidPayload) {
			WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		WriteServiceError(w, h.logger, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status": "success",
		"data":   data,
	})
}

func decodePayload(payload json.RawMessage, v interface{}) error {
	if len(payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("%w: %v", errInvalidPayload, err)
	}
	return nil
}

type keyPayload struct {
	Key    string `json:"key"`
	Reveal bool   `json:"reveal"`
}

type domainPayload struct {
	Domain string `json:"domain"`
}

type revealPayload struct {
	Reveal bool `json:"reveal"`
}

func (h *CommandHandler) getCredentials(ctx context.Context, payload json.RawMessage) (interface{}, error) {
	var p revealPayload
	if err := decodePayload(payload, &p); err != nil {
		return nil, err
	}
	list, err := h.credentials.List(ctx)
	if err != nil {
		return nil, err
	}
	return credentialViews(list, p.Reveal), nil
}

func (h *CommandHandler) getCredential(ctx context.Context, payload json.RawMessage) (interface{}, error) {
	var p keyPayload
	if err := decodePayload(payload, &p); err != nil {
		return nil, err
	}
	if p.Key == "" {
		return nil, fmt.Errorf("%w: key is required", errInvalidPayload)
	}
	credential, err := h.credentials.Get(ctx, p.Key)
	if err != nil {
		return nil, err
	}
	return NewCredentialView(credential, p.Reveal), nil
}

func (h *CommandHandler) removeCredential(ctx context.Context, payload json.RawMessage) (interface{}, error) {
	var p keyPayload
	if err := decodePayload(payload, &p); err != nil {
		return nil, err
	}
	if p.Key == "" {
		return nil, fmt.Errorf("%w: key is required", errInvalidPayload)
	}
	return nil, h.credentials.Remove(ctx, p.Key)
}

func (h *CommandHandler) clearCredentials(ctx context.Context, _ json.RawMessage) (interface{}, error) {
	return nil, h.credentials.Clear(ctx)
}

func (h *CommandHandler) getHistory(ctx context.Context, payload json.RawMessage) (interface{}, error) {
	var p revealPayload
	if err := decodePayload(payload, &p); err != nil {
		return nil, err
	}
	history, err := h.credentials.History(ctx)
	if err != nil || p.Reveal {
		return history, err
	}
	return maskHistory(history), nil
}

func (h *CommandHandler) clearHistory(ctx context.Context, _ json.RawMessage) (interface{}, error) {
	return nil, h.credentials.ClearHistory(ctx)
}

func (h *CommandHandler) getExpiredTokens(ctx context.Context, payload json.RawMessage) (interface{}, error) {
	var p revealPayload
	if err := decodePayload(payload, &p); err != nil {
		return nil, err
	}
	expired, err := h.credentials.ExpiredTokens(ctx)
	if err != nil || p.Reveal {
		return expired, err
	}
	return maskExpired(expired), nil
}

func (h *CommandHandler) clearExpiredTokens(ctx context.Context, _ json.RawMessage) (interface{}, error) {
	return nil, h.credentials.ClearExpiredTokens(ctx)
}

func (h *CommandHandler) getEndpointUsage(ctx context.Context, payload json.RawMessage) (interface{}, error) {
	var p domainPayload
	if err := decodePayload(payload, &p); err != nil {
		return nil, err
	}
	if p.Domain == "" {
		return nil, fmt.Errorf("%w: domain is required", errInvalidPayload)
	}
	return h.usage.GetUsage(ctx, p.Domain)
}

func (h *CommandHandler) getTrackedDomains(ctx context.Context, _ json.RawMessage) (interface{}, error) {
	return h.usage.TrackedDomains(ctx)
}

// clearEndpointUsage clears one domain, or every domain when none is given
func (h *CommandHandler) clearEndpointUsage(ctx context.Context, payload json.RawMessage) (interface{}, error) {
	var p domainPayload
	if err := decodePayload(payload, &p); err != nil {
		return nil, err
	}
	if p.Domain == "" {
		return nil, h.usage.ClearAll(ctx)
	}
	return nil, h.usage.Clear(ctx, p.Domain)
}

func (h *CommandHandler) addCustomRule(ctx context.Context, payload json.RawMessage) (interface{}, error) {
	var rule models.CustomRule
	if err := decodePayload(payload, &rule); err != nil {
		return nil, err
	}
	return h.configSvc.AddRule(ctx, rule)
}

func (h *CommandHandler) removeCustomRule(ctx context.Context, payload json.RawMessage) (interface{}, error) {
	var p struct {
		Name string `json:"name"`
	}
	if err := decodePayload(payload, &p); err != nil {
		return nil, err
	}
	if p.Name == "" {
		return nil, fmt.Errorf("%w: name is required", errInvalidPayload)
	}
	return h.configSvc.RemoveRule(ctx, p.Name)
}

func (h *CommandHandler) getConfig(ctx context.Context, _ json.RawMessage) (interface{}, error) {
	return h.configSvc.GetConfig(ctx)
}

func (h *CommandHandler) setConfig(ctx context.Context, payload json.RawMessage) (interface{}, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: config is required", errInvalidPayload)
	}
	var config models.CaptureConfig
	if err := decodePayload(payload, &config); err != nil {
		return nil, err
	}
	return h.configSvc.SetConfig(ctx, &config)
}
