package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tokenscope/internal/common"
	"github.com/ternarybob/tokenscope/internal/interfaces"
	"github.com/ternarybob/tokenscope/internal/models"
)

type ConfigHandler struct {
	logger    arbor.ILogger
	config    *common.Config
	configSvc interfaces.CaptureConfigService
}

func NewConfigHandler(logger arbor.ILogger, config *common.Config, configSvc interfaces.CaptureConfigService) *ConfigHandler {
	return &ConfigHandler{
		logger:    logger,
		config:    config,
		configSvc: configSvc,
	}
}

// ConfigResponse represents the configuration response
type ConfigResponse struct {
	Version string                `json:"version"`
	Port    int                   `json:"port"`
	Host    string                `json:"host"`
	Capture *models.CaptureConfig `json:"capture"`
}

// CaptureConfigHandler handles GET and PUT on /api/config. PUT replaces the whole
// capture configuration.
func (h *ConfigHandler) CaptureConfigHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		capture, err := h.configSvc.GetConfig(r.Context())
		if err != nil {
			WriteServiceError(w, h.logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, ConfigResponse{
			Version: common.GetVersion(),
			Port:    h.config.Server.Port,
			Host:    h.config.Server.Host,
			Capture: capture,
		})

	case http.MethodPut:
		var capture models.CaptureConfig
		if err := DecodeJSON(w, r, &capture); err != nil {
			WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		saved, err := h.configSvc.SetConfig(r.Context(), &capture)
		if err != nil {
			WriteServiceError(w, h.logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, saved)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// RulesHandler handles GET (list) and POST (add) on /api/rules
func (h *ConfigHandler) RulesHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		rules, err := h.configSvc.ListRules(r.Context())
		if err != nil {
			WriteServiceError(w, h.logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]interface{}{
			"rules": rules,
			"count": len(rules),
		})

	case http.MethodPost:
		var rule models.CustomRule
		if err := DecodeJSON(w, r, &rule); err != nil {
			WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		saved, err := h.configSvc.AddRule(r.Context(), rule)
		if err != nil {
			WriteServiceError(w, h.logger, err)
			return
		}
		WriteJSON(w, http.StatusCreated, saved)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// RuleHandler handles PUT (update) and DELETE on /api/rules/{name}
func (h *ConfigHandler) RuleHandler(w http.ResponseWriter, r *http.Request) {
	name := PathParam(r, "/api/rules/")
	if name == "" {
		WriteError(w, http.StatusBadRequest, "Rule name is required")
		return
	}

	switch r.Method {
	case http.MethodPut:
		var rule models.CustomRule
		if err := DecodeJSON(w, r, &rule); err != nil {
			WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		saved, err := h.configSvc.UpdateRule(r.Context(), name, rule)
		if err != nil {
			WriteServiceError(w, h.logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, saved)

	case http.MethodDelete:
		saved, err := h.configSvc.RemoveRule(r.Context(), name)
		if err != nil {
			WriteServiceError(w, h.logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, saved)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}
