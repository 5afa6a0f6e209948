package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tokenscope/internal/interfaces"
)

// UsageHandler serves the endpoint usage query operations
type UsageHandler struct {
	usage  interfaces.UsageService
	logger arbor.ILogger
}

func NewUsageHandler(usage interfaces.UsageService, logger arbor.ILogger) *UsageHandler {
	return &UsageHandler{
		usage:  usage,
		logger: logger,
	}
}

// DomainsHandler handles GET (tracked domains) and DELETE (clear all) on /api/usage
func (h *UsageHandler) DomainsHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		domains, err := h.usage.TrackedDomains(r.Context())
		if err != nil {
			WriteServiceError(w, h.logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]interface{}{
			"domains": domains,
			"count":   len(domains),
		})

	case http.MethodDelete:
		if err := h.usage.ClearAll(r.Context()); err != nil {
			WriteServiceError(w, h.logger, err)
			return
		}
		h.logger.Info().Msg("All endpoint usage cleared")
		WriteSuccess(w, "Endpoint usage cleared")

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// DomainHandler handles GET and DELETE on /api/usage/{domain}
func (h *UsageHandler) DomainHandler(w http.ResponseWriter, r *http.Request) {
	domain := PathParam(r, "/api/usage/")
	if domain == "" {
		WriteError(w, http.StatusBadRequest, "Domain is required")
		return
	}

	switch r.Method {
	case http.MethodGet:
		usage, err := h.usage.GetUsage(r.Context(), domain)
		if err != nil {
			WriteServiceError(w, h.logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, usage)

	case http.MethodDelete:
		if err := h.usage.Clear(r.Context(), domain); err != nil {
			WriteServiceError(w, h.logger, err)
			return
		}
		h.logger.Info().Str("domain", domain).Msg("Endpoint usage cleared for domain")
		WriteSuccess(w, "Endpoint usage cleared")

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}
