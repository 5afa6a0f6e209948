package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tokenscope/internal/common"
	"github.com/ternarybob/tokenscope/internal/interfaces"
	"github.com/ternarybob/tokenscope/internal/models"
)

// CredentialHandler serves the credential query operations
type CredentialHandler struct {
	credentials interfaces.CredentialService
	logger      arbor.ILogger
}

func NewCredentialHandler(credentials interfaces.CredentialService, logger arbor.ILogger) *CredentialHandler {
	return &CredentialHandler{
		credentials: credentials,
		logger:      logger,
	}
}

// CredentialView is a stored credential as returned by the API. Values are
// masked unless the caller asks to reveal them.
type CredentialView struct {
	*models.StoredCredential
	Fingerprint string `json:"fingerprint"`
}

// NewCredentialView copies c, masking secret values when reveal is false
func NewCredentialView(c *models.StoredCredential, reveal bool) CredentialView {
	view := *c
	fingerprint := common.Fingerprint(c.Value)
	if !reveal {
		view.Value = common.MaskValue(c.Value)
		if c.PreviousValue != "" {
			view.PreviousValue = common.MaskValue(c.PreviousValue)
		}
		view.AllMatches = maskMatches(c.AllMatches)
	}
	return CredentialView{StoredCredential: &view, Fingerprint: fingerprint}
}

func maskMatches(matches map[string]string) map[string]string {
	if matches == nil {
		return nil
	}
	masked := make(map[string]string, len(matches))
	for name, value := range matches {
		masked[name] = common.MaskValue(value)
	}
	return masked
}

func credentialViews(list []*models.StoredCredential, reveal bool) []CredentialView {
	views := make([]CredentialView, 0, len(list))
	for _, c := range list {
		views = append(views, NewCredentialView(c, reveal))
	}
	return views
}

// ListHandler handles GET (list) and DELETE (clear all) on /api/credentials
func (h *CredentialHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		list, err := h.credentials.List(r.Context())
		if err != nil {
			WriteServiceError(w, h.logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]interface{}{
			"credentials": credentialViews(list, QueryBool(r, "reveal")),
			"count":       len(list),
		})

	case http.MethodDelete:
		if err := h.credentials.Clear(r.Context()); err != nil {
			WriteServiceError(w, h.logger, err)
			return
		}
		h.logger.Info().Msg("All credentials cleared")
		WriteSuccess(w, "Credentials cleared")

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// ItemHandler handles GET and DELETE on /api/credentials/{key}
func (h *CredentialHandler) ItemHandler(w http.ResponseWriter, r *http.Request) {
	key := PathParam(r, "/api/credentials/")
	if key == "" {
		WriteError(w, http.StatusBadRequest, "Credential key is required")
		return
	}

	switch r.Method {
	case http.MethodGet:
		credential, err := h.credentials.Get(r.Context(), key)
		if err != nil {
			WriteServiceError(w, h.logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, NewCredentialView(credential, QueryBool(r, "reveal")))

	case http.MethodDelete:
		if err := h.credentials.Remove(r.Context(), key); err != nil {
			WriteServiceError(w, h.logger, err)
			return
		}
		h.logger.Info().Str("key", key).Msg("Credential removed")
		WriteSuccess(w, "Credential removed")

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// ExportHandler returns every credential unmasked as a JSON attachment
func (h *CredentialHandler) ExportHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	list, err := h.credentials.List(r.Context())
	if err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}

	filename := fmt.Sprintf("tokenscope-credentials-%s.json", time.Now().Format("20060102-150405"))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"exportedAt":  time.Now().UTC(),
		"version":     common.GetVersion(),
		"credentials": list,
	})

	h.logger.Info().Int("count", len(list)).Msg("Credentials exported")
}

// HistoryHandler handles GET (paginated) and DELETE on /api/history
func (h *CredentialHandler) HistoryHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		history, err := h.credentials.History(r.Context())
		if err != nil {
			WriteServiceError(w, h.logger, err)
			return
		}
		if !QueryBool(r, "reveal") {
			history = maskHistory(history)
		}
		page, pageSize := GetPaginationParams(r)
		items, pagination := Paginate(history, page, pageSize)
		WriteJSON(w, http.StatusOK, map[string]interface{}{
			"history":    items,
			"pagination": pagination,
		})

	case http.MethodDelete:
		if err := h.credentials.ClearHistory(r.Context()); err != nil {
			WriteServiceError(w, h.logger, err)
			return
		}
		WriteSuccess(w, "History cleared")

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// ExpiredHandler handles GET and DELETE on /api/expired
func (h *CredentialHandler) ExpiredHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		expired, err := h.credentials.ExpiredTokens(r.Context())
		if err != nil {
			WriteServiceError(w, h.logger, err)
			return
		}
		if !QueryBool(r, "reveal") {
			expired = maskExpired(expired)
		}
		WriteJSON(w, http.StatusOK, map[string]interface{}{
			"expired": expired,
			"count":   len(expired),
		})

	case http.MethodDelete:
		if err := h.credentials.ClearExpiredTokens(r.Context()); err != nil {
			WriteServiceError(w, h.logger, err)
			return
		}
		WriteSuccess(w, "Expired tokens cleared")

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func maskHistory(history []*models.HistoryEntry) []*models.HistoryEntry {
	masked := make([]*models.HistoryEntry, 0, len(history))
	for _, entry := range history {
		copied := *entry
		copied.Value = common.MaskValue(entry.Value)
		masked = append(masked, &copied)
	}
	return masked
}

func maskExpired(expired []*models.ExpiredToken) []*models.ExpiredToken {
	masked := make([]*models.ExpiredToken, 0, len(expired))
	for _, token := range expired {
		copied := *token
		copied.Value = common.MaskValue(token.Value)
		masked = append(masked, &copied)
	}
	return masked
}
