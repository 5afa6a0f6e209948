package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tokenscope/internal/services/systemlogs"
)

// SystemLogsHandler serves the service's own log files
type SystemLogsHandler struct {
	service *systemlogs.Service
	logger  arbor.ILogger
}

func NewSystemLogsHandler(service *systemlogs.Service, logger arbor.ILogger) *SystemLogsHandler {
	return &SystemLogsHandler{
		service: service,
		logger:  logger,
	}
}

// ListFilesHandler handles GET /api/logs
func (h *SystemLogsHandler) ListFilesHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	files, err := h.service.ListLogFiles()
	if err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"files": files,
		"count": len(files),
	})
}

// TailHandler handles GET /api/logs/{file}?limit=&level=warn,error&contains=
func (h *SystemLogsHandler) TailHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	name := PathParam(r, "/api/logs/")
	query := systemlogs.Query{
		Contains: r.URL.Query().Get("contains"),
	}
	if limit, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil {
		query.Limit = limit
	}
	if levels := r.URL.Query().Get("level"); levels != "" {
		query.Levels = strings.Split(levels, ",")
	}

	entries, err := h.service.Tail(name, query)
	if errors.Is(err, systemlogs.ErrLogNotFound) {
		WriteError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"file":    name,
		"entries": entries,
		"count":   len(entries),
	})
}
