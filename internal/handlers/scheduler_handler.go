package handlers

import (
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tokenscope/internal/interfaces"
)

// SchedulerHandler exposes the maintenance jobs
type SchedulerHandler struct {
	scheduler interfaces.SchedulerService
	logger    arbor.ILogger
}

func NewSchedulerHandler(scheduler interfaces.SchedulerService, logger arbor.ILogger) *SchedulerHandler {
	return &SchedulerHandler{
		scheduler: scheduler,
		logger:    logger,
	}
}

// JobsHandler handles GET /api/maintenance
func (h *SchedulerHandler) JobsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"running": h.scheduler.IsRunning(),
		"jobs":    h.scheduler.GetAllJobStatuses(),
	})
}

// JobHandler handles POST /api/maintenance/{name}/run|enable|disable
func (h *SchedulerHandler) JobHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/maintenance/"), "/")
	slash := strings.LastIndex(rest, "/")
	if slash <= 0 {
		WriteError(w, http.StatusNotFound, "Unknown maintenance action")
		return
	}
	name, action := rest[:slash], rest[slash+1:]

	var err error
	switch action {
	case "run":
		err = h.scheduler.TriggerJob(name)
	case "enable":
		err = h.scheduler.EnableJob(name)
	case "disable":
		err = h.scheduler.DisableJob(name)
	default:
		WriteError(w, http.StatusNotFound, "Unknown maintenance action: "+action)
		return
	}
	if err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}

	status, err := h.scheduler.GetJobStatus(name)
	if err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, status)
}
