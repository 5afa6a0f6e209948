package server

import (
	"net/http"
	"strings"

	"github.com/ternarybob/tokenscope/internal/handlers"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket route (live capture stream)
	mux.HandleFunc("/ws", s.app.WSHandler.HandleWebSocket)

	// API routes - Credentials
	mux.HandleFunc("/api/credentials", s.app.CredentialHandler.ListHandler)          // GET (list), DELETE (clear)
	mux.HandleFunc("/api/credentials/export", s.app.CredentialHandler.ExportHandler) // GET - unmasked JSON download
	mux.HandleFunc("/api/credentials/", s.app.CredentialHandler.ItemHandler)         // GET/DELETE /{key}
	mux.HandleFunc("/api/history", s.app.CredentialHandler.HistoryHandler)           // GET (paginated), DELETE
	mux.HandleFunc("/api/expired", s.app.CredentialHandler.ExpiredHandler)           // GET, DELETE

	// API routes - Endpoint usage
	mux.HandleFunc("/api/usage", s.app.UsageHandler.DomainsHandler) // GET (tracked domains), DELETE (clear all)
	mux.HandleFunc("/api/usage/", s.app.UsageHandler.DomainHandler) // GET/DELETE /{domain}

	// API routes - Capture configuration
	mux.HandleFunc("/api/config", s.app.ConfigHandler.CaptureConfigHandler) // GET, PUT
	mux.HandleFunc("/api/rules", s.app.ConfigHandler.RulesHandler)          // GET (list), POST (add)
	mux.HandleFunc("/api/rules/", s.app.ConfigHandler.RuleHandler)          // PUT/DELETE /{name}

	// API routes - Request ingestion and command dispatch (browser extension)
	mux.HandleFunc("/api/requests", s.app.RequestHandler.IngestHandler)
	mux.HandleFunc("/api/command", s.app.CommandHandler.DispatchHandler)

	// API routes - Maintenance jobs
	mux.HandleFunc("/api/maintenance", s.app.SchedulerHandler.JobsHandler)
	mux.HandleFunc("/api/maintenance/", s.handleMaintenanceRoutes)

	// API routes - Service logs
	mux.HandleFunc("/api/logs", s.app.SystemLogsHandler.ListFilesHandler)
	mux.HandleFunc("/api/logs/", s.app.SystemLogsHandler.TailHandler)

	// API routes - System
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)
	mux.HandleFunc("/api/shutdown", s.ShutdownHandler) // Graceful shutdown endpoint (dev mode)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.app.APIHandler.NotFoundHandler)

	return mux
}

// handleMaintenanceRoutes routes POST /api/maintenance/{name}/{run|enable|disable}
func (s *Server) handleMaintenanceRoutes(w http.ResponseWriter, r *http.Request) {
	routes := []PathSuffixRouter{
		{Suffix: "/run", Handler: s.app.SchedulerHandler.JobHandler},
		{Suffix: "/enable", Handler: s.app.SchedulerHandler.JobHandler},
		{Suffix: "/disable", Handler: s.app.SchedulerHandler.JobHandler},
	}
	if RouteByPathSuffix(w, r, "/api/maintenance/", routes) {
		return
	}

	// GET /api/maintenance/{name}
	RouteByMethod(w, r, MethodRouter{http.MethodGet: s.jobStatus})
}

func (s *Server) jobStatus(w http.ResponseWriter, r *http.Request) {
	name := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/maintenance/"), "/")
	status, err := s.app.SchedulerService.GetJobStatus(name)
	if err != nil {
		handlers.WriteServiceError(w, s.app.Logger, err)
		return
	}
	handlers.WriteJSON(w, http.StatusOK, status)
}
