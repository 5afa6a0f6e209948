package server

import (
	"net/http"

	"github.com/ternarybob/tokenscope/internal/handlers"
)

// SetShutdownChannel sets the channel closed by ShutdownHandler
func (s *Server) SetShutdownChannel(ch chan struct{}) {
	s.shutdownChan = ch
}

// ShutdownHandler handles POST /api/shutdown. It is disabled in production.
func (s *Server) ShutdownHandler(w http.ResponseWriter, r *http.Request) {
	if !handlers.RequireMethod(w, r, http.MethodPost) {
		return
	}
	if s.app.Config.IsProduction() || s.shutdownChan == nil {
		handlers.WriteError(w, http.StatusForbidden, "Shutdown endpoint disabled")
		return
	}

	s.app.Logger.Info().Str("remote", r.RemoteAddr).Msg("Shutdown requested via HTTP")
	handlers.WriteSuccess(w, "Shutting down")

	s.shutdownOnce.Do(func() {
		close(s.shutdownChan)
	})
}
