package server

import (
	"net/http"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// API routes - service health and version
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)

	// API routes - portal account linking
	mux.HandleFunc("/api/credentials", s.handleCredentialsRoute)

	// API routes - session lifecycle
	mux.HandleFunc("/api/session", s.app.SessionHandler.InvalidateHandler)        // DELETE
	mux.HandleFunc("/api/session/status", s.app.SessionHandler.GetStatusHandler)  // GET
	mux.HandleFunc("/api/session/refresh", s.app.SessionHandler.RefreshHandler)   // POST

	// API routes - weekly schedule
	mux.HandleFunc("/api/schedule", s.app.ScheduleHandler.GetScheduleHandler)            // GET
	mux.HandleFunc("/api/schedule/refresh", s.app.ScheduleHandler.RefreshScheduleHandler) // POST
	mux.HandleFunc("/api/schedule/ics", s.app.ScheduleHandler.GetCalendarHandler)         // GET

	// Anything else under /api is unknown
	mux.HandleFunc("/api/", s.app.APIHandler.NotFoundHandler)

	return mux
}

// handleCredentialsRoute dispatches /api/credentials by method
func (s *Server) handleCredentialsRoute(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.app.CredentialHandler.LinkHandler(w, r)
	case http.MethodDelete:
		s.app.CredentialHandler.UnlinkHandler(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}
