package server

import (
	"net/http"
	"strings"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket route - live job change stream
	mux.HandleFunc("/ws", s.app.WSHandler.HandleWebSocket)

	// API routes - Jobs
	mux.HandleFunc("/api/jobs", s.app.JobHandler.ListJobsHandler) // GET (list), POST (submit)
	mux.HandleFunc("/api/jobs/", s.handleJobRoutes)               // GET/DELETE /{id}, POST /{id}/recheck

	// API routes - Webhooks
	mux.HandleFunc("/api/webhooks/render-complete", s.app.WebhookHandler.RenderCompleteHandler)

	// API routes - System
	mux.HandleFunc("/api/status", s.app.StatusHandler.GetStatusHandler)
	mux.HandleFunc("/api/health", s.app.StatusHandler.HealthHandler)
	mux.HandleFunc("/api/version", s.app.StatusHandler.VersionHandler)

	// Locally stored assets (filesystem object store only)
	if dir := s.app.AssetDir(); dir != "" {
		mux.Handle("/assets/", http.StripPrefix("/assets/", http.FileServer(http.Dir(dir))))
	}

	return mux
}

// handleJobRoutes dispatches /api/jobs/{id} and /api/jobs/{id}/recheck
func (s *Server) handleJobRoutes(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	parts := strings.Split(strings.Trim(path, "/"), "/")

	if len(parts) == 0 || parts[0] == "" {
		http.Error(w, "Job ID required", http.StatusBadRequest)
		return
	}
	jobID := parts[0]

	if len(parts) == 2 {
		switch parts[1] {
		case "recheck":
			if r.Method != http.MethodPost {
				http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
				return
			}
			s.app.JobHandler.RecheckJobHandler(w, r, jobID)
		case "history":
			if r.Method != http.MethodGet {
				http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
				return
			}
			s.app.JobHandler.JobHistoryHandler(w, r, jobID)
		default:
			http.Error(w, "Not found", http.StatusNotFound)
		}
		return
	}

	if len(parts) != 1 {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.app.JobHandler.GetJobHandler(w, r, jobID)
	case http.MethodDelete:
		s.app.JobHandler.DeleteJobHandler(w, r, jobID)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}
