package server

import "net/http"

// HealthPath serves HealthHandler.
const HealthPath = "/healthz"

// Routes returns a ServeMux with the WebSocket endpoint on the configured
// path and the health check.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc(s.cfg.Path, s.WebSocketHandler)
	mux.HandleFunc(HealthPath, HealthHandler)
	return mux
}
