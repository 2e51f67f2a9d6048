package server

import (
	"net/http"
	"time"
)

// CreateServer creates and configures an HTTP server with the specified address and handler.
// Upgraded connections set their own read and write deadlines in the pumps.
func CreateServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}
