package server

import (
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
)

// WebSocketHandler upgrades the request, hands the connection to the hub and
// starts its pumps. Requests that do not ask for a WebSocket upgrade get
// 501 Not Implemented and are never registered.
func (s *Server) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		http.Error(w, "WebSocket upgrade required", http.StatusNotImplemented)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already written an error response.
		s.log.Warn("WebSocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}

	conn := newConn(ws, r.RemoteAddr, s.cfg.SendBuffer, s.log)
	if !s.hub.Submit(Event{Kind: EventOpen, Conn: conn}) {
		conn.log.Info("Hub stopped, dropping new connection")
		conn.closeSocket()
		return
	}

	go conn.writePump()
	go conn.readPump(s.hub, s.cfg.MaxMessageSize)
}

// HealthHandler provides a simple health check endpoint that returns server status.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprint(w, "wsrelay server is running!")
}
