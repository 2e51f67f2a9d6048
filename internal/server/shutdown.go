package server

import (
	"net/http"
	"time"

	"github.com/Tyrowin/wsrelay/internal/protocol"
)

// drain notifies every open connection, waits the full drain timeout and
// aborts httpServer. The wait is not shortened when clients leave early.
func (s *Server) drain(httpServer *http.Server) error {
	s.log.Info("Closing clients")
	notified := s.hub.Broadcast(protocol.Shutdown)

	s.log.Info("Closing server, waiting for clients to disconnect",
		"notified", notified,
		"drain_timeout", s.cfg.DrainTimeout)
	<-time.After(s.cfg.DrainTimeout)

	if err := httpServer.Close(); err != nil {
		s.log.Warn("Error aborting listener", "error", err)
	}
	return ErrForcedShutdown
}
