package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/Tyrowin/wsrelay/internal/config"
	"github.com/Tyrowin/wsrelay/internal/logging"
)

// Server owns one registry, its relay and hub, and the HTTP surface in
// front of them.
type Server struct {
	cfg      *config.Config
	log      *slog.Logger
	relay    *Relay
	hub      *Hub
	upgrader websocket.Upgrader
}

// New builds a server from cfg. The hub does not run until Serve is called.
func New(cfg *config.Config, log *slog.Logger) *Server {
	log = logging.OrNop(log)
	relay := NewRelay(cfg.Variant, NewRegistry(), log)
	origins := newOriginPolicy(cfg.AllowedOrigins, log)

	return &Server{
		cfg:   cfg,
		log:   log,
		relay: relay,
		hub:   NewHub(relay, log),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.check,
		},
	}
}

// Hub returns the server's event loop.
func (s *Server) Hub() *Hub {
	return s.hub
}

// ListenAndServe listens on the configured address and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve runs the hub and accepts connections on ln. When ctx is cancelled it
// drains: every open connection is told "shutdown", the server waits the
// drain timeout, then aborts the listener and returns ErrForcedShutdown.
// Any other return is a serving failure.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	httpServer := CreateServer(ln.Addr().String(), s.Routes())

	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()

	g, gctx := errgroup.WithContext(context.Background())

	g.Go(func() error {
		return s.hub.Run(hubCtx)
	})

	g.Go(func() error {
		s.log.Info("Server listening",
			"addr", ln.Addr().String(),
			"path", s.cfg.Path,
			"variant", s.cfg.Variant)
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		defer stopHub()
		select {
		case <-ctx.Done():
			return s.drain(httpServer)
		case <-gctx.Done():
			return nil
		}
	})

	err := g.Wait()
	s.log.Info("Server closed")
	return err
}
