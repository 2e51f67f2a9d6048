// Package server coordinates connection registration, message relay and
// shutdown for the relay via the Hub type.
package server

import (
	"context"
	"log/slog"

	"github.com/Tyrowin/wsrelay/internal/logging"
)

// Hub is the event loop. Every connection event and every registry query
// runs on the goroutine executing Run, one at a time, so the Relay and its
// Registry never see concurrent access.
type Hub struct {
	relay  *Relay
	events chan Event
	calls  chan func()
	done   chan struct{}
	log    *slog.Logger
}

// NewHub creates a hub that dispatches events to relay.
func NewHub(relay *Relay, log *slog.Logger) *Hub {
	return &Hub{
		relay:  relay,
		events: make(chan Event),
		calls:  make(chan func()),
		done:   make(chan struct{}),
		log:    logging.OrNop(log),
	}
}

// Run processes events until ctx is cancelled, then closes every remaining
// connection's socket. Run must be called exactly once.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return nil
		case ev := <-h.events:
			h.relay.Dispatch(ev)
		case fn := <-h.calls:
			fn()
		}
	}
}

// Submit hands ev to the loop. It blocks until the loop accepts the event
// and returns false if the loop has already stopped.
func (h *Hub) Submit(ev Event) bool {
	select {
	case h.events <- ev:
		return true
	case <-h.done:
		return false
	}
}

// do runs fn on the loop goroutine and waits for it to finish.
func (h *Hub) do(fn func()) bool {
	finished := make(chan struct{})
	select {
	case h.calls <- func() { fn(); close(finished) }:
	case <-h.done:
		return false
	}
	<-finished
	return true
}

// Broadcast sends payload to every open connection and returns the number
// of deliveries queued. It returns 0 once the loop has stopped.
func (h *Hub) Broadcast(payload string) int {
	var n int
	h.do(func() { n = h.relay.Registry().Broadcast(payload, nil) })
	return n
}

// Clients returns the current registry length.
func (h *Hub) Clients() int {
	var n int
	h.do(func() { n = h.relay.Registry().Len() })
	return n
}

// Done is closed when Run returns.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// closeAll aborts the sockets of all registered connections without a close
// frame, then ends their writers. Their close events are never processed
// since the loop is stopping.
func (h *Hub) closeAll() {
	conns := h.relay.Registry().Snapshot()
	for _, c := range conns {
		c.beginClose()
		c.closeSocket()
		c.markClosed()
	}
	h.log.Info("Closed client connections", "clients", len(conns))
}
