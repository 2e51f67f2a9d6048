package server

import (
	"log/slog"

	"github.com/Tyrowin/wsrelay/internal/logging"
	"github.com/Tyrowin/wsrelay/internal/protocol"
)

// Relay decides, per event, whether to touch the registry, answer the
// sender privately, or broadcast.
type Relay struct {
	variant  protocol.Variant
	registry *Registry
	log      *slog.Logger
}

// NewRelay creates a relay for variant over registry.
func NewRelay(variant protocol.Variant, registry *Registry, log *slog.Logger) *Relay {
	return &Relay{
		variant:  variant,
		registry: registry,
		log:      logging.OrNop(log),
	}
}

// Registry returns the registry the relay mutates.
func (r *Relay) Registry() *Registry {
	return r.registry
}

// Dispatch handles one event.
func (r *Relay) Dispatch(ev Event) {
	if ev.Conn == nil {
		r.log.Warn("Dropping event without connection", "kind", ev.Kind)
		return
	}

	switch ev.Kind {
	case EventOpen:
		ev.Conn.setState(StateOpen)
		r.registry.Register(ev.Conn)
		ev.Conn.log.Info("Adding new client to the pool", "clients", r.registry.Len())

	case EventMessage:
		r.relay(ev.Conn, ev.Payload)

	case EventClose:
		if r.registry.Unregister(ev.Conn) {
			ev.Conn.log.Info("Removing client from pool", "clients", r.registry.Len())
		} else {
			ev.Conn.log.Debug("Closed connection was not registered")
		}
		ev.Conn.markClosed()

	case EventError:
		ev.Conn.log.Warn("WebSocket error", "error", ev.Err)

	default:
		ev.Conn.log.Warn("Unknown event kind", "kind", int(ev.Kind))
	}
}

func (r *Relay) relay(sender *Conn, payload string) {
	if reply, ok := r.variant.Reply(payload); ok {
		if !sender.Send(reply) {
			sender.log.Debug("Reply dropped", "reply", reply)
		}
		return
	}

	n := r.registry.Broadcast(payload, nil)
	sender.log.Debug("Broadcast message", "deliveries", n)
}
