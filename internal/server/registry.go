package server

import "slices"

// Registry is the ordered list of tracked connections. Order is connect
// order and the same connection may appear more than once if registered
// twice.
//
// A Registry is not safe for concurrent use; the Hub goroutine owns it.
type Registry struct {
	conns []*Conn
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register appends conn.
func (r *Registry) Register(conn *Conn) {
	r.conns = append(r.conns, conn)
}

// Unregister removes the first occurrence of conn and reports whether it was
// present. A missing conn leaves the registry untouched.
func (r *Registry) Unregister(conn *Conn) bool {
	i := slices.Index(r.conns, conn)
	if i < 0 {
		return false
	}
	r.conns = slices.Delete(r.conns, i, i+1)
	return true
}

// Broadcast queues payload on every open connection in registry order,
// skipping exclude when it is non-nil. Connections that are not open are
// skipped but stay registered until their own close event. It returns the
// number of deliveries queued; a delivery that cannot be queued is dropped.
func (r *Registry) Broadcast(payload string, exclude *Conn) int {
	delivered := 0
	for _, c := range r.conns {
		if exclude != nil && c == exclude {
			continue
		}
		if c.State() != StateOpen {
			continue
		}
		if c.Send(payload) {
			delivered++
		}
	}
	return delivered
}

// Len returns the number of entries, duplicates included.
func (r *Registry) Len() int {
	return len(r.conns)
}

// Contains reports whether conn has at least one entry.
func (r *Registry) Contains(conn *Conn) bool {
	return slices.Contains(r.conns, conn)
}

// Snapshot returns a copy of the entries in order.
func (r *Registry) Snapshot() []*Conn {
	return slices.Clone(r.conns)
}
