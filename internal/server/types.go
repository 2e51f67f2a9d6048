package server

import (
	"errors"
	"net"
	"strings"

	"github.com/gorilla/websocket"
)

// ErrForcedShutdown is returned by Serve once the drain period has elapsed
// and the listener has been aborted.
var ErrForcedShutdown = errors.New("server aborted after drain timeout")

// State is a connection's ready state.
type State int32

// Ready states, in lifecycle order.
const (
	StateConnecting State = iota
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// EventKind tags an Event.
type EventKind int

// Event kinds produced by the transport for each connection.
const (
	EventOpen EventKind = iota + 1
	EventMessage
	EventClose
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventOpen:
		return "open"
	case EventMessage:
		return "message"
	case EventClose:
		return "close"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is one thing that happened on one connection. Payload is set for
// EventMessage, Err for EventError.
type Event struct {
	Kind    EventKind
	Conn    *Conn
	Payload string
	Err     error
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	return errors.Is(err, net.ErrClosed) ||
		errors.Is(err, websocket.ErrCloseSent) ||
		strings.Contains(err.Error(), "broken pipe")
}
