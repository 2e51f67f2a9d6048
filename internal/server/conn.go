package server

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Tyrowin/wsrelay/internal/logging"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Conn is one upgraded WebSocket connection. Its reader goroutine turns
// frames into events for the Hub; its writer goroutine drains the send
// queue. Send and the final close of the queue both happen on the Hub
// goroutine.
type Conn struct {
	id    string
	addr  string
	ws    *websocket.Conn
	send  chan []byte
	state atomic.Int32
	log   *slog.Logger

	closeOnce sync.Once
}

func newConn(ws *websocket.Conn, addr string, sendBuffer int, log *slog.Logger) *Conn {
	if sendBuffer <= 0 {
		sendBuffer = 1
	}
	id := uuid.NewString()
	c := &Conn{
		id:   id,
		addr: addr,
		ws:   ws,
		send: make(chan []byte, sendBuffer),
		log:  logging.OrNop(log).With("conn_id", id, "remote_addr", addr),
	}
	c.state.Store(int32(StateConnecting))
	return c
}

// ID returns the connection's generated identifier.
func (c *Conn) ID() string {
	return c.id
}

// Addr returns the peer address.
func (c *Conn) Addr() string {
	return c.addr
}

// State returns the current ready state.
func (c *Conn) State() State {
	return State(c.state.Load())
}

func (c *Conn) setState(s State) {
	c.state.Store(int32(s))
}

// beginClose moves an open or connecting connection to closing.
func (c *Conn) beginClose() {
	c.state.CompareAndSwap(int32(StateOpen), int32(StateClosing))
	c.state.CompareAndSwap(int32(StateConnecting), int32(StateClosing))
}

// markClosed moves the connection to closed and ends the writer.
func (c *Conn) markClosed() {
	c.closeOnce.Do(func() {
		c.setState(StateClosed)
		close(c.send)
	})
}

// Send queues payload if the connection is open. A full queue drops the
// payload and returns false.
func (c *Conn) Send(payload string) bool {
	if c.State() != StateOpen {
		return false
	}
	select {
	case c.send <- []byte(payload):
		return true
	default:
		c.log.Warn("Send queue full, dropping message")
		return false
	}
}

// setupReadConnection configures read limit, deadlines and pong handler.
func (c *Conn) setupReadConnection(maxMessageSize int64) {
	if maxMessageSize > 0 {
		c.ws.SetReadLimit(maxMessageSize)
	}
	if err := c.ws.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.log.Warn("Error setting initial read deadline", "error", err)
	}
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
}

// readError classifies a read failure. It returns nil for the ordinary ways
// a peer goes away.
func (c *Conn) readError(err error) error {
	switch {
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived):
		c.log.Debug("Client disconnected", "error", err)
		return nil
	case errors.Is(err, io.EOF), isExpectedCloseError(err):
		c.log.Debug("Client connection closed", "error", err)
		return nil
	default:
		return err
	}
}

func (c *Conn) readPump(h *Hub, maxMessageSize int64) {
	defer func() {
		c.beginClose()
		h.Submit(Event{Kind: EventClose, Conn: c})
		c.closeSocket()
	}()

	c.setupReadConnection(maxMessageSize)

	for {
		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			if err := c.readError(err); err != nil {
				h.Submit(Event{Kind: EventError, Conn: c, Err: err})
			}
			return
		}
		if msgType != websocket.TextMessage {
			c.log.Debug("Ignoring non-text frame", "type", msgType)
			continue
		}
		h.Submit(Event{Kind: EventMessage, Conn: c, Payload: string(data)})
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.closeSocket()
	}()

	for c.processWriteEvent(ticker) {
	}
}

// processWriteEvent waits for the next write event and returns false when the
// pump should stop processing.
func (c *Conn) processWriteEvent(ticker *time.Ticker) bool {
	select {
	case message, ok := <-c.send:
		if !ok {
			return c.writeCloseMessage()
		}
		return c.writeTextMessage(message)
	case <-ticker.C:
		return c.writePing()
	}
}

// writeCloseMessage sends a normal-closure frame to the peer.
func (c *Conn) writeCloseMessage() bool {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)); err != nil {
		if !isExpectedCloseError(err) {
			c.log.Warn("Error writing close message", "error", err)
		}
	}
	return false
}

// writeTextMessage writes one payload as one text frame.
func (c *Conn) writeTextMessage(message []byte) bool {
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.log.Warn("Error setting write deadline", "error", err)
		c.beginClose()
		return false
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
		if !isExpectedCloseError(err) {
			c.log.Warn("Error writing message", "error", err)
		}
		c.beginClose()
		return false
	}
	return true
}

// writePing sends a keepalive ping.
func (c *Conn) writePing() bool {
	if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
		if !isExpectedCloseError(err) {
			c.log.Warn("Error writing ping message", "error", err)
		}
		c.beginClose()
		return false
	}
	return true
}

// closeSocket closes the underlying network connection without a close frame.
func (c *Conn) closeSocket() {
	if c.ws == nil {
		return
	}
	if err := c.ws.Close(); err != nil && !isExpectedCloseError(err) {
		c.log.Warn("Error closing connection", "error", err)
	}
}
