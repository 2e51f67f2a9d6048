// Package client implements the command-line side of the relay: one
// outbound WebSocket, a handshake, and a loop that prints what arrives.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/Tyrowin/wsrelay/internal/logging"
	"github.com/Tyrowin/wsrelay/internal/protocol"
)

// Errors returned by Session.Run. Both mean the process should exit with a
// non-zero status.
var (
	ErrConnectionRefused = errors.New("connection refused")
	ErrConnectionLost    = errors.New("connection lost")
)

const (
	defaultGreetingDelay = 2 * time.Second
	writeTimeout         = 5 * time.Second

	// ShutdownNotice is printed when the server announces it is going away.
	ShutdownNotice = "Server is shutting down."
)

// Options configures a Session.
type Options struct {
	// URL is the ws:// or wss:// address of the relay.
	URL string
	// Variant selects the handshake and whether lines are filtered.
	Variant protocol.Variant
	// Username is the join name. Empty means DefaultUsername().
	Username string
	// GreetingDelay is how long the ping client waits before sending its
	// greeting. Zero means two seconds.
	GreetingDelay time.Duration
	// Output receives every printed message. Defaults to os.Stdout.
	Output io.Writer
	// Input supplies chat lines for the join variant. Nil means the client
	// only listens.
	Input LineReader
	Logger *slog.Logger
}

// Session is one client connection. Use NewSession, then Run once.
type Session struct {
	opts    Options
	log     *slog.Logger
	closing atomic.Bool
}

// DefaultUsername returns a short random name.
func DefaultUsername() string {
	return strings.SplitN(uuid.NewString(), "-", 2)[0]
}

// NewSession fills in defaults for opts.
func NewSession(opts Options) *Session {
	if opts.Variant == "" {
		opts.Variant = protocol.VariantPing
	}
	if opts.Variant == protocol.VariantJoin && opts.Username == "" {
		opts.Username = DefaultUsername()
	}
	if opts.GreetingDelay <= 0 {
		opts.GreetingDelay = defaultGreetingDelay
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	return &Session{
		opts: opts,
		log:  logging.OrNop(opts.Logger).With("url", opts.URL),
	}
}

// Username returns the name used for the join handshake.
func (s *Session) Username() string {
	return s.opts.Username
}

// Run connects, sends the handshake and prints inbound messages until the
// connection ends. It returns nil when the client closed the connection
// itself (ctx cancelled, prompt interrupted, server "shutdown" notice) or
// the server sent a close frame, and a transport error otherwise.
func (s *Session) Run(ctx context.Context) error {
	conn, resp, err := websocket.Dial(ctx, s.opts.URL, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return s.dialError(err)
	}
	defer conn.CloseNow()
	conn.SetReadLimit(-1)

	stop := context.AfterFunc(ctx, func() {
		s.log.Info("Closing websocket")
		s.close(conn, "client interrupted")
	})
	defer stop()

	if err := s.send(conn, s.opts.Variant.Handshake(s.opts.Username)); err != nil {
		return s.transportError(err)
	}

	switch s.opts.Variant {
	case protocol.VariantPing:
		greeting := time.AfterFunc(s.opts.GreetingDelay, func() {
			if err := s.send(conn, protocol.Greeting); err != nil {
				s.log.Debug("Greeting not sent", "error", err)
			}
		})
		defer greeting.Stop()
	case protocol.VariantJoin:
		if s.opts.Input != nil {
			go s.promptLoop(conn)
		}
	}

	return s.readLoop(context.WithoutCancel(ctx), conn)
}

func (s *Session) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return s.readError(err)
		}

		msg := string(data)
		if msg == protocol.Shutdown {
			s.print(ShutdownNotice)
			s.print(msg)
			s.close(conn, "server shutting down")
			return nil
		}
		if s.opts.Variant == protocol.VariantJoin && protocol.IsSelfEcho(msg, s.opts.Username) {
			continue
		}
		s.print(msg)
	}
}

// promptLoop sends each entered line as a chat line. An interrupted prompt
// closes the session; plain end of input just stops reading.
func (s *Session) promptLoop(conn *websocket.Conn) {
	for {
		line, err := s.opts.Input.ReadLine()
		if err != nil {
			if errors.Is(err, ErrInterrupted) {
				s.close(conn, "client interrupted")
			}
			return
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if err := s.send(conn, protocol.ChatLine(s.opts.Username, line)); err != nil {
			s.log.Debug("Chat line not sent", "error", err)
			return
		}
	}
}

func (s *Session) send(conn *websocket.Conn, payload string) error {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, []byte(payload))
}

func (s *Session) print(msg string) {
	if _, err := fmt.Fprintln(s.opts.Output, msg); err != nil {
		s.log.Debug("Error printing message", "error", err)
	}
}

// close starts a normal closure. Errors from a second close are ignored.
func (s *Session) close(conn *websocket.Conn, reason string) {
	s.closing.Store(true)
	if err := conn.Close(websocket.StatusNormalClosure, reason); err != nil {
		s.log.Debug("Close handshake incomplete", "error", err)
	}
}

func (s *Session) readError(err error) error {
	if s.closing.Load() {
		s.log.Info("The connection has been closed successfully")
		return nil
	}
	if status := websocket.CloseStatus(err); status != -1 {
		s.log.Info("The connection has been closed by the server", "status", status)
		return nil
	}
	return s.transportError(err)
}

func (s *Session) transportError(err error) error {
	return fmt.Errorf("%w: server stopped without waiting: %v", ErrConnectionLost, err)
}

func (s *Session) dialError(err error) error {
	if errors.Is(err, syscall.ECONNREFUSED) {
		return fmt.Errorf("%w: %s: %v", ErrConnectionRefused, s.opts.URL, err)
	}
	return fmt.Errorf("dial %s: %w", s.opts.URL, err)
}
