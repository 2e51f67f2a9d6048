package server

import (
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/wsrelay/internal/config"
	"github.com/Tyrowin/wsrelay/internal/protocol"
)

type testServer struct {
	srv    *Server
	addr   string
	cancel context.CancelFunc
	errCh  chan error
}

func (ts *testServer) wsURL() string {
	return "ws://" + ts.addr + "/"
}

func (ts *testServer) httpURL(path string) string {
	return "http://" + ts.addr + path
}

func startTestServer(t *testing.T, variant protocol.Variant, customize func(*config.Config)) *testServer {
	t.Helper()

	cfg := config.Default(variant)
	cfg.DrainTimeout = 100 * time.Millisecond
	if customize != nil {
		customize(cfg)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	ts := &testServer{
		srv:    New(cfg, nil),
		addr:   ln.Addr().String(),
		cancel: cancel,
		errCh:  make(chan error, 1),
	}
	go func() { ts.errCh <- ts.srv.Serve(ctx, ln) }()

	t.Cleanup(func() {
		cancel()
		select {
		case <-ts.srv.Hub().Done():
		case <-time.After(cfg.DrainTimeout + 5*time.Second):
			t.Error("server did not stop")
		}
	})
	return ts
}

func dial(t *testing.T, url string, header http.Header) *websocket.Conn {
	t.Helper()
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, resp, err := dialer.Dial(url, header)
	if resp != nil {
		_ = resp.Body.Close()
	}
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func waitForClients(t *testing.T, ts *testServer, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return ts.srv.Hub().Clients() == n
	}, 2*time.Second, 10*time.Millisecond, "expected %d registered clients", n)
}

func readText(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	msgType, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.TextMessage, msgType)
	return string(data)
}

func expectNoMessage(t *testing.T, conn *websocket.Conn, timeout time.Duration) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(timeout)))
	_, data, err := conn.ReadMessage()
	require.Error(t, err, "unexpected message %q", string(data))
	var netErr net.Error
	require.ErrorAs(t, err, &netErr)
	assert.True(t, netErr.Timeout())
}

func sendText(t *testing.T, conn *websocket.Conn, payload string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(payload)))
}

func TestServer_NonUpgradeRequestRejected(t *testing.T) {
	ts := startTestServer(t, protocol.VariantPing, nil)

	for _, method := range []string{http.MethodGet, http.MethodPost} {
		req, err := http.NewRequest(method, ts.httpURL("/"), http.NoBody)
		require.NoError(t, err)

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		_ = resp.Body.Close()

		assert.Equal(t, http.StatusNotImplemented, resp.StatusCode, method)
	}

	assert.Zero(t, ts.srv.Hub().Clients())
}

func TestServer_HealthCheck(t *testing.T) {
	ts := startTestServer(t, protocol.VariantPing, nil)

	resp, err := http.Get(ts.httpURL(HealthPath))
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/plain", resp.Header.Get("Content-Type"))
	assert.Equal(t, "wsrelay server is running!", string(body))
}

func TestServer_PingPong(t *testing.T) {
	ts := startTestServer(t, protocol.VariantPing, nil)
	sender := dial(t, ts.wsURL(), nil)
	other := dial(t, ts.wsURL(), nil)
	waitForClients(t, ts, 2)

	sendText(t, sender, "ping")

	assert.Equal(t, "pong", readText(t, sender))
	expectNoMessage(t, sender, 150*time.Millisecond)
	expectNoMessage(t, other, 150*time.Millisecond)
}

func TestServer_JoinWelcome(t *testing.T) {
	ts := startTestServer(t, protocol.VariantJoin, nil)
	sender := dial(t, ts.wsURL(), nil)
	other := dial(t, ts.wsURL(), nil)
	waitForClients(t, ts, 2)

	sendText(t, sender, "join:alice")

	assert.Equal(t, "Welcome alice", readText(t, sender))
	expectNoMessage(t, other, 150*time.Millisecond)
}

func TestServer_BroadcastIncludesSender(t *testing.T) {
	ts := startTestServer(t, protocol.VariantJoin, nil)
	clients := []*websocket.Conn{
		dial(t, ts.wsURL(), nil),
		dial(t, ts.wsURL(), nil),
		dial(t, ts.wsURL(), nil),
	}
	waitForClients(t, ts, len(clients))

	sendText(t, clients[0], "bob: hello")

	for i, c := range clients {
		assert.Equal(t, "bob: hello", readText(t, c), "client %d", i)
		expectNoMessage(t, c, 100*time.Millisecond)
	}
}

func TestServer_MessagesStayInOrder(t *testing.T) {
	ts := startTestServer(t, protocol.VariantPing, nil)
	sender := dial(t, ts.wsURL(), nil)
	receiver := dial(t, ts.wsURL(), nil)
	waitForClients(t, ts, 2)

	for _, msg := range []string{"one", "two", "three"} {
		sendText(t, sender, msg)
	}
	for _, want := range []string{"one", "two", "three"} {
		assert.Equal(t, want, readText(t, receiver))
	}
}

func TestServer_BinaryFramesIgnored(t *testing.T) {
	ts := startTestServer(t, protocol.VariantPing, nil)
	conn := dial(t, ts.wsURL(), nil)
	waitForClients(t, ts, 1)

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte("ping")))
	sendText(t, conn, "ping")

	assert.Equal(t, "pong", readText(t, conn))
	expectNoMessage(t, conn, 100*time.Millisecond)
}

func TestServer_CloseUnregisters(t *testing.T) {
	ts := startTestServer(t, protocol.VariantPing, nil)
	staying := dial(t, ts.wsURL(), nil)
	leaving := dial(t, ts.wsURL(), nil)
	waitForClients(t, ts, 2)

	require.NoError(t, leaving.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	waitForClients(t, ts, 1)

	sendText(t, staying, "still here")
	assert.Equal(t, "still here", readText(t, staying))
}

func TestServer_AbruptDisconnectUnregisters(t *testing.T) {
	ts := startTestServer(t, protocol.VariantPing, nil)
	conn := dial(t, ts.wsURL(), nil)
	waitForClients(t, ts, 1)

	require.NoError(t, conn.NetConn().Close())
	waitForClients(t, ts, 0)
}

func TestServer_OriginPolicy(t *testing.T) {
	ts := startTestServer(t, protocol.VariantPing, func(cfg *config.Config) {
		cfg.AllowedOrigins = []string{"http://allowed.test"}
	})

	allowed := http.Header{"Origin": []string{"http://ALLOWED.test"}}
	dial(t, ts.wsURL(), allowed)
	dial(t, ts.wsURL(), nil)
	waitForClients(t, ts, 2)

	dialer := websocket.Dialer{HandshakeTimeout: 2 * time.Second}
	_, resp, err := dialer.Dial(ts.wsURL(), http.Header{"Origin": []string{"http://evil.test"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, 2, ts.srv.Hub().Clients())
}

func TestServer_MaxMessageSize(t *testing.T) {
	ts := startTestServer(t, protocol.VariantPing, func(cfg *config.Config) {
		cfg.MaxMessageSize = 8
	})
	conn := dial(t, ts.wsURL(), nil)
	waitForClients(t, ts, 1)

	sendText(t, conn, strings.Repeat("x", 64))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	waitForClients(t, ts, 0)
}

func TestServer_DrainNotifiesThenAborts(t *testing.T) {
	const grace = 300 * time.Millisecond
	ts := startTestServer(t, protocol.VariantPing, func(cfg *config.Config) {
		cfg.DrainTimeout = grace
	})

	clients := []*websocket.Conn{
		dial(t, ts.wsURL(), nil),
		dial(t, ts.wsURL(), nil),
		dial(t, ts.wsURL(), nil),
	}
	waitForClients(t, ts, len(clients))

	start := time.Now()
	ts.cancel()

	for i, c := range clients {
		assert.Equal(t, protocol.Shutdown, readText(t, c), "client %d", i)
	}

	// One client leaves politely; the timer still runs to completion.
	require.NoError(t, clients[0].WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))

	select {
	case err := <-ts.errCh:
		assert.ErrorIs(t, err, ErrForcedShutdown)
		assert.GreaterOrEqual(t, time.Since(start), grace)
	case <-time.After(grace + 5*time.Second):
		t.Fatal("server did not abort after drain timeout")
	}

	// Remaining clients see the socket drop, never a second notice.
	for i, c := range clients[1:] {
		require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, data, err := c.ReadMessage()
		assert.Error(t, err, "client %d got %q", i+1, string(data))
	}

	_, _, err := websocket.DefaultDialer.Dial(ts.wsURL(), nil)
	assert.Error(t, err, "listener must be closed")
}

func TestServer_DrainWithNoClients(t *testing.T) {
	ts := startTestServer(t, protocol.VariantJoin, func(cfg *config.Config) {
		cfg.DrainTimeout = 50 * time.Millisecond
	})

	start := time.Now()
	ts.cancel()

	select {
	case err := <-ts.errCh:
		assert.ErrorIs(t, err, ErrForcedShutdown)
		assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestCreateServer(t *testing.T) {
	mux := http.NewServeMux()
	srv := CreateServer(":8000", mux)

	assert.Equal(t, ":8000", srv.Addr)
	assert.Same(t, mux, srv.Handler)
	assert.Equal(t, 15*time.Second, srv.ReadTimeout)
	assert.Equal(t, 15*time.Second, srv.WriteTimeout)
	assert.Equal(t, 60*time.Second, srv.IdleTimeout)
}
