package server

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/wsrelay/internal/protocol"
)

func runTestHub(t *testing.T, variant protocol.Variant) (*Hub, context.CancelFunc) {
	t.Helper()
	hub := NewHub(NewRelay(variant, NewRegistry(), nil), nil)
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = hub.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-hub.Done()
	})
	return hub, cancel
}

func TestHub_SubmitDispatchesInOrder(t *testing.T) {
	hub, _ := runTestHub(t, protocol.VariantPing)
	a := newConn(nil, "127.0.0.1:1", 8, nil)
	b := newConn(nil, "127.0.0.1:2", 8, nil)

	require.True(t, hub.Submit(Event{Kind: EventOpen, Conn: a}))
	require.True(t, hub.Submit(Event{Kind: EventOpen, Conn: b}))
	require.True(t, hub.Submit(Event{Kind: EventMessage, Conn: a, Payload: "ping"}))
	require.True(t, hub.Submit(Event{Kind: EventMessage, Conn: b, Payload: "hi"}))

	assert.Equal(t, 2, hub.Clients())
	assert.Equal(t, []string{"pong", "hi"}, queued(a))
	assert.Equal(t, []string{"hi"}, queued(b))
}

func TestHub_Broadcast(t *testing.T) {
	hub, _ := runTestHub(t, protocol.VariantJoin)
	conns := make([]*Conn, 3)
	for i := range conns {
		conns[i] = newConn(nil, "127.0.0.1:1", 8, nil)
		require.True(t, hub.Submit(Event{Kind: EventOpen, Conn: conns[i]}))
	}
	require.True(t, hub.Submit(Event{Kind: EventClose, Conn: conns[2]}))

	assert.Equal(t, 2, hub.Broadcast(protocol.Shutdown))
	assert.Equal(t, []string{"shutdown"}, queued(conns[0]))
	assert.Equal(t, []string{"shutdown"}, queued(conns[1]))
	assert.Empty(t, queued(conns[2]))
}

func TestHub_StopClosesRegisteredConns(t *testing.T) {
	hub, cancel := runTestHub(t, protocol.VariantPing)
	c := newConn(nil, "127.0.0.1:1", 8, nil)
	require.True(t, hub.Submit(Event{Kind: EventOpen, Conn: c}))
	require.Equal(t, 1, hub.Clients())

	cancel()
	select {
	case <-hub.Done():
	case <-time.After(time.Second):
		t.Fatal("hub did not stop")
	}

	assert.Equal(t, StateClosed, c.State())
	assert.False(t, hub.Submit(Event{Kind: EventClose, Conn: c}))
	assert.Zero(t, hub.Broadcast("late"))
	assert.Zero(t, hub.Clients())
}

func TestHub_ConcurrentSubmitters(t *testing.T) {
	hub, _ := runTestHub(t, protocol.VariantPing)

	const workers = 10
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := newConn(nil, "127.0.0.1:1", 8, nil)
			hub.Submit(Event{Kind: EventOpen, Conn: c})
			hub.Submit(Event{Kind: EventMessage, Conn: c, Payload: "ping"})
			hub.Submit(Event{Kind: EventClose, Conn: c})
		}()
	}
	wg.Wait()

	assert.Zero(t, hub.Clients())
}
