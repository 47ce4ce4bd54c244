package client

import (
	"context"
	"errors"
	"net"
	"sort"
	"testing"
	"time"

	"github.com/go-i2p/go-relaychat/lib/crypto/stream"
	"github.com/go-i2p/go-relaychat/lib/handshake"
	"github.com/go-i2p/go-relaychat/lib/protocol"
	"github.com/go-i2p/go-relaychat/lib/relay"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startRelay(t *testing.T, suite stream.Suite) string {
	t.Helper()
	cfg := relay.DefaultServerConfig()
	cfg.ListenAddr = "127.0.0.1:0"
	cfg.Suite = suite
	srv := relay.NewServer(cfg, nil)
	require.NoError(t, srv.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		srv.Serve(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return srv.Addr().String()
}

func dial(t *testing.T, addr string, suite stream.Suite) *Client {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Suite = suite
	cfg.HandshakeTimeout = 2 * time.Second
	c, err := Dial(context.Background(), addr, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func next(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case ev, ok := <-c.Events():
		require.True(t, ok, "event stream closed: %v", c.Err())
		return ev
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestClientChat(t *testing.T) {
	for _, suite := range []stream.Suite{stream.SuiteXOR, stream.SuiteChaCha20} {
		t.Run(string(suite), func(t *testing.T) {
			addr := startRelay(t, suite)
			a := dial(t, addr, suite)
			assert.Contains(t, next(t, a).Text, "You are connected as "+a.ID())

			b := dial(t, addr, suite)
			assert.Contains(t, next(t, b).Text, "There are 1 other clients online.")
			assert.Equal(t, "* New client connected: "+b.ID(), next(t, a).Text)

			require.NoError(t, a.Send("hello"))
			assert.Equal(t, "Message received", next(t, a).Text)
			ev := next(t, b)
			assert.Equal(t, EventMessage, ev.Type)
			assert.Equal(t, a.ID()+": hello", ev.Text)
		})
	}
}

func TestClientRequestList(t *testing.T) {
	addr := startRelay(t, stream.SuiteXOR)
	a := dial(t, addr, stream.SuiteXOR)
	next(t, a)
	b := dial(t, addr, stream.SuiteXOR)
	next(t, b)
	next(t, a)

	require.NoError(t, b.RequestList())
	ev := next(t, b)
	assert.Equal(t, EventClientList, ev.Type)
	want := []string{a.ID(), b.ID()}
	sort.Strings(want)
	assert.Equal(t, want, ev.Clients)
}

func TestClientSendDirect(t *testing.T) {
	addr := startRelay(t, stream.SuiteXOR)
	a := dial(t, addr, stream.SuiteXOR)
	next(t, a)
	b := dial(t, addr, stream.SuiteXOR)
	next(t, b)
	next(t, a)

	require.NoError(t, b.SendDirect(a.ID(), "psst"))
	assert.Equal(t, "Message received", next(t, b).Text)
	assert.Equal(t, "[DM] "+b.ID()+": psst", next(t, a).Text)
}

func TestClientDisconnect(t *testing.T) {
	addr := startRelay(t, stream.SuiteXOR)
	a := dial(t, addr, stream.SuiteXOR)
	next(t, a)
	b := dial(t, addr, stream.SuiteXOR)
	next(t, b)
	next(t, a)

	bID := b.ID()
	require.NoError(t, b.Disconnect())
	assert.Equal(t, "* Client disconnected: "+bID, next(t, a).Text)

	assert.True(t, errors.Is(b.Send("late"), ErrClosed))
	for range b.Events() {
	}
	assert.NoError(t, b.Err())
}

func TestClientSeesServerShutdown(t *testing.T) {
	cfg := relay.DefaultServerConfig()
	cfg.ListenAddr = "127.0.0.1:0"
	srv := relay.NewServer(cfg, nil)
	require.NoError(t, srv.Listen())
	served := make(chan error, 1)
	go func() { served <- srv.Serve(context.Background()) }()

	c := dial(t, srv.Addr().String(), stream.SuiteXOR)
	next(t, c)
	require.NoError(t, srv.Close())
	<-served

	for range c.Events() {
	}
	assert.True(t, errors.Is(c.Err(), protocol.ErrConnectionClosed))
}

func TestClientServerDisconnectIsOrderly(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	served := make(chan error, 1)
	go func() {
		raw, err := ln.Accept()
		if err != nil {
			served <- err
			return
		}
		defer raw.Close()
		conn := protocol.NewConn(raw, 0)
		if _, err := handshake.Server(context.Background(), conn, handshake.Options{
			Suite:   stream.SuiteXOR,
			Timeout: 2 * time.Second,
		}); err != nil {
			served <- err
			return
		}
		served <- conn.Send(protocol.TypeDisconnect, nil)
	}()

	c := dial(t, ln.Addr().String(), stream.SuiteXOR)
	require.NoError(t, <-served)
	for range c.Events() {
	}
	assert.NoError(t, c.Err())
}

func TestDialFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := Dial(ctx, "127.0.0.1:1", nil)
	assert.Error(t, err)
}

func TestSplitList(t *testing.T) {
	assert.Nil(t, splitList(""))
	assert.Equal(t, []string{"a"}, splitList("a"))
	assert.Equal(t, []string{"a", "b"}, splitList("a\nb"))
}
