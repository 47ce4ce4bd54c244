package relay

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/go-i2p/go-relaychat/lib/crypto/stream"
	"github.com/go-i2p/go-relaychat/lib/metrics"
	"github.com/go-i2p/go-relaychat/lib/protocol"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pipeMember registers a member whose far end is returned for reading.
func pipeMember(t *testing.T, r *Registry, id string, key []byte) *protocol.Conn {
	t.Helper()
	near, far := net.Pipe()
	t.Cleanup(func() {
		near.Close()
		far.Close()
	})
	c, err := stream.New(stream.SuiteXOR, key)
	require.NoError(t, err)
	require.NoError(t, r.Register(NewMember(id, c, protocol.NewConn(near, 0), time.Second)))
	return protocol.NewConn(far, 0)
}

func readPlain(t *testing.T, conn *protocol.Conn, key []byte) string {
	t.Helper()
	f, err := conn.Receive()
	require.NoError(t, err)
	assert.Equal(t, protocol.TypeData, f.Type)
	return string(stream.Decrypt(key, f.Payload))
}

func TestDeliverExcludesSender(t *testing.T) {
	r := NewRegistry()
	keyA, keyB, keyC := []byte{0x11}, []byte{0x22}, []byte{0x33}
	farA := pipeMember(t, r, "A", keyA)
	farB := pipeMember(t, r, "B", keyB)
	farC := pipeMember(t, r, "C", keyC)

	f := NewFanout(r, 0, nil)
	done := make(chan int, 1)
	go func() {
		done <- f.Deliver(Message{Sender: "A", Content: []byte("A: hi"), ExcludeSender: true})
	}()

	assert.Equal(t, "A: hi", readPlain(t, farB, keyB))
	assert.Equal(t, "A: hi", readPlain(t, farC, keyC))
	assert.Equal(t, 2, <-done)

	farA.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
	_, err := farA.Receive()
	assert.Error(t, err, "sender must not receive its own message")
}

func TestDeliverDirect(t *testing.T) {
	r := NewRegistry()
	keyA, keyB := []byte{0x11}, []byte{0x22}
	pipeMember(t, r, "A", keyA)
	farB := pipeMember(t, r, "B", keyB)

	f := NewFanout(r, 0, nil)
	done := make(chan int, 1)
	go func() {
		done <- f.Deliver(Message{Sender: "A", Content: []byte("[DM] A: psst"), Recipient: "B"})
	}()
	assert.Equal(t, "[DM] A: psst", readPlain(t, farB, keyB))
	assert.Equal(t, 1, <-done)
}

func TestDeliverContinuesPastFailedRecipient(t *testing.T) {
	r := NewRegistry()
	m := metrics.New()
	keyB, keyC := []byte{0x22}, []byte{0x33}
	farB := pipeMember(t, r, "B", keyB)
	farC := pipeMember(t, r, "C", keyC)
	// B's reader goes away; writes to it fail.
	require.NoError(t, farB.Close())

	f := NewFanout(r, 0, m)
	done := make(chan int, 1)
	go func() {
		done <- f.Deliver(Message{Sender: "A", Content: []byte("A: hi"), ExcludeSender: true})
	}()

	assert.Equal(t, "A: hi", readPlain(t, farC, keyC))
	assert.Equal(t, 1, <-done)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FanoutFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FanoutDeliveries))
}

func TestPublishBlocksWhenQueueFull(t *testing.T) {
	f := NewFanout(NewRegistry(), 2, nil)
	ctx := context.Background()
	require.NoError(t, f.Publish(ctx, Message{Sender: "A"}))
	require.NoError(t, f.Publish(ctx, Message{Sender: "A"}))
	assert.Equal(t, 2, f.Pending())

	short, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	err := f.Publish(short, Message{Sender: "A"})
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	go f.Run(runCtx)
	require.NoError(t, f.Publish(ctx, Message{Sender: "A"}))
	assert.Eventually(t, func() bool { return f.Pending() == 0 }, time.Second, 5*time.Millisecond)
}

func TestPublishAfterClose(t *testing.T) {
	f := NewFanout(NewRegistry(), 1, nil)
	f.Close()
	f.Close()
	err := f.Publish(context.Background(), Message{Sender: "A"})
	assert.True(t, errors.Is(err, ErrQueueClosed))
}

func TestRunDrainsOnClose(t *testing.T) {
	r := NewRegistry()
	key := []byte{0x44}
	far := pipeMember(t, r, "B", key)

	f := NewFanout(r, 4, nil)
	require.NoError(t, f.Publish(context.Background(), Message{Sender: "A", Content: []byte("one")}))
	require.NoError(t, f.Publish(context.Background(), Message{Sender: "A", Content: []byte("two")}))
	f.Close()

	ran := make(chan error, 1)
	go func() { ran <- f.Run(context.Background()) }()

	assert.Equal(t, "one", readPlain(t, far, key))
	assert.Equal(t, "two", readPlain(t, far, key))
	assert.NoError(t, <-ran)
}

func TestParseDirect(t *testing.T) {
	tests := []struct {
		in     string
		target string
		text   string
		ok     bool
	}{
		{"DM:bob hello there", "bob", "hello there", true},
		{"DM:bob", "", "", false},
		{"DM: hello", "", "", false},
		{"hello", "", "", false},
		{"dm:bob hi", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			target, text, ok := parseDirect([]byte(tt.in))
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.target, target)
			assert.Equal(t, tt.text, text)
		})
	}
}
