package protocol

import (
	"net"
	"sync"
	"time"
)

// Conn is a framed connection. Reads must come from a single goroutine;
// writes may come from any number of goroutines.
type Conn struct {
	conn       net.Conn
	maxPayload uint32

	wmu sync.Mutex
}

// NewConn wraps c. A maxPayload of zero means DefaultMaxPayload.
func NewConn(c net.Conn, maxPayload uint32) *Conn {
	if maxPayload == 0 {
		maxPayload = DefaultMaxPayload
	}
	return &Conn{conn: c, maxPayload: maxPayload}
}

// Send writes one frame. Concurrent calls never interleave bytes of
// different frames.
func (c *Conn) Send(t Type, payload []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return WriteFrame(c.conn, t, payload)
}

// SendWithin is Send bounded by a write deadline of d from now. A d of zero
// means no deadline.
func (c *Conn) SendWithin(t Type, payload []byte, d time.Duration) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if d > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(d)); err != nil {
			return err
		}
		defer c.conn.SetWriteDeadline(time.Time{})
	}
	return WriteFrame(c.conn, t, payload)
}

// Receive reads the next frame.
func (c *Conn) Receive() (*Frame, error) {
	return ReadFrame(c.conn, c.maxPayload)
}

// SetReadDeadline bounds the next Receive calls. The zero time clears it.
func (c *Conn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

// SetDeadline bounds both reads and writes. The zero time clears it.
func (c *Conn) SetDeadline(t time.Time) error {
	return c.conn.SetDeadline(t)
}

// RemoteAddr returns the peer's network address.
func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// LocalAddr returns the local network address.
func (c *Conn) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	return c.conn.Close()
}
