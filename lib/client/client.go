// Package client connects to a relay server, performs the key exchange and
// exposes the decrypted message stream as events.
package client

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/go-i2p/go-relaychat/lib/crypto/stream"
	"github.com/go-i2p/go-relaychat/lib/handshake"
	"github.com/go-i2p/go-relaychat/lib/protocol"
	"github.com/go-i2p/logger"
	"github.com/samber/oops"
)

var log = logger.GetGoI2PLogger()

// ErrClosed is returned when sending on a closed client.
var ErrClosed = errors.New("client closed")

const eventBuffer = 64

// Config controls how a client connects.
type Config struct {
	Suite            stream.Suite
	HandshakeTimeout time.Duration
	MaxPayload       uint32
}

// DefaultConfig returns the settings that match a default relay server.
func DefaultConfig() *Config {
	return &Config{
		Suite:            stream.SuiteXOR,
		HandshakeTimeout: handshake.DefaultTimeout,
		MaxPayload:       protocol.DefaultMaxPayload,
	}
}

// EventType distinguishes what the server sent.
type EventType int

const (
	// EventMessage carries a chat line, notice, ack or welcome.
	EventMessage EventType = iota
	// EventClientList carries the reply to RequestList.
	EventClientList
)

// Event is one decrypted server frame.
type Event struct {
	Type    EventType
	Text    string
	Clients []string
}

// Client is an established connection to a relay server.
type Client struct {
	conn   *protocol.Conn
	cipher stream.Cipher
	id     string

	events chan Event

	mu        sync.Mutex
	err       error
	closed    bool
	closeOnce sync.Once
}

// Dial connects to addr and completes the key exchange. A nil cfg means
// DefaultConfig.
func Dial(ctx context.Context, addr string, cfg *Config) (*Client, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	var d net.Dialer
	raw, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, oops.Wrapf(err, "failed to connect to %s", addr)
	}

	conn := protocol.NewConn(raw, cfg.MaxPayload)
	res, err := handshake.Client(ctx, conn, handshake.Options{
		Suite:   cfg.Suite,
		Timeout: cfg.HandshakeTimeout,
	})
	if err != nil {
		raw.Close()
		return nil, oops.Wrapf(err, "key exchange with %s", addr)
	}

	c := &Client{
		conn:   conn,
		cipher: res.Cipher,
		id:     raw.LocalAddr().String(),
		events: make(chan Event, eventBuffer),
	}

	log.WithFields(logger.Fields{
		"at":     "client.Dial",
		"server": addr,
		"id":     c.id,
		"suite":  string(res.Cipher.Suite()),
	}).Info("secure_channel_established")

	go c.readLoop()
	return c, nil
}

// ID returns the identity the server knows this client by.
func (c *Client) ID() string {
	return c.id
}

// Events delivers server frames in arrival order. The channel is closed when
// the connection ends; Err then reports why.
func (c *Client) Events() <-chan Event {
	return c.events
}

// Err reports why the connection ended: nil after Close or a server
// Disconnect, protocol.ErrConnectionClosed when the server hung up.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Send relays text to every other client.
func (c *Client) Send(text string) error {
	return c.send(protocol.TypeData, []byte(text))
}

// SendDirect delivers text to the client with identity target only.
func (c *Client) SendDirect(target, text string) error {
	return c.send(protocol.TypeData, []byte("DM:"+target+" "+text))
}

// RequestList asks the server for the connected identities. The reply
// arrives as an EventClientList.
func (c *Client) RequestList() error {
	return c.send(protocol.TypeClientList, nil)
}

// Disconnect tells the server the client is leaving and closes the
// connection.
func (c *Client) Disconnect() error {
	err := c.send(protocol.TypeDisconnect, nil)
	if cerr := c.Close(); err == nil {
		err = cerr
	}
	return err
}

// Close closes the connection without notifying the server.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		err = c.conn.Close()
	})
	return err
}

func (c *Client) send(t protocol.Type, plaintext []byte) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}
	var payload []byte
	if len(plaintext) > 0 {
		payload = c.cipher.Encrypt(plaintext)
	}
	return c.conn.Send(t, payload)
}

func (c *Client) readLoop() {
	defer close(c.events)

	for {
		f, err := c.conn.Receive()
		if err != nil {
			c.finish(err)
			return
		}

		text := string(c.cipher.Decrypt(f.Payload))
		switch f.Type {
		case protocol.TypeData:
			c.events <- Event{Type: EventMessage, Text: text}
		case protocol.TypeClientList:
			c.events <- Event{Type: EventClientList, Text: text, Clients: splitList(text)}
		case protocol.TypeDisconnect:
			log.WithField("at", "client.readLoop").Info("server_sent_disconnect")
			c.finish(nil)
			return
		default:
			log.WithFields(logger.Fields{
				"at":      "client.readLoop",
				"msgType": f.Type.String(),
			}).Warn("unexpected_message_type")
		}
	}
}

func (c *Client) finish(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		// Local close; the read error is expected.
		return
	}
	c.closed = true
	switch {
	case err == nil:
		// Orderly Disconnect from the server.
	case errors.Is(err, protocol.ErrConnectionClosed):
		c.err = protocol.ErrConnectionClosed
	default:
		c.err = err
		log.WithError(err).Warn("connection_lost")
	}
	c.conn.Close()
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}
