package handshake

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/go-i2p/go-relaychat/lib/crypto/dh"
	"github.com/go-i2p/go-relaychat/lib/crypto/stream"
	"github.com/go-i2p/go-relaychat/lib/protocol"
	"github.com/go-i2p/logger"
	"github.com/samber/oops"
)

var log = logger.GetGoI2PLogger()

// DefaultTimeout bounds a whole handshake when Options.Timeout is zero.
const DefaultTimeout = 30 * time.Second

var (
	// ErrUnexpectedFrame is returned when a frame other than KeyExchange
	// arrives before the secure channel is established.
	ErrUnexpectedFrame = errors.New("unexpected frame during handshake")

	// ErrBadKeyLength is returned when a KeyExchange payload is not exactly
	// dh.PublicSize bytes.
	ErrBadKeyLength = errors.New("invalid key exchange payload length")

	// ErrTimeout is returned when the peer does not complete the exchange in
	// time.
	ErrTimeout = errors.New("handshake timed out")
)

// Options configures a handshake.
type Options struct {
	Suite   stream.Suite
	Timeout time.Duration
}

// Result is the outcome of a successful handshake.
type Result struct {
	Cipher     stream.Cipher
	PeerPublic uint64
}

// Machine runs one handshake over one connection. A Machine is used once.
type Machine struct {
	role    Role
	conn    *protocol.Conn
	opts    Options
	state   State
	history []State
}

// NewServer returns a Machine playing the accepting side.
func NewServer(conn *protocol.Conn, opts Options) *Machine {
	return newMachine(RoleServer, conn, opts)
}

// NewClient returns a Machine playing the connecting side.
func NewClient(conn *protocol.Conn, opts Options) *Machine {
	return newMachine(RoleClient, conn, opts)
}

func newMachine(role Role, conn *protocol.Conn, opts Options) *Machine {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	s := initialState(role)
	return &Machine{role: role, conn: conn, opts: opts, state: s, history: []State{s}}
}

// Server runs the server side of the handshake on conn.
func Server(ctx context.Context, conn *protocol.Conn, opts Options) (*Result, error) {
	return NewServer(conn, opts).Run(ctx)
}

// Client runs the client side of the handshake on conn.
func Client(ctx context.Context, conn *protocol.Conn, opts Options) (*Result, error) {
	return NewClient(conn, opts).Run(ctx)
}

// State returns the current state.
func (m *Machine) State() State {
	return m.state
}

// History returns every state the machine has been in, in order.
func (m *Machine) History() []State {
	return append([]State(nil), m.history...)
}

// Run executes the exchange. It must be called at most once.
func (m *Machine) Run(ctx context.Context) (*Result, error) {
	if m.state != initialState(m.role) {
		return nil, oops.Errorf("handshake already ran (state %s)", m.state)
	}

	deadline := time.Now().Add(m.opts.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := m.conn.SetDeadline(deadline); err != nil {
		return nil, m.fail(oops.Wrapf(err, "failed to set handshake deadline"))
	}
	stop := context.AfterFunc(ctx, func() {
		_ = m.conn.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	var (
		res *Result
		err error
	)
	if m.role == RoleServer {
		res, err = m.runServer()
	} else {
		res, err = m.runClient()
	}
	if err != nil {
		if ctx.Err() != nil {
			err = oops.Wrapf(ctx.Err(), "handshake aborted: %s", err.Error())
		}
		return nil, m.fail(err)
	}

	if err := m.conn.SetDeadline(time.Time{}); err != nil {
		return nil, m.fail(oops.Wrapf(err, "failed to clear handshake deadline"))
	}
	m.advance(StateEstablished)

	log.WithFields(logger.Fields{
		"at":         "handshake.Machine.Run",
		"role":       m.role.String(),
		"remoteAddr": m.conn.RemoteAddr().String(),
		"suite":      string(res.Cipher.Suite()),
	}).Debug("secure_channel_established")
	return res, nil
}

func (m *Machine) runServer() (*Result, error) {
	party, err := dh.NewParty()
	if err != nil {
		return nil, err
	}
	defer party.Wipe()

	if err := m.conn.Send(protocol.TypeKeyExchange, party.PublicBytes()); err != nil {
		return nil, mapIOError(err, "send server public value")
	}
	m.advance(StateSentPublicKey)
	m.advance(StateAwaitingPeerKey)

	peer, err := m.receivePeerKey()
	if err != nil {
		return nil, err
	}
	return m.finish(party, peer)
}

func (m *Machine) runClient() (*Result, error) {
	party, err := dh.NewParty()
	if err != nil {
		return nil, err
	}
	defer party.Wipe()

	m.advance(StateAwaitingServerKey)
	peer, err := m.receivePeerKey()
	if err != nil {
		return nil, err
	}

	if err := m.conn.Send(protocol.TypeKeyExchange, party.PublicBytes()); err != nil {
		return nil, mapIOError(err, "send client public value")
	}
	m.advance(StateSentPublicKey)
	return m.finish(party, peer)
}

// receivePeerKey reads the peer's KeyExchange frame and validates it.
func (m *Machine) receivePeerKey() (uint64, error) {
	f, err := m.conn.Receive()
	if err != nil {
		return 0, mapIOError(err, "receive peer public value")
	}
	if f.Type != protocol.TypeKeyExchange {
		return 0, oops.Wrapf(ErrUnexpectedFrame, "got %s while in %s", f.Type, m.state)
	}
	if len(f.Payload) != dh.PublicSize {
		return 0, oops.Wrapf(ErrBadKeyLength, "got %d bytes, want %d", len(f.Payload), dh.PublicSize)
	}
	peer, err := dh.DecodePublic(f.Payload)
	if err != nil {
		return 0, oops.Wrapf(ErrBadKeyLength, "%s", err.Error())
	}
	return peer, nil
}

func (m *Machine) finish(party *dh.Party, peer uint64) (*Result, error) {
	party.ComputeShared(peer)
	key, err := party.DeriveKey()
	if err != nil {
		// unreachable unless ComputeShared stops recording the secret
		return nil, oops.Wrapf(err, "key derivation after shared secret")
	}
	c, err := stream.New(m.opts.Suite, key)
	if err != nil {
		return nil, err
	}
	return &Result{Cipher: c, PeerPublic: peer}, nil
}

func (m *Machine) advance(to State) {
	if !legal(m.role, m.state, to) {
		panic("handshake: illegal transition " + m.state.String() + " -> " + to.String())
	}
	m.state = to
	m.history = append(m.history, to)
}

func (m *Machine) fail(err error) error {
	if !m.state.Terminal() {
		m.advance(StateFailed)
	}
	log.WithFields(logger.Fields{
		"at":         "handshake.Machine.Run",
		"role":       m.role.String(),
		"remoteAddr": m.conn.RemoteAddr().String(),
		"error":      err.Error(),
	}).Warn("handshake_failed")
	return err
}

func mapIOError(err error, op string) error {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return oops.Wrapf(ErrTimeout, "%s: %s", op, err.Error())
	}
	return oops.Wrapf(err, "%s", op)
}
