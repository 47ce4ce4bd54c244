package relay

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/go-i2p/go-relaychat/lib/handshake"
	"github.com/go-i2p/go-relaychat/lib/metrics"
	"github.com/go-i2p/go-relaychat/lib/protocol"
	"github.com/go-i2p/logger"
	"github.com/samber/oops"
	"golang.org/x/time/rate"
)

const (
	ackText      = "Message received"
	directPrefix = "DM:"
)

// Session serves one accepted connection from handshake to disconnect.
type Session struct {
	id      string
	conn    *protocol.Conn
	limiter *rate.Limiter

	config   *ServerConfig
	registry *Registry
	fanout   *Fanout
	metrics  *metrics.Metrics
}

// NewSession prepares a session for an accepted connection. The registry and
// fan-out are shared with every other session of the same server.
func NewSession(conn *protocol.Conn, config *ServerConfig, registry *Registry, fanout *Fanout, m *metrics.Metrics) *Session {
	limit := rate.Inf
	if config.RateLimit > 0 {
		limit = rate.Limit(config.RateLimit)
	}
	burst := config.RateBurst
	if burst < 1 {
		burst = 1
	}
	return &Session{
		id:       conn.RemoteAddr().String(),
		conn:     conn,
		limiter:  rate.NewLimiter(limit, burst),
		config:   config,
		registry: registry,
		fanout:   fanout,
		metrics:  m,
	}
}

// ID returns the connection identity.
func (s *Session) ID() string {
	return s.id
}

// Run performs the handshake, registers the client and processes frames
// until the client leaves or the connection fails. The registry entry is
// removed before Run returns.
func (s *Session) Run(ctx context.Context) error {
	res, err := handshake.Server(ctx, s.conn, handshake.Options{
		Suite:   s.config.Suite,
		Timeout: s.config.HandshakeTimeout,
	})
	if err != nil {
		s.metrics.HandshakeFailed()
		return err
	}

	member := NewMember(s.id, res.Cipher, s.conn, s.config.WriteTimeout)
	if err := s.registry.Register(member); err != nil {
		return err
	}
	s.metrics.ClientJoined()
	defer s.leave()

	log.WithFields(logger.Fields{
		"at":     "relay.Session.Run",
		"client": s.id,
	}).Info("secure_channel_established")

	s.publish(ctx, Message{Sender: s.id, Content: joinNotice(s.id), ExcludeSender: true})

	welcome := fmt.Sprintf("Welcome! You are connected as %s. There are %d other clients online.",
		s.id, s.registry.Count()-1)
	if err := member.Send(protocol.TypeData, []byte(welcome)); err != nil {
		return err
	}

	return s.loop(ctx, member)
}

func (s *Session) loop(ctx context.Context, member *Member) error {
	for {
		f, err := s.conn.Receive()
		if err != nil {
			log.WithFields(logger.Fields{
				"at":     "relay.Session.loop",
				"client": s.id,
				"error":  err.Error(),
			}).Info("client_disconnected")
			return err
		}
		s.metrics.FrameReceived(f.Type.String())

		switch f.Type {
		case protocol.TypeData:
			if err := s.handleData(ctx, member, member.Cipher.Decrypt(f.Payload)); err != nil {
				return err
			}
		case protocol.TypeClientList:
			list := strings.Join(s.registry.IDs(), "\n")
			if err := member.Send(protocol.TypeClientList, []byte(list)); err != nil {
				return err
			}
		case protocol.TypeDisconnect:
			log.WithFields(logger.Fields{
				"at":     "relay.Session.loop",
				"client": s.id,
			}).Info("client_sent_disconnect")
			return nil
		default:
			log.WithFields(logger.Fields{
				"at":      "relay.Session.loop",
				"client":  s.id,
				"msgType": f.Type.String(),
			}).Warn("unexpected_message_type")
		}
	}
}

func (s *Session) handleData(ctx context.Context, member *Member, plaintext []byte) error {
	if !s.limiter.Allow() {
		s.metrics.Limited()
		log.WithFields(logger.Fields{
			"at":     "relay.Session.handleData",
			"client": s.id,
		}).Debug("rate_limit_exceeded_delaying_message")
		// Over-limit senders are slowed down, never dropped.
		if err := s.limiter.Wait(ctx); err != nil {
			return oops.Wrapf(err, "waiting for rate limiter")
		}
	}

	log.WithFields(logger.Fields{
		"at":     "relay.Session.handleData",
		"client": s.id,
		"bytes":  len(plaintext),
	}).Debug("message_received")

	if target, text, ok := parseDirect(plaintext); ok {
		if _, exists := s.registry.Get(target); !exists {
			if err := member.Send(protocol.TypeData, []byte("* No such client: "+target)); err != nil {
				return err
			}
		} else {
			s.publish(ctx, Message{
				Sender:    s.id,
				Content:   []byte(fmt.Sprintf("[DM] %s: %s", s.id, text)),
				Recipient: target,
			})
		}
	} else {
		content := make([]byte, 0, len(s.id)+2+len(plaintext))
		content = append(content, s.id...)
		content = append(content, ": "...)
		content = append(content, plaintext...)
		s.publish(ctx, Message{Sender: s.id, Content: content, ExcludeSender: true})
	}

	return member.Send(protocol.TypeData, []byte(ackText))
}

// leave removes the registry entry and announces the departure. The notice is
// queued even when the session context is already cancelled; only a closed
// fan-out refuses it.
func (s *Session) leave() {
	if s.registry.Remove(s.id) {
		s.metrics.ClientLeft()
	}
	s.publish(context.Background(), Message{Sender: s.id, Content: leaveNotice(s.id), ExcludeSender: true})
}

func (s *Session) publish(ctx context.Context, msg Message) {
	if err := s.fanout.Publish(ctx, msg); err != nil {
		log.WithFields(logger.Fields{
			"at":     "relay.Session.publish",
			"client": s.id,
			"error":  err.Error(),
		}).Debug("relay_message_dropped")
	}
}

// parseDirect splits "DM:<target> <text>".
func parseDirect(plaintext []byte) (target, text string, ok bool) {
	if !bytes.HasPrefix(plaintext, []byte(directPrefix)) {
		return "", "", false
	}
	rest := string(plaintext[len(directPrefix):])
	target, text, found := strings.Cut(rest, " ")
	if !found || target == "" {
		return "", "", false
	}
	return target, text, true
}
