package relay

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-i2p/go-relaychat/lib/crypto/stream"
	"github.com/go-i2p/go-relaychat/lib/handshake"
	"github.com/go-i2p/go-relaychat/lib/metrics"
	"github.com/go-i2p/go-relaychat/lib/protocol"
	"github.com/go-i2p/logger"
	"github.com/samber/oops"
	"golang.org/x/sync/errgroup"
)

var log = logger.GetGoI2PLogger()

// ServerConfig holds configuration for the relay server
type ServerConfig struct {
	// Address to listen on, e.g. "0.0.0.0:8080"
	ListenAddr string

	// Maximum number of concurrent connections, counting those still in the
	// handshake. Zero means unlimited.
	MaxClients int

	// Capacity of the relay queue in front of the fan-out
	QueueCapacity int

	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration

	// Data frames per second allowed per client, and the burst on top of it.
	// A RateLimit of zero disables limiting.
	RateLimit float64
	RateBurst int

	MaxPayload uint32
	Suite      stream.Suite

	// Optional address for the Prometheus endpoint
	MetricsAddr string
}

// DefaultServerConfig returns a ServerConfig with the stock relay settings
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		ListenAddr:       "0.0.0.0:8080",
		MaxClients:       100,
		QueueCapacity:    DefaultQueueCapacity,
		HandshakeTimeout: handshake.DefaultTimeout,
		WriteTimeout:     10 * time.Second,
		RateLimit:        20,
		RateBurst:        40,
		MaxPayload:       protocol.DefaultMaxPayload,
		Suite:            stream.SuiteXOR,
	}
}

// Server accepts chat clients and relays their messages.
type Server struct {
	config   *ServerConfig
	metrics  *metrics.Metrics
	registry *Registry
	fanout   *Fanout

	listener net.Listener

	mu     sync.Mutex
	closed bool
	conns  map[net.Conn]struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer creates a relay server. A nil config means DefaultServerConfig;
// a nil m disables metrics.
func NewServer(config *ServerConfig, m *metrics.Metrics) *Server {
	if config == nil {
		config = DefaultServerConfig()
	}

	log.WithFields(logger.Fields{
		"at":            "relay.NewServer",
		"listenAddr":    config.ListenAddr,
		"maxClients":    config.MaxClients,
		"queueCapacity": config.QueueCapacity,
		"suite":         string(config.Suite),
	}).Info("creating_relay_server")

	ctx, cancel := context.WithCancel(context.Background())
	registry := NewRegistry()
	return &Server{
		config:   config,
		metrics:  m,
		registry: registry,
		fanout:   NewFanout(registry, config.QueueCapacity, m),
		conns:    make(map[net.Conn]struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Listen binds the configured address. Serve calls it when needed.
func (s *Server) Listen() error {
	if s.listener != nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.config.ListenAddr)
	if err != nil {
		return oops.Wrapf(err, "failed to listen on %s", s.config.ListenAddr)
	}
	s.listener = listener

	log.WithFields(logger.Fields{
		"at":      "relay.Server.Listen",
		"address": listener.Addr().String(),
	}).Info("relay_server_listening")
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Registry exposes the server's client registry.
func (s *Server) Registry() *Registry {
	return s.registry
}

// Serve runs the accept loop, the fan-out and the optional metrics endpoint
// until ctx is cancelled or Close is called. All sessions have ended when it
// returns.
func (s *Server) Serve(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}

	stop := context.AfterFunc(ctx, s.cancel)
	defer stop()

	g, gctx := errgroup.WithContext(s.ctx)

	// The fan-out outlives the sessions so their leave notices are delivered.
	g.Go(func() error {
		return s.fanout.Run(context.Background())
	})
	g.Go(func() error {
		s.acceptLoop(gctx)
		// The listener is gone; stop everything else too.
		s.cancel()
		return nil
	})
	if s.config.MetricsAddr != "" {
		g.Go(func() error {
			return s.serveMetrics(gctx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		s.shutdown()
		return nil
	})

	err := g.Wait()
	if err != nil {
		return err
	}
	if ctx.Err() == nil {
		return ErrServerClosed
	}
	return nil
}

// Close stops the server. Serve returns ErrServerClosed.
func (s *Server) Close() error {
	s.cancel()
	return nil
}

func (s *Server) shutdown() {
	s.mu.Lock()
	s.closed = true
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	if err := s.listener.Close(); err != nil {
		log.WithError(err).Warn("error_closing_listener")
	}

	s.wg.Wait()
	s.fanout.Close()

	log.WithField("at", "relay.Server.shutdown").Info("relay_server_stopped")
}

func (s *Server) serveMetrics(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.MetricsAddr,
		Handler:           s.metrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		srv.Close()
	}()

	log.WithField("address", s.config.MetricsAddr).Info("metrics_endpoint_started")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return oops.Wrapf(err, "metrics endpoint on %s", s.config.MetricsAddr)
	}
	return nil
}

// acceptLoop accepts incoming connections
func (s *Server) acceptLoop(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			log.WithFields(logger.Fields{
				"at":    "relay.Server.acceptLoop",
				"panic": r,
			}).Error("panic_in_accept_loop")
		}
	}()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.handleAcceptError(ctx, err) {
				return
			}
			continue
		}

		log.WithFields(logger.Fields{
			"at":         "relay.Server.acceptLoop",
			"remoteAddr": conn.RemoteAddr().String(),
		}).Info("new_client_connection")

		if s.shouldRejectConnection(conn) {
			continue
		}
		if !s.track(conn) {
			conn.Close()
			return
		}

		go s.handleConnection(ctx, conn)
	}
}

// handleAcceptError returns true if the accept loop should terminate.
func (s *Server) handleAcceptError(ctx context.Context, err error) bool {
	select {
	case <-ctx.Done():
		return true
	default:
	}
	if errors.Is(err, net.ErrClosed) {
		return true
	}
	log.WithError(err).Error("failed_to_accept_connection")
	return false
}

// shouldRejectConnection closes conn when the server is full.
func (s *Server) shouldRejectConnection(conn net.Conn) bool {
	if s.config.MaxClients <= 0 {
		return false
	}
	s.mu.Lock()
	active := len(s.conns)
	s.mu.Unlock()

	if active >= s.config.MaxClients {
		log.WithFields(logger.Fields{
			"at":         "relay.Server.shouldRejectConnection",
			"active":     active,
			"maxClients": s.config.MaxClients,
			"remoteAddr": conn.RemoteAddr().String(),
		}).Warn("max_clients_reached_rejecting_connection")
		conn.Close()
		return true
	}
	return false
}

// track records conn and reserves a slot in the wait group. It fails once
// shutdown has started.
func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[conn] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer s.wg.Done()
	defer s.untrack(conn)
	defer conn.Close()

	session := NewSession(protocol.NewConn(conn, s.config.MaxPayload), s.config, s.registry, s.fanout, s.metrics)
	err := session.Run(ctx)

	fields := logger.Fields{
		"at":     "relay.Server.handleConnection",
		"client": session.ID(),
	}
	if err != nil && !errors.Is(err, protocol.ErrConnectionClosed) {
		log.WithError(err).WithFields(fields).Warn("session_ended_with_error")
		return
	}
	log.WithFields(fields).Debug("session_ended")
}
