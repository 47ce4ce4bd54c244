package config

import (
	"time"

	"github.com/go-i2p/go-relaychat/lib/crypto/stream"
	"github.com/go-i2p/go-relaychat/lib/protocol"
	"github.com/go-i2p/logger"
	"github.com/samber/oops"
)

// ConfigDefaults contains all default configuration values for relaychat.
type ConfigDefaults struct {
	Server   ServerDefaults   `yaml:"server"`
	Client   ClientDefaults   `yaml:"client"`
	Crypto   CryptoDefaults   `yaml:"crypto"`
	Protocol ProtocolDefaults `yaml:"protocol"`
}

// ServerDefaults contains default values for the relay server
type ServerDefaults struct {
	// ListenAddr is the address the relay binds
	// Default: 0.0.0.0:8080
	ListenAddr string `yaml:"listen_addr"`

	// MaxClients limits concurrent connections, including those still in
	// the key exchange
	// Default: 100
	MaxClients int `yaml:"max_clients"`

	// QueueCapacity bounds the relay queue; producers block when it is full
	// Default: 100
	QueueCapacity int `yaml:"queue_capacity"`

	// HandshakeTimeout bounds the whole key exchange
	// Default: 30 seconds
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`

	// WriteTimeout bounds each frame write to a client
	// Default: 10 seconds
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// RateLimit is the sustained Data frames per second per client
	// Default: 20
	RateLimit float64 `yaml:"rate_limit"`

	// RateBurst is the burst allowed above RateLimit
	// Default: 40
	RateBurst int `yaml:"rate_burst"`

	// MetricsAddr serves /metrics when set
	// Default: "" (disabled)
	MetricsAddr string `yaml:"metrics_addr"`
}

// ClientDefaults contains default values for the chat client
type ClientDefaults struct {
	ServerAddr string `yaml:"server_addr"`
	TUI        bool   `yaml:"tui"`
}

// CryptoDefaults selects the channel cipher
type CryptoDefaults struct {
	// Suite is "xor" or "chacha20"; both ends must agree
	Suite string `yaml:"suite"`
}

// ProtocolDefaults contains wire limits
type ProtocolDefaults struct {
	MaxPayload uint32 `yaml:"max_payload"`
}

// Defaults returns a ConfigDefaults instance with all default values set.
// This is the single source of truth for all configuration defaults.
func Defaults() ConfigDefaults {
	return ConfigDefaults{
		Server: ServerDefaults{
			ListenAddr:       "0.0.0.0:8080",
			MaxClients:       100,
			QueueCapacity:    100,
			HandshakeTimeout: 30 * time.Second,
			WriteTimeout:     10 * time.Second,
			RateLimit:        20,
			RateBurst:        40,
		},
		Client: ClientDefaults{
			ServerAddr: "127.0.0.1:8080",
		},
		Crypto: CryptoDefaults{
			Suite: string(stream.SuiteXOR),
		},
		Protocol: ProtocolDefaults{
			MaxPayload: protocol.DefaultMaxPayload,
		},
	}
}

// Validate checks if the provided configuration values are reasonable.
// Returns an error describing the first invalid value found.
func Validate(cfg ConfigDefaults) error {
	validators := []func() error{
		func() error { return validateServer(cfg.Server) },
		func() error { return validateClient(cfg.Client) },
		func() error { return validateCrypto(cfg.Crypto) },
		func() error { return validateProtocol(cfg.Protocol) },
	}

	for _, validator := range validators {
		if err := validator(); err != nil {
			log.WithError(err).Error("Configuration validation failed")
			return err
		}
	}
	log.WithFields(logger.Fields{
		"at":     "config.Validate",
		"reason": "all_validators_passed",
	}).Debug("configuration validated")
	return nil
}

func validateServer(server ServerDefaults) error {
	if server.ListenAddr == "" {
		return newValidationError("server.listen_addr must not be empty")
	}
	if server.MaxClients < 0 {
		return newValidationError("server.max_clients must not be negative")
	}
	if server.QueueCapacity < 1 {
		return newValidationError("server.queue_capacity must be at least 1")
	}
	if server.HandshakeTimeout < 100*time.Millisecond {
		return newValidationError("server.handshake_timeout must be at least 100ms")
	}
	if server.WriteTimeout < 0 {
		return newValidationError("server.write_timeout must not be negative")
	}
	if server.RateLimit < 0 {
		return newValidationError("server.rate_limit must not be negative")
	}
	if server.RateLimit > 0 && server.RateBurst < 1 {
		return newValidationError("server.rate_burst must be at least 1 when rate_limit is set")
	}
	return nil
}

func validateClient(client ClientDefaults) error {
	if client.ServerAddr == "" {
		return newValidationError("client.server_addr must not be empty")
	}
	return nil
}

func validateCrypto(c CryptoDefaults) error {
	if _, err := stream.ParseSuite(c.Suite); err != nil {
		return oops.Wrapf(err, "crypto.suite")
	}
	return nil
}

func validateProtocol(p ProtocolDefaults) error {
	if p.MaxPayload < 64 {
		return newValidationError("protocol.max_payload must be at least 64 bytes")
	}
	return nil
}

type validationError struct {
	message string
}

func newValidationError(message string) error {
	return &validationError{message: message}
}

func (e *validationError) Error() string {
	return "configuration validation failed: " + e.message
}
