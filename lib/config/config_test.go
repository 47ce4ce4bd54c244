package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-i2p/go-relaychat/lib/crypto/stream"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	CfgFile = ""
	t.Cleanup(func() {
		viper.Reset()
		CfgFile = ""
	})
}

// TestCurrentConfigDefaultsRoundTrip verifies that every default written by
// setDefaults() is read back by CurrentConfig() under the same key.
func TestCurrentConfigDefaultsRoundTrip(t *testing.T) {
	resetViper(t)
	setDefaults()

	assert.Equal(t, Defaults(), CurrentConfig())
}

func TestDefaultsAreValid(t *testing.T) {
	require.NoError(t, Validate(Defaults()))
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ConfigDefaults)
	}{
		{"empty listen addr", func(c *ConfigDefaults) { c.Server.ListenAddr = "" }},
		{"negative max clients", func(c *ConfigDefaults) { c.Server.MaxClients = -1 }},
		{"zero queue", func(c *ConfigDefaults) { c.Server.QueueCapacity = 0 }},
		{"tiny handshake timeout", func(c *ConfigDefaults) { c.Server.HandshakeTimeout = time.Millisecond }},
		{"negative rate", func(c *ConfigDefaults) { c.Server.RateLimit = -1 }},
		{"rate without burst", func(c *ConfigDefaults) { c.Server.RateBurst = 0 }},
		{"empty client addr", func(c *ConfigDefaults) { c.Client.ServerAddr = "" }},
		{"unknown suite", func(c *ConfigDefaults) { c.Crypto.Suite = "rot13" }},
		{"tiny payload", func(c *ConfigDefaults) { c.Protocol.MaxPayload = 8 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			assert.Error(t, Validate(cfg))
		})
	}

	cfg := Defaults()
	cfg.Crypto.Suite = "rot13"
	assert.True(t, errors.Is(Validate(cfg), stream.ErrUnknownSuite))
}

func TestInitConfigFromFile(t *testing.T) {
	resetViper(t)
	path := filepath.Join(t.TempDir(), "relay.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  listen_addr: 127.0.0.1:9999
  max_clients: 3
  handshake_timeout: 5s
crypto:
  suite: chacha20
`), 0o600))
	CfgFile = path

	require.NoError(t, InitConfig())

	srv := NewServerConfigFromViper()
	assert.Equal(t, "127.0.0.1:9999", srv.ListenAddr)
	assert.Equal(t, 3, srv.MaxClients)
	assert.Equal(t, 5*time.Second, srv.HandshakeTimeout)
	assert.Equal(t, stream.SuiteChaCha20, srv.Suite)
	assert.Equal(t, 100, srv.QueueCapacity, "unset keys keep their defaults")

	cli := NewClientConfigFromViper()
	assert.Equal(t, stream.SuiteChaCha20, cli.Suite)
	assert.Equal(t, 5*time.Second, cli.HandshakeTimeout)
}

func TestInitConfigMissingExplicitFile(t *testing.T) {
	resetViper(t)
	CfgFile = filepath.Join(t.TempDir(), "missing.yaml")
	assert.Error(t, InitConfig())
}

func TestInitConfigInvalidValue(t *testing.T) {
	resetViper(t)
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("crypto:\n  suite: rot13\n"), 0o600))
	CfgFile = path
	assert.Error(t, InitConfig())
}

func TestInitConfigCreatesDefaultFile(t *testing.T) {
	resetViper(t)
	home := t.TempDir()
	t.Setenv("HOME", home)

	require.NoError(t, InitConfig())

	data, err := os.ReadFile(filepath.Join(home, RELAYCHAT_BASE_DIR, "config.yaml"))
	require.NoError(t, err)
	var written ConfigDefaults
	require.NoError(t, yaml.Unmarshal(data, &written))
	assert.Equal(t, Defaults(), written)
}

func TestRender(t *testing.T) {
	resetViper(t)
	setDefaults()
	viper.Set("server.metrics_addr", "127.0.0.1:9100")

	out, err := Render()
	require.NoError(t, err)
	assert.Contains(t, string(out), "listen_addr: 0.0.0.0:8080")
	assert.Contains(t, string(out), "handshake_timeout: 30s")
	assert.Contains(t, string(out), "metrics_addr: 127.0.0.1:9100")
}
