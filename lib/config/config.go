package config

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/go-i2p/go-relaychat/lib/client"
	"github.com/go-i2p/go-relaychat/lib/crypto/stream"
	"github.com/go-i2p/go-relaychat/lib/relay"
	"github.com/go-i2p/go-relaychat/lib/util"
	"github.com/go-i2p/logger"
	"github.com/samber/oops"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var (
	CfgFile string
	log     = logger.GetGoI2PLogger()
)

const RELAYCHAT_BASE_DIR = ".relaychat"

const (
	StandardFilePermissions = 0o644
	StandardDirPermissions  = 0o755
)

// InitConfig points viper at the configuration file, applies defaults and
// reads the file, creating a default one under the base directory when no
// explicit path was given and none exists yet.
func InitConfig() error {
	if CfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(CfgFile)
	} else {
		viper.AddConfigPath(BuildConfigDirPath())
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	setDefaults()

	if err := handleConfigFile(); err != nil {
		return err
	}
	return Validate(CurrentConfig())
}

func setDefaults() {
	d := Defaults()

	viper.SetDefault("server.listen_addr", d.Server.ListenAddr)
	viper.SetDefault("server.max_clients", d.Server.MaxClients)
	viper.SetDefault("server.queue_capacity", d.Server.QueueCapacity)
	viper.SetDefault("server.handshake_timeout", d.Server.HandshakeTimeout)
	viper.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	viper.SetDefault("server.rate_limit", d.Server.RateLimit)
	viper.SetDefault("server.rate_burst", d.Server.RateBurst)
	viper.SetDefault("server.metrics_addr", d.Server.MetricsAddr)

	viper.SetDefault("client.server_addr", d.Client.ServerAddr)
	viper.SetDefault("client.tui", d.Client.TUI)

	viper.SetDefault("crypto.suite", d.Crypto.Suite)
	viper.SetDefault("protocol.max_payload", d.Protocol.MaxPayload)
}

// CurrentConfig reads every setting from viper.
func CurrentConfig() ConfigDefaults {
	return ConfigDefaults{
		Server: ServerDefaults{
			ListenAddr:       viper.GetString("server.listen_addr"),
			MaxClients:       viper.GetInt("server.max_clients"),
			QueueCapacity:    viper.GetInt("server.queue_capacity"),
			HandshakeTimeout: viper.GetDuration("server.handshake_timeout"),
			WriteTimeout:     viper.GetDuration("server.write_timeout"),
			RateLimit:        viper.GetFloat64("server.rate_limit"),
			RateBurst:        viper.GetInt("server.rate_burst"),
			MetricsAddr:      viper.GetString("server.metrics_addr"),
		},
		Client: ClientDefaults{
			ServerAddr: viper.GetString("client.server_addr"),
			TUI:        viper.GetBool("client.tui"),
		},
		Crypto: CryptoDefaults{
			Suite: viper.GetString("crypto.suite"),
		},
		Protocol: ProtocolDefaults{
			MaxPayload: viper.GetUint32("protocol.max_payload"),
		},
	}
}

// NewServerConfigFromViper builds the relay server settings from viper.
func NewServerConfigFromViper() *relay.ServerConfig {
	cfg := CurrentConfig()
	suite, _ := stream.ParseSuite(cfg.Crypto.Suite)
	return &relay.ServerConfig{
		ListenAddr:       cfg.Server.ListenAddr,
		MaxClients:       cfg.Server.MaxClients,
		QueueCapacity:    cfg.Server.QueueCapacity,
		HandshakeTimeout: cfg.Server.HandshakeTimeout,
		WriteTimeout:     cfg.Server.WriteTimeout,
		RateLimit:        cfg.Server.RateLimit,
		RateBurst:        cfg.Server.RateBurst,
		MaxPayload:       cfg.Protocol.MaxPayload,
		Suite:            suite,
		MetricsAddr:      cfg.Server.MetricsAddr,
	}
}

// NewClientConfigFromViper builds the client settings from viper.
func NewClientConfigFromViper() *client.Config {
	cfg := CurrentConfig()
	suite, _ := stream.ParseSuite(cfg.Crypto.Suite)
	return &client.Config{
		Suite:            suite,
		HandshakeTimeout: cfg.Server.HandshakeTimeout,
		MaxPayload:       cfg.Protocol.MaxPayload,
	}
}

// Render returns the effective configuration as YAML.
func Render() ([]byte, error) {
	out, err := yaml.Marshal(CurrentConfig())
	if err != nil {
		return nil, oops.Wrapf(err, "failed to render configuration")
	}
	return out, nil
}

func createDefaultConfig(defaultConfigDir string) error {
	defaultConfigFile := filepath.Join(defaultConfigDir, "config.yaml")
	if err := os.MkdirAll(filepath.Clean(defaultConfigDir), StandardDirPermissions); err != nil {
		return oops.Wrapf(err, "could not create config directory")
	}

	data, err := Render()
	if err != nil {
		return err
	}
	if err := os.WriteFile(defaultConfigFile, data, StandardFilePermissions); err != nil {
		return oops.Wrapf(err, "could not write default config file")
	}

	log.Debugf("Created default configuration at: %s", defaultConfigFile)
	return nil
}

func handleConfigFile() error {
	err := viper.ReadInConfig()
	if err == nil {
		log.Debugf("Using config file: %s", viper.ConfigFileUsed())
		return nil
	}

	var notFound viper.ConfigFileNotFoundError
	switch {
	case CfgFile != "" && os.IsNotExist(err):
		return oops.Wrapf(err, "config file %s is not found", CfgFile)
	case CfgFile != "":
		return oops.Wrapf(err, "error reading config file %s", CfgFile)
	case errors.As(err, &notFound):
		return createDefaultConfig(BuildConfigDirPath())
	default:
		return oops.Wrapf(err, "error reading config file")
	}
}

// BuildConfigDirPath returns $HOME/.relaychat.
func BuildConfigDirPath() string {
	return filepath.Join(util.UserHome(), RELAYCHAT_BASE_DIR)
}
