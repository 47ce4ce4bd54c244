package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/go-i2p/go-relaychat/lib/client"
	"github.com/go-i2p/go-relaychat/lib/config"
	"github.com/go-i2p/go-relaychat/lib/console"
	"github.com/go-i2p/go-relaychat/lib/metrics"
	"github.com/go-i2p/go-relaychat/lib/relay"
	"github.com/go-i2p/go-relaychat/lib/util"
	"github.com/go-i2p/go-relaychat/lib/util/signals"
	"github.com/go-i2p/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var log = logger.GetGoI2PLogger()

const defaultPort = 8080

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "relaychat",
		Short: "Encrypted chat relay server and client",
		Long: `relaychat runs a TCP chat relay and its terminal client.

Every connection performs a Diffie-Hellman key exchange before any chat
traffic; the server decrypts each message with the sender's key and
re-encrypts it for every other connected client.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.InitConfig()
		},
	}

	cmd.PersistentFlags().StringVar(&config.CfgFile, "config", "",
		"config file (default $HOME/.relaychat/config.yaml)")

	cmd.AddCommand(newServerCommand(), newClientCommand(), newConfigCommand())
	return cmd
}

func newServerCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "server [port]",
		Short: "Run the relay server",
		Example: `  # Listen on the configured address (0.0.0.0:8080 by default)
  relaychat server

  # Listen on port 9000 and expose metrics
  relaychat server 9000 --metrics 127.0.0.1:9100`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.NewServerConfigFromViper()
			if len(args) == 1 {
				cfg.ListenAddr = listenAddrWithPort(cfg.ListenAddr, args[0])
			}
			return runServer(cfg)
		},
	}
	cmd.Flags().String("metrics", "", "address for the Prometheus endpoint")
	viper.BindPFlag("server.metrics_addr", cmd.Flags().Lookup("metrics"))
	return cmd
}

func newClientCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "client [address:port]",
		Short: "Connect to a relay server",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr := viper.GetString("client.server_addr")
			if len(args) == 1 {
				addr = args[0]
			}
			return runClient(addr)
		},
	}
	cmd.Flags().Bool("tui", false, "use the terminal UI")
	viper.BindPFlag("client.tui", cmd.Flags().Lookup("tui"))
	return cmd
}

func newConfigCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := config.Render()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}

// listenAddrWithPort keeps the configured host and replaces the port. An
// unparsable port falls back to 8080.
func listenAddrWithPort(listenAddr, port string) string {
	p, err := strconv.ParseUint(port, 10, 16)
	if err != nil {
		log.WithField("port", port).Warn("invalid_port_using_default")
		p = defaultPort
	}
	host, _, err := net.SplitHostPort(listenAddr)
	if err != nil {
		host = "0.0.0.0"
	}
	return net.JoinHostPort(host, strconv.FormatUint(p, 10))
}

func runServer(cfg *relay.ServerConfig) error {
	go signals.Handle()

	srv := relay.NewServer(cfg, metrics.New())
	if err := srv.Listen(); err != nil {
		log.Fatalf("Failed to bind to %s: %v", cfg.ListenAddr, err)
	}
	fmt.Printf("Server listening on %s\n", srv.Addr())

	signals.RegisterInterruptHandler(func() {
		srv.Close()
	})

	err := srv.Serve(context.Background())
	if errors.Is(err, relay.ErrServerClosed) {
		return nil
	}
	return err
}

func runClient(addr string) error {
	go signals.Handle()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	signals.RegisterInterruptHandler(func() {
		cancel()
		util.CloseAll()
	})

	fmt.Printf("Connecting to %s...\n", addr)
	c, err := client.Dial(ctx, addr, config.NewClientConfigFromViper())
	if err != nil {
		return err
	}
	util.RegisterCloser(c)
	defer util.CloseAll()

	if viper.GetBool("client.tui") {
		err = console.RunTUI(ctx, c)
	} else {
		err = console.RunREPL(ctx, c, os.Stdin, os.Stdout)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("client error: %w", err)
	}
	return nil
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
