// Package config provides configuration management for relaychat.
//
// Settings are read with viper from $HOME/.relaychat/config.yaml, or from
// the file named by --config. A default file is written on first run when
// no explicit path was given. Every key has a default in Defaults, so an
// empty or partial file is valid.
//
// Keys:
//
//	server.listen_addr        address the relay binds
//	server.max_clients        concurrent connection limit
//	server.queue_capacity     relay queue size in front of the fan-out
//	server.handshake_timeout  key exchange deadline
//	server.write_timeout      per-frame write deadline
//	server.rate_limit         Data frames per second per client (0 disables)
//	server.rate_burst         burst allowed above rate_limit
//	server.metrics_addr       Prometheus endpoint address, empty to disable
//	client.server_addr        relay the client dials by default
//	client.tui                use the terminal UI instead of the line REPL
//	crypto.suite              "xor" or "chacha20"
//	protocol.max_payload      largest accepted frame payload in bytes
package config
