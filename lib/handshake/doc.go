// Package handshake drives the two-message key exchange that opens every
// relaychat connection.
//
// The server speaks first:
//
//	server -> client : KeyExchange(server public, 8 bytes LE)
//	client -> server : KeyExchange(client public, 8 bytes LE)
//
// Both sides then compute the shared secret, derive the symmetric key and
// build a stream cipher. Any other frame type, or a KeyExchange payload that
// is not exactly 8 bytes, fails the handshake and the connection must be
// dropped before any data is relayed.
package handshake
