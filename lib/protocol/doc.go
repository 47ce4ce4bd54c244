// Package protocol implements the relaychat wire format.
//
// Every message on a connection is one frame:
//
//	byte 0     : message type (1=KeyExchange, 2=Data, 3=Disconnect, 4=ClientList)
//	bytes 1-4  : payload length, unsigned 32-bit, little-endian
//	bytes 5..N : payload, exactly length bytes
//
// Frames are self-delimited and indivisible. ReadFrame blocks until the whole
// payload has arrived and never returns a short payload. Conn serializes
// writers so two goroutines sending on the same connection cannot interleave
// partial frames.
package protocol
