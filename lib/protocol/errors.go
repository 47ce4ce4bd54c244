package protocol

import "errors"

var (
	// ErrUnknownType is returned when a frame carries a type byte outside the
	// closed set of message types.
	ErrUnknownType = errors.New("unknown message type")

	// ErrConnectionClosed is returned when the peer closes the stream before a
	// complete frame has been read.
	ErrConnectionClosed = errors.New("connection closed")

	// ErrPayloadTooLarge is returned when a frame declares, or a caller tries
	// to send, a payload above the configured maximum.
	ErrPayloadTooLarge = errors.New("payload too large")
)
