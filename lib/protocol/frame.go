package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/go-i2p/logger"
	"github.com/samber/oops"
)

var log = logger.GetGoI2PLogger()

// Type identifies the kind of a frame.
type Type uint8

// Message types as they appear in byte 0 of a frame.
const (
	TypeKeyExchange Type = 1 // public value, 8 bytes little-endian
	TypeData        Type = 2 // ciphertext of a chat message
	TypeDisconnect  Type = 3 // graceful close, empty payload
	TypeClientList  Type = 4 // request (empty) or ciphertext of the member list
)

const (
	// HeaderSize is type(1) + length(4).
	HeaderSize = 5

	// DefaultMaxPayload bounds the allocation a single frame may cause.
	DefaultMaxPayload = 1 << 20
)

// Valid reports whether t is one of the defined message types.
func (t Type) Valid() bool {
	return t >= TypeKeyExchange && t <= TypeClientList
}

// String returns a human-readable name for the message type
func (t Type) String() string {
	switch t {
	case TypeKeyExchange:
		return "KeyExchange"
	case TypeData:
		return "Data"
	case TypeDisconnect:
		return "Disconnect"
	case TypeClientList:
		return "ClientList"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(t))
	}
}

// Frame is one complete protocol message.
type Frame struct {
	Type    Type
	Payload []byte
}

// MarshalBinary encodes the frame to wire format.
func (f *Frame) MarshalBinary() ([]byte, error) {
	if !f.Type.Valid() {
		return nil, oops.Wrapf(ErrUnknownType, "cannot encode frame type %d", uint8(f.Type))
	}
	if uint64(len(f.Payload)) > uint64(^uint32(0)) {
		return nil, oops.Wrapf(ErrPayloadTooLarge, "payload of %d bytes does not fit a u32 length", len(f.Payload))
	}

	data := make([]byte, HeaderSize+len(f.Payload))
	data[0] = byte(f.Type)
	binary.LittleEndian.PutUint32(data[1:HeaderSize], uint32(len(f.Payload)))
	copy(data[HeaderSize:], f.Payload)
	return data, nil
}

// WriteFrame writes one frame to w in a single Write call.
func WriteFrame(w io.Writer, t Type, payload []byte) error {
	f := Frame{Type: t, Payload: payload}
	data, err := f.MarshalBinary()
	if err != nil {
		return err
	}

	if _, err := w.Write(data); err != nil {
		log.WithFields(logger.Fields{
			"at":         "protocol.WriteFrame",
			"remoteAddr": remoteAddr(w),
			"msgType":    t.String(),
			"error":      err.Error(),
		}).Debug("failed_to_write_frame")
		return oops.Wrapf(err, "failed to write %s frame", t)
	}

	log.WithFields(logger.Fields{
		"at":         "protocol.WriteFrame",
		"remoteAddr": remoteAddr(w),
		"msgType":    t.String(),
		"totalBytes": len(data),
	}).Debug("frame_written")
	return nil
}

// ReadFrame reads exactly one frame from r. A maxPayload of zero means
// DefaultMaxPayload.
func ReadFrame(r io.Reader, maxPayload uint32) (*Frame, error) {
	if maxPayload == 0 {
		maxPayload = DefaultMaxPayload
	}

	var header [HeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, readError(err, "header")
	}

	t := Type(header[0])
	length := binary.LittleEndian.Uint32(header[1:])

	if length > maxPayload {
		if !t.Valid() {
			return nil, oops.Wrapf(ErrUnknownType, "type byte 0x%02x", header[0])
		}
		log.WithFields(logger.Fields{
			"at":         "protocol.ReadFrame",
			"remoteAddr": remoteAddr(r),
			"msgTypeID":  header[0],
			"payloadLen": length,
			"maxAllowed": maxPayload,
		}).Warn("payload_size_exceeded_max")
		return nil, oops.Wrapf(ErrPayloadTooLarge, "declared payload %d exceeds %d", length, maxPayload)
	}

	payload := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, readError(err, "payload")
		}
	}

	// The payload is consumed before rejecting the type so the stream stays
	// aligned on a frame boundary for callers that choose to continue.
	if !t.Valid() {
		return nil, oops.Wrapf(ErrUnknownType, "type byte 0x%02x", header[0])
	}

	log.WithFields(logger.Fields{
		"at":         "protocol.ReadFrame",
		"remoteAddr": remoteAddr(r),
		"msgType":    t.String(),
		"payloadLen": length,
	}).Debug("frame_read")

	return &Frame{Type: t, Payload: payload}, nil
}

// readError maps short reads onto ErrConnectionClosed and wraps anything else.
func readError(err error, part string) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.ErrClosedPipe) || errors.Is(err, net.ErrClosed) {
		return oops.Wrapf(ErrConnectionClosed, "reading frame %s: %s", part, err.Error())
	}
	return oops.Wrapf(err, "failed to read frame %s", part)
}

func remoteAddr(v interface{}) string {
	if conn, ok := v.(net.Conn); ok && conn.RemoteAddr() != nil {
		return conn.RemoteAddr().String()
	}
	return "unknown"
}
