package relay

import "errors"

var (
	// ErrDuplicateIdentity is returned when a connection identity is already
	// registered.
	ErrDuplicateIdentity = errors.New("identity already registered")

	// ErrQueueClosed is returned by Publish after the fan-out has stopped.
	ErrQueueClosed = errors.New("relay queue closed")

	// ErrServerClosed is returned by Serve after Close.
	ErrServerClosed = errors.New("relay server closed")
)
