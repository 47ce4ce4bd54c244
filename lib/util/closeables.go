// Package util holds process-level helpers shared by the commands.
package util

import (
	"io"
	"sync"

	"github.com/go-i2p/logger"
)

var log = logger.GetGoI2PLogger()

var (
	closeOnExit []io.Closer
	closeMutex  sync.Mutex
)

// RegisterCloser registers an io.Closer to be closed during shutdown.
func RegisterCloser(c io.Closer) {
	if c == nil {
		return
	}
	closeMutex.Lock()
	defer closeMutex.Unlock()
	closeOnExit = append(closeOnExit, c)
	log.WithField("count", len(closeOnExit)).Debug("registered_closer")
}

// CloseAll closes registered closers in reverse registration order and
// clears the list. Errors are logged and do not stop the remaining closes.
func CloseAll() {
	closeMutex.Lock()
	closers := closeOnExit
	closeOnExit = nil
	closeMutex.Unlock()

	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].Close(); err != nil {
			log.WithError(err).Warn("error_closing_resource")
		}
	}
	log.WithField("count", len(closers)).Debug("closed_all_closers")
}
