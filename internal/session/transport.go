package session

import (
	"time"

	"github.com/dkeye/chatrelay/internal/core"
)

// Transport is one accepted connection as seen by a session: the send
// capability the registry stores plus the receive half only the session uses.
type Transport interface {
	core.Conn
	// ReadFrame blocks until one complete client payload is available.
	ReadFrame() ([]byte, error)
	SetReadDeadline(time.Time) error
	// WritePump drains the outbound queue until the transport is closed.
	WritePump()
}
