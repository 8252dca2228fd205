package core

import "errors"

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)

// Frame is one encoded server-to-client payload, without the transport's length prefix.
type Frame []byte

type SessionID string

// Conn is the only capability the registry and broadcaster need from a transport:
// queue a frame for delivery, and release the connection.
// Owned by the adapter; the adapter must Close() it.
type Conn interface {
	// TrySend never blocks. It fails with ErrBackpressure when the outbound queue
	// is full and with ErrConnClosed after Close.
	TrySend(Frame) error
	Close()
	RemoteAddr() string
}
