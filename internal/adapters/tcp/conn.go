package tcp

import (
	"bufio"
	"net"
	"sync"
	"time"

	"github.com/dkeye/chatrelay/internal/core"
	"github.com/dkeye/chatrelay/internal/protocol"
	"github.com/rs/zerolog/log"
)

const (
	DefaultSendBuffer   = 64
	DefaultWriteTimeout = 5 * time.Second
)

type Options struct {
	ReadLimit    int
	SendBuffer   int
	WriteTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.ReadLimit <= 0 {
		o.ReadLimit = protocol.DefaultMaxFrameSize
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = DefaultSendBuffer
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = DefaultWriteTimeout
	}
	return o
}

// Conn is a framed TCP connection. Outbound frames are queued and written by
// WritePump so that senders never block on a slow peer.
type Conn struct {
	conn net.Conn
	r    *bufio.Reader
	send chan core.Frame
	opts Options

	mu     sync.RWMutex
	closed bool
}

func NewConn(c net.Conn, opts Options) *Conn {
	opts = opts.withDefaults()
	return &Conn{
		conn: c,
		r:    bufio.NewReader(c),
		send: make(chan core.Frame, opts.SendBuffer),
		opts: opts,
	}
}

func (c *Conn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return core.ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return core.ErrBackpressure
	}
	return nil
}

// Close stops accepting frames and interrupts a pending read. Frames already
// queued are still flushed by WritePump before the socket is released.
func (c *Conn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	c.mu.Unlock()
	_ = c.conn.SetReadDeadline(time.Now())
}

func (c *Conn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

func (c *Conn) ReadFrame() ([]byte, error) {
	return protocol.ReadFrame(c.r, c.opts.ReadLimit)
}

func (c *Conn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

func (c *Conn) WritePump() {
	defer func() {
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			log.Warn().Err(err).Str("module", "adapters.tcp").Str("addr", c.RemoteAddr()).Msg("close")
		}
	}()

	for f := range c.send {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout)); err != nil {
			log.Warn().Err(err).Str("module", "adapters.tcp").Str("addr", c.RemoteAddr()).Msg("writePump set deadline")
			c.Close()
			return
		}
		if err := protocol.WriteFrame(c.conn, f); err != nil {
			if !isExpectedCloseError(err) {
				log.Warn().Err(err).Str("module", "adapters.tcp").Str("addr", c.RemoteAddr()).Msg("writePump write error")
			}
			c.Close()
			return
		}
	}
}
