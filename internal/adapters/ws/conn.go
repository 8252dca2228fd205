package ws

import (
	"sync"
	"time"

	"github.com/dkeye/chatrelay/internal/core"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Conn carries one protocol payload per binary WebSocket message; the
// WebSocket framing replaces the TCP length prefix.
type Conn struct {
	conn         *websocket.Conn
	send         chan core.Frame
	writeTimeout time.Duration
	addr         string

	mu     sync.RWMutex
	closed bool
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

func (c *Conn) RemoteAddr() string { return c.addr }

func (c *Conn) ReadFrame() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	return data, err
}

func (c *Conn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

func (c *Conn) WritePump() {
	defer func() { _ = c.conn.Close() }()

	for data := range c.send {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			log.Error().Err(err).Str("module", "adapters.ws").Msg("writePump set deadline")
			c.Close()
			return
		}
		if err := c.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
			log.Warn().Err(err).Str("module", "adapters.ws").Str("addr", c.addr).Msg("writePump write error")
			c.Close()
			return
		}
	}

	_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
