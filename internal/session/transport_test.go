package session

import (
	"os"
	"sync"
	"time"

	"github.com/dkeye/chatrelay/internal/core"
	"github.com/dkeye/chatrelay/internal/protocol"
)

// memTransport is an in-memory Transport. Frames pushed with deliver are
// returned by ReadFrame; frames sent by the server are decoded into lines.
type memTransport struct {
	in     chan []byte
	out    chan core.Frame
	lines  chan string
	done   chan struct{}
	once   sync.Once
	mu     sync.Mutex
	until  time.Time
	closed bool
}

func newMemTransport() *memTransport {
	return &memTransport{
		in:    make(chan []byte, 16),
		out:   make(chan core.Frame, 16),
		lines: make(chan string, 64),
		done:  make(chan struct{}),
	}
}

func (m *memTransport) deliver(msg protocol.Message) {
	b, err := msg.MarshalBinary()
	if err != nil {
		panic(err)
	}
	m.in <- b
}

func (m *memTransport) TrySend(f core.Frame) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return core.ErrConnClosed
	}
	select {
	case m.out <- f:
		return nil
	default:
		return core.ErrBackpressure
	}
}

func (m *memTransport) Close() {
	m.once.Do(func() {
		m.mu.Lock()
		m.closed = true
		close(m.out)
		m.mu.Unlock()
		close(m.done)
	})
}

func (m *memTransport) RemoteAddr() string { return "mem" }

func (m *memTransport) SetReadDeadline(t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.until = t
	return nil
}

func (m *memTransport) ReadFrame() ([]byte, error) {
	m.mu.Lock()
	until := m.until
	m.mu.Unlock()

	var timeout <-chan time.Time
	if !until.IsZero() {
		timer := time.NewTimer(time.Until(until))
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case b := <-m.in:
		return b, nil
	case <-m.done:
		return nil, core.ErrConnClosed
	case <-timeout:
		return nil, os.ErrDeadlineExceeded
	}
}

func (m *memTransport) WritePump() {
	for f := range m.out {
		var n protocol.Notice
		if err := n.UnmarshalBinary(f); err == nil {
			m.lines <- n.Text
		}
	}
	close(m.lines)
}

func (m *memTransport) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
