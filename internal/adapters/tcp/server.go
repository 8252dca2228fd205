// Package tcp is the relay's primary transport: a TCP listener whose accepted
// connections are handed to the session handler.
package tcp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/dkeye/chatrelay/internal/session"
	"github.com/rs/zerolog/log"
)

const maxAcceptDelay = time.Second

type Server struct {
	handler *session.Handler
	opts    Options

	mu      sync.Mutex
	ln      net.Listener
	serving bool
	done    chan struct{}
}

func NewServer(h *session.Handler, opts Options) *Server {
	return &Server{
		handler: h,
		opts:    opts.withDefaults(),
		done:    make(chan struct{}),
	}
}

// Listen binds addr. A bind failure is the only error fatal to the process.
func (s *Server) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	log.Info().Str("module", "adapters.tcp").Str("addr", ln.Addr().String()).Msg("listening")
	return nil
}

func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Serve accepts connections until the listener is closed or ctx is done.
// Handshakes run on the session goroutines, never on the accept path.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	ln := s.ln
	if ln == nil || s.serving {
		s.mu.Unlock()
		return errors.New("serve requires a fresh listener")
	}
	s.serving = true
	s.mu.Unlock()
	defer close(s.done)

	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	var delay time.Duration
	for {
		c, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				log.Info().Str("module", "adapters.tcp").Msg("accept loop stopped")
				return nil
			}
			if delay == 0 {
				delay = 5 * time.Millisecond
			} else {
				delay = min(delay*2, maxAcceptDelay)
			}
			log.Warn().Err(err).Str("module", "adapters.tcp").Dur("retry_in", delay).Msg("accept error")
			select {
			case <-time.After(delay):
			case <-ctx.Done():
			}
			continue
		}
		delay = 0

		log.Debug().Str("module", "adapters.tcp").Str("addr", c.RemoteAddr().String()).Msg("accepted")
		if err := s.handler.Start(ctx, NewConn(c, s.opts)); err != nil {
			log.Info().Err(err).Str("module", "adapters.tcp").Str("addr", c.RemoteAddr().String()).Msg("connection refused")
		}
	}
}

// Shutdown closes the listener, waits for the accept loop, then closes every
// session and waits for them, all bounded by ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Str("module", "adapters.tcp").Msg("shutting down")

	s.mu.Lock()
	ln, serving := s.ln, s.serving
	s.mu.Unlock()
	if ln != nil {
		if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			log.Warn().Err(err).Str("module", "adapters.tcp").Msg("close listener")
		}
	}
	if serving {
		select {
		case <-s.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return s.handler.Shutdown(ctx)
}

func isExpectedCloseError(err error) bool {
	if err == nil || errors.Is(err, net.ErrClosed) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "broken pipe") ||
		strings.Contains(errStr, "connection reset by peer")
}
