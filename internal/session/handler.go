// Package session runs the per-connection lifecycle shared by every transport:
// handshake, receive loop, frame dispatch and teardown.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/dkeye/chatrelay/internal/app"
	"github.com/dkeye/chatrelay/internal/app/orch"
	"github.com/dkeye/chatrelay/internal/core"
	"github.com/dkeye/chatrelay/internal/protocol"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
)

const DefaultHandshakeTimeout = 10 * time.Second

var (
	ErrHandshake    = errors.New("handshake failed")
	ErrShuttingDown = errors.New("shutting down")
)

// Handler owns every live transport, registered or still handshaking, so that
// Shutdown can close them all and wait for their goroutines.
type Handler struct {
	Orch             *orch.Orchestrator
	HandshakeTimeout time.Duration
	Limiter          *RateLimiter

	mu      sync.Mutex
	live    map[Transport]struct{}
	closing bool
	wg      conc.WaitGroup
}

func NewHandler(o *orch.Orchestrator, handshakeTimeout time.Duration, limiter *RateLimiter) *Handler {
	if handshakeTimeout <= 0 {
		handshakeTimeout = DefaultHandshakeTimeout
	}
	return &Handler{
		Orch:             o,
		HandshakeTimeout: handshakeTimeout,
		Limiter:          limiter,
		live:             make(map[Transport]struct{}),
	}
}

// Start runs the session for t in its own goroutines and returns immediately.
// After Shutdown began, t is closed and ErrShuttingDown returned.
func (h *Handler) Start(ctx context.Context, t Transport) error {
	h.mu.Lock()
	if h.closing {
		h.mu.Unlock()
		t.Close()
		return ErrShuttingDown
	}
	h.live[t] = struct{}{}
	// Spawned under mu so Shutdown never waits on a group that is still growing.
	h.wg.Go(t.WritePump)
	h.wg.Go(func() {
		defer func() {
			h.mu.Lock()
			delete(h.live, t)
			h.mu.Unlock()
		}()
		h.Serve(ctx, t)
	})
	h.mu.Unlock()
	return nil
}

// Live reports how many transports are being served.
func (h *Handler) Live() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.live)
}

// Shutdown closes every live transport and waits for all session goroutines,
// bounded by ctx.
func (h *Handler) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.closing = true
	live := make([]Transport, 0, len(h.live))
	for t := range h.live {
		live = append(live, t)
	}
	h.mu.Unlock()

	log.Info().Str("module", "session").Int("connections", len(live)).Msg("closing connections")
	for _, t := range live {
		t.Close()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if r := h.wg.WaitAndRecover(); r != nil {
			log.Error().Str("module", "session").Str("panic", r.String()).Msg("session goroutine panicked")
		}
	}()

	select {
	case <-done:
		log.Info().Str("module", "session").Msg("all sessions finished")
		return nil
	case <-ctx.Done():
		log.Warn().Str("module", "session").Msg("shutdown timeout reached, some sessions may still be running")
		return ctx.Err()
	}
}

// Serve performs the handshake and then the receive loop until the transport
// fails or is closed. It always closes t.
func (h *Handler) Serve(ctx context.Context, t Transport) {
	sid := core.SessionID(uuid.NewString())
	logger := log.With().Str("module", "session").Str("sid", string(sid)).Str("addr", t.RemoteAddr()).Logger()

	entry, err := h.handshake(sid, t)
	if err != nil {
		logger.Warn().Err(err).Msg("handshake rejected")
		t.Close()
		return
	}
	logger = logger.With().Str("user", entry.User.Username).Logger()

	defer func() {
		h.Orch.Disconnect(sid)
		h.Limiter.Forget(entry.User.ID)
		t.Close()
		logger.Info().Msg("session closed")
	}()

	for {
		if ctx.Err() != nil {
			return
		}
		payload, err := t.ReadFrame()
		if err != nil {
			logReadError(&logger, err)
			return
		}
		h.dispatch(&logger, entry, payload)
	}
}

func (h *Handler) handshake(sid core.SessionID, t Transport) (app.ClientEntry, error) {
	if err := t.SetReadDeadline(time.Now().Add(h.HandshakeTimeout)); err != nil {
		return app.ClientEntry{}, fmt.Errorf("%w: set deadline: %w", ErrHandshake, err)
	}

	payload, err := t.ReadFrame()
	if err != nil {
		return app.ClientEntry{}, fmt.Errorf("%w: read: %w", ErrHandshake, err)
	}

	msg, err := protocol.Decode(payload)
	if err != nil {
		return app.ClientEntry{}, fmt.Errorf("%w: %w", ErrHandshake, err)
	}
	join, ok := msg.(*protocol.Join)
	if !ok {
		return app.ClientEntry{}, fmt.Errorf("%w: expected %s, got %s", ErrHandshake, protocol.HeaderUser, msg.Header())
	}

	if err := t.SetReadDeadline(time.Time{}); err != nil {
		return app.ClientEntry{}, fmt.Errorf("%w: clear deadline: %w", ErrHandshake, err)
	}

	entry, err := h.Orch.Register(sid, t, join)
	if err != nil {
		return app.ClientEntry{}, fmt.Errorf("%w: %w", ErrHandshake, err)
	}
	return entry, nil
}

func (h *Handler) dispatch(logger *zerolog.Logger, entry app.ClientEntry, payload []byte) {
	msg, err := protocol.Decode(payload)
	if err != nil {
		logger.Warn().Err(err).Msg("protocol error, frame ignored")
		return
	}

	switch m := msg.(type) {
	case *protocol.Chat:
		if !h.allow(entry) {
			return
		}
		if _, err := h.Orch.Chat(entry.SID, m.Text); err != nil {
			logger.Warn().Err(err).Msg("chat")
		}
	case *protocol.ChangeRoom:
		if _, err := h.Orch.Move(entry.SID, m.Room); err != nil {
			logger.Warn().Err(err).Msg("room change rejected")
			h.Orch.Tell(entry.SID, "Cannot join room: %v", err)
		}
	case *protocol.FileAnnounce:
		if !h.allow(entry) {
			return
		}
		if _, err := h.Orch.ShareFile(entry.SID, m.Filename, m.Size); err != nil {
			logger.Warn().Err(err).Msg("file announce")
		}
	case *protocol.Join:
		logger.Warn().Msg("protocol error, repeated handshake ignored")
	default:
		logger.Warn().Str("header", msg.Header()).Msg("unknown message")
	}
}

func (h *Handler) allow(entry app.ClientEntry) bool {
	if h.Limiter.Allow(entry.User.ID) {
		return true
	}
	log.Debug().Str("module", "session").Str("sid", string(entry.SID)).Msg("rate limit exceeded, message dropped")
	h.Orch.Tell(entry.SID, "You are sending messages too fast; message dropped")
	return false
}

func logReadError(logger *zerolog.Logger, err error) {
	var netErr net.Error
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, core.ErrConnClosed), errors.Is(err, net.ErrClosed):
		logger.Info().Msg("client disconnected")
	case errors.As(err, &netErr) && netErr.Timeout():
		logger.Info().Msg("read interrupted")
	case errors.Is(err, protocol.ErrFrameTooLarge):
		logger.Warn().Err(err).Msg("oversized frame, closing")
	default:
		logger.Warn().Err(err).Msg("read error")
	}
}
