// Package ws exposes the relay protocol over WebSocket so browser peers can
// share rooms with TCP clients.
package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/dkeye/chatrelay/internal/core"
	"github.com/dkeye/chatrelay/internal/protocol"
	"github.com/dkeye/chatrelay/internal/session"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

type Options struct {
	ReadLimit    int64
	SendBuffer   int
	WriteTimeout time.Duration
}

type Gateway struct {
	ctx      context.Context
	handler  *session.Handler
	opts     Options
	upgrader websocket.Upgrader
}

// NewGateway binds every upgraded connection to ctx rather than to the HTTP
// request, whose context ends when the handler returns.
func NewGateway(ctx context.Context, h *session.Handler, opts Options) *Gateway {
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = protocol.DefaultMaxFrameSize
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 64
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	return &Gateway{
		ctx:     ctx,
		handler: h,
		opts:    opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.ws").Msg("ws upgrade")
		return
	}
	ws.SetReadLimit(g.opts.ReadLimit)

	conn := &Conn{
		conn:         ws,
		send:         make(chan core.Frame, g.opts.SendBuffer),
		writeTimeout: g.opts.WriteTimeout,
		addr:         r.RemoteAddr,
	}
	log.Info().Str("module", "adapters.ws").Str("addr", conn.addr).Msg("new WS connection")

	if err := g.handler.Start(g.ctx, conn); err != nil {
		log.Info().Err(err).Str("module", "adapters.ws").Str("addr", conn.addr).Msg("connection refused")
	}
}
