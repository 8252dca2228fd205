package orch

import (
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/chatrelay/internal/app"
	"github.com/dkeye/chatrelay/internal/core"
	"github.com/dkeye/chatrelay/internal/domain"
	"github.com/dkeye/chatrelay/internal/protocol"
	"github.com/rs/zerolog/log"
)

const DefaultTimeFormat = "15:04:05"

var ErrNotRegistered = errors.New("session not registered")

// Orchestrator owns every registry mutation and renders the notices that go
// with it. Transports call it; it never touches sockets beyond core.Conn.
type Orchestrator struct {
	Registry    *app.Registry
	Broadcaster *app.Broadcaster
	Echo        app.EchoPolicy
	TimeFormat  string
	Now         func() time.Time
}

func New(reg *app.Registry, echo app.EchoPolicy) *Orchestrator {
	o := &Orchestrator{
		Registry:    reg,
		Broadcaster: app.NewBroadcaster(reg),
		Echo:        echo,
		TimeFormat:  DefaultTimeFormat,
		Now:         time.Now,
	}
	o.Broadcaster.OnDrop(o.onDropped)
	return o
}

// Register completes a handshake: the entry becomes visible to broadcasts and
// the room learns about the newcomer.
func (o *Orchestrator) Register(sid core.SessionID, conn core.Conn, join *protocol.Join) (app.ClientEntry, error) {
	user, err := domain.NewUser(join.Username)
	if err != nil {
		return app.ClientEntry{}, fmt.Errorf("username %q: %w", join.Username, err)
	}
	room, err := domain.NormalizeRoom(join.Room)
	if err != nil {
		return app.ClientEntry{}, fmt.Errorf("room %q: %w", join.Room, err)
	}

	entry := app.ClientEntry{
		SID:      sid,
		Conn:     conn,
		User:     *user,
		Room:     room,
		JoinedAt: o.now(),
	}
	if err := o.Registry.Add(entry); err != nil {
		return app.ClientEntry{}, err
	}

	log.Info().Str("module", "orch").Str("sid", string(sid)).Str("user", user.Username).Str("room", string(room)).Msg("client joined")
	o.Broadcaster.BroadcastToRoom(room, o.notice("%s joined the room %s", user.Username, room), sid)
	o.Tell(sid, "Welcome %s! You are in room %s", user.Username, room)
	return entry, nil
}

// Disconnect removes sid, closes its connection and announces the departure to
// its last room. It reports false when sid was already gone.
func (o *Orchestrator) Disconnect(sid core.SessionID) bool {
	e, ok := o.Registry.Remove(sid)
	if !ok {
		return false
	}
	e.Conn.Close()
	o.announceLeave(e)
	return true
}

// Kick is an administrative disconnect.
func (o *Orchestrator) Kick(sid core.SessionID) bool {
	e, ok := o.Registry.Get(sid)
	if !ok {
		return false
	}
	o.Tell(sid, "You have been disconnected by the server")
	log.Info().Str("module", "orch").Str("sid", string(sid)).Str("user", e.User.Username).Msg("kicking client")
	return o.Disconnect(sid)
}

// Tell sends a private notice to one session.
func (o *Orchestrator) Tell(sid core.SessionID, format string, args ...any) bool {
	return o.Broadcaster.SendTo(sid, o.notice(format, args...))
}

func (o *Orchestrator) onDropped(e app.ClientEntry, _ error) {
	o.announceLeave(e)
}

func (o *Orchestrator) announceLeave(e app.ClientEntry) {
	log.Info().Str("module", "orch").Str("sid", string(e.SID)).Str("user", e.User.Username).Str("room", string(e.Room)).Msg("client left")
	o.Broadcaster.BroadcastToRoom(e.Room, o.notice("%s left the room %s", e.User.Username, e.Room), e.SID)
}

func (o *Orchestrator) now() time.Time {
	if o.Now == nil {
		return time.Now()
	}
	return o.Now()
}

// notice renders a timestamped server line.
func (o *Orchestrator) notice(format string, args ...any) core.Frame {
	layout := o.TimeFormat
	if layout == "" {
		layout = DefaultTimeFormat
	}
	n := protocol.Notice{Text: "[" + o.now().Format(layout) + "] " + fmt.Sprintf(format, args...)}
	b, _ := n.MarshalBinary()
	return b
}
