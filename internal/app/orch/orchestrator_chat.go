package orch

import (
	"github.com/dkeye/chatrelay/internal/core"
	"github.com/rs/zerolog/log"
)

// Chat relays a line to the sender's current room.
func (o *Orchestrator) Chat(sid core.SessionID, text string) (core.PublishResult, error) {
	e, ok := o.Registry.Get(sid)
	if !ok {
		return core.PublishResult{}, ErrNotRegistered
	}
	res := o.Broadcaster.BroadcastToRoom(e.Room, o.notice("%s: %s", e.User.Username, text), o.Echo.Exclude(sid))
	log.Debug().Str("module", "orch").Str("sid", string(sid)).Str("room", string(e.Room)).Int("sent_to", res.SendTo).Msg("chat")
	return res, nil
}

// ShareFile announces a file to the sender's room. Only the announcement is
// relayed; no file content is ever read.
func (o *Orchestrator) ShareFile(sid core.SessionID, filename string, size uint64) (core.PublishResult, error) {
	e, ok := o.Registry.Get(sid)
	if !ok {
		return core.PublishResult{}, ErrNotRegistered
	}
	log.Info().Str("module", "orch").Str("sid", string(sid)).Str("file", filename).Uint64("size", size).Msg("file announced")
	return o.Broadcaster.BroadcastToRoom(e.Room, o.notice("%s shared a file: %s", e.User.Username, filename), sid), nil
}

// Announce sends a server-wide notice to every connected client.
func (o *Orchestrator) Announce(text string) core.PublishResult {
	res := o.Broadcaster.Broadcast(o.notice("[server] %s", text), "")
	log.Info().Str("module", "orch").Int("sent_to", res.SendTo).Msg("server notice")
	return res
}
