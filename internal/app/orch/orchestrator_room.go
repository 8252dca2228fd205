package orch

import (
	"fmt"

	"github.com/dkeye/chatrelay/internal/core"
	"github.com/dkeye/chatrelay/internal/domain"
	"github.com/rs/zerolog/log"
)

// Move changes the room of sid. Moving to the current room is a no-op.
func (o *Orchestrator) Move(sid core.SessionID, toRoomName string) (domain.RoomName, error) {
	to, err := domain.NormalizeRoom(toRoomName)
	if err != nil {
		return "", fmt.Errorf("room %q: %w", toRoomName, err)
	}

	e, ok := o.Registry.Get(sid)
	if !ok {
		return "", ErrNotRegistered
	}
	if e.Room == to {
		o.Tell(sid, "You are already in room %s", to)
		return to, nil
	}

	from, ok := o.Registry.UpdateRoom(sid, to)
	if !ok {
		return "", ErrNotRegistered
	}

	log.Info().Str("module", "orch").Str("sid", string(sid)).Str("user", e.User.Username).Str("from_room", string(from)).Str("room", string(to)).Msg("moved")
	o.Broadcaster.BroadcastToRoom(from, o.notice("%s left the room %s", e.User.Username, from), sid)
	o.Broadcaster.BroadcastToRoom(to, o.notice("%s joined the room %s", e.User.Username, to), sid)
	o.Tell(sid, "You are now in room %s", to)
	return to, nil
}

// Rooms lists occupied rooms with their member counts.
func (o *Orchestrator) Rooms() []core.RoomInfo {
	return o.Registry.Rooms()
}

func (o *Orchestrator) Members(room domain.RoomName) []core.MemberDTO {
	entries := o.Registry.MembersOfRoom(room)
	out := make([]core.MemberDTO, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.DTO())
	}
	return out
}
