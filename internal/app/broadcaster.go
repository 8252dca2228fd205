package app

import (
	"github.com/dkeye/chatrelay/internal/core"
	"github.com/dkeye/chatrelay/internal/domain"
	"github.com/rs/zerolog/log"
)

// DropFunc is called once for every recipient evicted after a failed send,
// after its entry is removed and its connection closed.
type DropFunc func(entry ClientEntry, err error)

// Broadcaster fans frames out to registry entries. Recipients are snapshotted
// under the registry lock and sent to outside of it.
type Broadcaster struct {
	reg    *Registry
	onDrop DropFunc
}

func NewBroadcaster(reg *Registry) *Broadcaster {
	return &Broadcaster{reg: reg}
}

func (b *Broadcaster) OnDrop(fn DropFunc) {
	b.onDrop = fn
}

// BroadcastToRoom delivers frame to every member of room except exclude.
// Pass an empty exclude to include everyone.
func (b *Broadcaster) BroadcastToRoom(room domain.RoomName, frame core.Frame, exclude core.SessionID) core.PublishResult {
	res := b.deliver(b.reg.MembersOfRoom(room), frame, exclude)
	log.Debug().Str("module", "app.broadcast").Str("room", string(room)).Str("from", string(exclude)).Int("sent_to", res.SendTo).Int("dropped", len(res.Dropped)).Msg("room broadcast result")
	return res
}

// Broadcast delivers frame to every connected entry regardless of room.
func (b *Broadcaster) Broadcast(frame core.Frame, exclude core.SessionID) core.PublishResult {
	res := b.deliver(b.reg.Snapshot(), frame, exclude)
	log.Debug().Str("module", "app.broadcast").Int("sent_to", res.SendTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}

// SendTo delivers frame to a single session, evicting it on failure.
func (b *Broadcaster) SendTo(sid core.SessionID, frame core.Frame) bool {
	e, ok := b.reg.Get(sid)
	if !ok {
		return false
	}
	return b.deliver([]ClientEntry{e}, frame, "").SendTo == 1
}

func (b *Broadcaster) deliver(recipients []ClientEntry, frame core.Frame, exclude core.SessionID) core.PublishResult {
	res := core.PublishResult{}
	var failed []error
	for _, e := range recipients {
		if exclude != "" && e.SID == exclude {
			continue
		}
		if err := e.Conn.TrySend(frame); err != nil {
			res.Dropped = append(res.Dropped, e.SID)
			failed = append(failed, err)
			continue
		}
		res.SendTo++
	}

	// Eviction happens after the whole snapshot was served.
	for i, sid := range res.Dropped {
		b.evict(sid, failed[i])
	}
	return res
}

func (b *Broadcaster) evict(sid core.SessionID, cause error) {
	e, ok := b.reg.Remove(sid)
	if !ok {
		return
	}
	log.Warn().Err(cause).Str("module", "app.broadcast").Str("sid", string(sid)).Str("user", e.User.Username).Msg("send failed, dropping client")
	e.Conn.Close()
	if b.onDrop != nil {
		b.onDrop(e, cause)
	}
}
