package app

import (
	"errors"
	"sync"
	"time"

	"github.com/dkeye/chatrelay/internal/core"
	"github.com/dkeye/chatrelay/internal/domain"
	"github.com/rs/zerolog/log"
)

var ErrDuplicateSession = errors.New("session already registered")

// ClientEntry is one handshaken connection. Registry methods hand out copies;
// Conn is shared with the owning session.
type ClientEntry struct {
	SID      core.SessionID
	Conn     core.Conn
	User     domain.User
	Room     domain.RoomName
	JoinedAt time.Time
}

func (e ClientEntry) DTO() core.MemberDTO {
	dto := core.MemberDTO{
		SID:      e.SID,
		ID:       e.User.ID,
		Username: e.User.Username,
		Room:     e.Room,
		JoinedAt: e.JoinedAt,
	}
	if e.Conn != nil {
		dto.Addr = e.Conn.RemoteAddr()
	}
	return dto
}

// Registry is the single source of truth for who is connected and in which room.
// One lock guards every mutation and every snapshot; callers never send while
// holding it.
type Registry struct {
	mu      sync.RWMutex
	entries []*ClientEntry
	bySID   map[core.SessionID]*ClientEntry
}

func NewRegistry() *Registry {
	return &Registry{
		bySID: make(map[core.SessionID]*ClientEntry),
	}
}

func (r *Registry) Add(e ClientEntry) error {
	if e.Room == "" {
		e.Room = domain.DefaultRoom
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.bySID[e.SID]; ok {
		return ErrDuplicateSession
	}
	entry := &e
	r.entries = append(r.entries, entry)
	r.bySID[e.SID] = entry
	log.Info().Str("module", "app.registry").Str("sid", string(e.SID)).Str("user", e.User.Username).Str("room", string(e.Room)).Int("clients", len(r.entries)).Msg("added client")
	return nil
}

func (r *Registry) Get(sid core.SessionID) (ClientEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.bySID[sid]; ok {
		return *e, true
	}
	return ClientEntry{}, false
}

func (r *Registry) RoomOf(sid core.SessionID) (domain.RoomName, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.bySID[sid]
	if !ok {
		return "", false
	}
	return e.Room, true
}

// UpdateRoom moves sid to newRoom and reports the room it left.
func (r *Registry) UpdateRoom(sid core.SessionID, newRoom domain.RoomName) (domain.RoomName, bool) {
	if newRoom == "" {
		newRoom = domain.DefaultRoom
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.bySID[sid]
	if !ok {
		return "", false
	}
	old := e.Room
	e.Room = newRoom
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("from", string(old)).Str("room", string(newRoom)).Msg("updated room")
	return old, true
}

// Remove deletes sid and returns the removed entry. Only the first of several
// concurrent removers gets ok == true.
func (r *Registry) Remove(sid core.SessionID) (ClientEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.bySID[sid]
	if !ok {
		return ClientEntry{}, false
	}
	delete(r.bySID, sid)
	for i, cur := range r.entries {
		if cur == e {
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			break
		}
	}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("user", e.User.Username).Int("clients", len(r.entries)).Msg("removed client")
	return *e, true
}

// MembersOfRoom returns the entries of room in registration order.
func (r *Registry) MembersOfRoom(room domain.RoomName) []ClientEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ClientEntry, 0, len(r.entries))
	for _, e := range r.entries {
		if e.Room == room {
			out = append(out, *e)
		}
	}
	return out
}

func (r *Registry) Snapshot() []ClientEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ClientEntry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, *e)
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Rooms lists occupied rooms in order of their oldest member.
func (r *Registry) Rooms() []core.RoomInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	idx := make(map[domain.RoomName]int)
	out := make([]core.RoomInfo, 0)
	for _, e := range r.entries {
		i, ok := idx[e.Room]
		if !ok {
			i = len(out)
			idx[e.Room] = i
			out = append(out, core.RoomInfo{Name: e.Room})
		}
		out[i].MemberCount++
	}
	return out
}
