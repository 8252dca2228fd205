package app

import (
	"errors"
	"testing"

	"github.com/dkeye/chatrelay/internal/core"
	"github.com/dkeye/chatrelay/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRoom(t *testing.T, entries ...ClientEntry) (*Registry, *Broadcaster) {
	t.Helper()
	reg := NewRegistry()
	for _, e := range entries {
		require.NoError(t, reg.Add(e))
	}
	return reg, NewBroadcaster(reg)
}

func connOf(t *testing.T, reg *Registry, sid core.SessionID) *fakeConn {
	t.Helper()
	e, ok := reg.Get(sid)
	require.True(t, ok)
	return e.Conn.(*fakeConn)
}

func TestBroadcastToRoom_ScopedAndExcludesSender(t *testing.T) {
	t.Parallel()

	a, b, c := entry("a", "alice", "lobby"), entry("b", "bob", "lobby"), entry("c", "carol", "games")
	reg, bc := setupRoom(t, a, b, c)

	res := bc.BroadcastToRoom("lobby", core.Frame("hello"), "a")

	assert.Equal(t, 1, res.SendTo)
	assert.Empty(t, res.Dropped)
	assert.Empty(t, connOf(t, reg, "a").sent())
	assert.Equal(t, []core.Frame{core.Frame("hello")}, connOf(t, reg, "b").sent())
	assert.Empty(t, connOf(t, reg, "c").sent())
}

func TestBroadcastToRoom_NoExclusion(t *testing.T) {
	t.Parallel()

	reg, bc := setupRoom(t, entry("a", "alice", "lobby"), entry("b", "bob", "lobby"))

	res := bc.BroadcastToRoom("lobby", core.Frame("x"), "")
	assert.Equal(t, 2, res.SendTo)
	assert.Len(t, connOf(t, reg, "a").sent(), 1)
}

func TestBroadcastToRoom_SendFailureIsolated(t *testing.T) {
	t.Parallel()

	a, x, c := entry("a", "alice", "lobby"), entry("x", "xavier", "lobby"), entry("c", "carol", "lobby")
	x.Conn.(*fakeConn).err = core.ErrBackpressure
	reg, bc := setupRoom(t, a, x, c)

	var dropped []ClientEntry
	var causes []error
	bc.OnDrop(func(e ClientEntry, err error) {
		dropped = append(dropped, e)
		causes = append(causes, err)
	})

	res := bc.BroadcastToRoom("lobby", core.Frame("hi"), "")

	assert.Equal(t, 2, res.SendTo)
	assert.Equal(t, []core.SessionID{"x"}, res.Dropped)
	assert.Len(t, connOf(t, reg, "a").sent(), 1)
	assert.Len(t, connOf(t, reg, "c").sent(), 1)

	_, ok := reg.Get("x")
	assert.False(t, ok, "failed recipient must be removed")
	assert.True(t, x.Conn.(*fakeConn).isClosed())

	require.Len(t, dropped, 1)
	assert.Equal(t, "xavier", dropped[0].User.Username)
	assert.Equal(t, domain.RoomName("lobby"), dropped[0].Room)
	assert.True(t, errors.Is(causes[0], core.ErrBackpressure))
}

func TestBroadcastToRoom_DropCallbackMayBroadcast(t *testing.T) {
	t.Parallel()

	a, x := entry("a", "alice", "lobby"), entry("x", "xavier", "lobby")
	x.Conn.(*fakeConn).err = core.ErrConnClosed
	reg, bc := setupRoom(t, a, x)

	bc.OnDrop(func(e ClientEntry, _ error) {
		bc.BroadcastToRoom(e.Room, core.Frame(e.User.Username+" left"), "")
	})

	bc.BroadcastToRoom("lobby", core.Frame("hi"), "")

	assert.Equal(t, []core.Frame{core.Frame("hi"), core.Frame("xavier left")}, connOf(t, reg, "a").sent())
	assert.Equal(t, 1, reg.Len())
}

func TestBroadcast_AllRooms(t *testing.T) {
	t.Parallel()

	reg, bc := setupRoom(t, entry("a", "alice", "lobby"), entry("b", "bob", "games"), entry("c", "carol", "music"))

	res := bc.Broadcast(core.Frame("maintenance"), "")
	assert.Equal(t, 3, res.SendTo)
	for _, sid := range []core.SessionID{"a", "b", "c"} {
		assert.Equal(t, []core.Frame{core.Frame("maintenance")}, connOf(t, reg, sid).sent())
	}
}

func TestSendTo(t *testing.T) {
	t.Parallel()

	reg, bc := setupRoom(t, entry("a", "alice", "lobby"), entry("b", "bob", "lobby"))

	assert.True(t, bc.SendTo("a", core.Frame("private")))
	assert.False(t, bc.SendTo("missing", core.Frame("private")))
	assert.Len(t, connOf(t, reg, "a").sent(), 1)
	assert.Empty(t, connOf(t, reg, "b").sent())
}

func TestEchoPolicy(t *testing.T) {
	t.Parallel()

	assert.Equal(t, core.SessionID("s"), EchoPolicyFor(false).Exclude("s"))
	assert.Equal(t, core.SessionID(""), EchoPolicyFor(true).Exclude("s"))
}
