package core

import (
	"time"

	"github.com/dkeye/chatrelay/internal/domain"
)

// PublishResult reports delivery stats to the caller of a broadcast.
type PublishResult struct {
	SendTo  int
	Dropped []SessionID
}

// MemberDTO is a read-only view for APIs (no transport fields).
type MemberDTO struct {
	SID      SessionID       `json:"sid"`
	ID       domain.UserID   `json:"id"`
	Username string          `json:"username"`
	Room     domain.RoomName `json:"room"`
	Addr     string          `json:"addr"`
	JoinedAt time.Time       `json:"joined_at"`
}

type RoomInfo struct {
	Name        domain.RoomName `json:"name"`
	MemberCount int             `json:"client_count"`
}
