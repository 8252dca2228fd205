package domain

import "errors"

const (
	DefaultRoom    RoomName = "lobby"
	MaxRoomNameLen          = 36
)

var ErrRoomTooLong = errors.New("room name too long")

type RoomName string

// NormalizeRoom maps the empty name to DefaultRoom.
func NormalizeRoom(raw string) (RoomName, error) {
	if raw == "" {
		return DefaultRoom, nil
	}
	if len(raw) > MaxRoomNameLen {
		return "", ErrRoomTooLong
	}
	return RoomName(raw), nil
}
