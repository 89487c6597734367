package relay

import "errors"

var (
	ErrRoomNotFound = errors.New("room not found")
	ErrRoomFull     = errors.New("room is full")
	ErrRoomTaken    = errors.New("room code already in use")
	ErrNotInRoom    = errors.New("connection is not a member of the room")
	ErrHubStopped   = errors.New("hub stopped")
)
