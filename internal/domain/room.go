package domain

import "github.com/google/uuid"

type (
	RoomName string
	RoomID   string
)

const MaxRoomNameLen = 36

type Room struct {
	ID   RoomID
	Name RoomName
}

func NewRoom(name RoomName) *Room {
	if len(name) > MaxRoomNameLen {
		name = name[:MaxRoomNameLen]
	}
	return &Room{ID: RoomID(uuid.NewString()), Name: name}
}
