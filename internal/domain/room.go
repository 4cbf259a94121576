package domain

import (
	"fmt"
	"math/rand/v2"
)

const DefaultRoomPrefix = "my-room"

type RoomName string

// NewRoomHint picks one of a small pool of rooms, as agents are dispatched per room.
func NewRoomHint(prefix string) RoomName {
	if prefix == "" {
		prefix = DefaultRoomPrefix
	}
	return RoomName(fmt.Sprintf("%s%d", prefix, rand.IntN(100)))
}
