package domain

import "time"

// Credential is the short-lived access token minted for one room/identity pair.
type Credential struct {
	Token     string
	Identity  Identity
	Room      RoomName
	ExpiresAt time.Time
}
