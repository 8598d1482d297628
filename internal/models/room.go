package models

import "github.com/google/uuid"

// RoomType distinguishes two-party chats from multi-party groups. Consumers
// switch exhaustively on it; there is no third variant.
type RoomType string

const (
	RoomPrivate RoomType = "PRIVATE"
	RoomGroup   RoomType = "GROUP"
)

// Room is a chat conversation container. Created server-side; the client
// receives snapshots through the room list endpoint and keeps LastMessage
// current as messages arrive.
type Room struct {
	ID           uuid.UUID `json:"id"`
	Type         RoomType  `json:"type"`
	Name         string    `json:"name,omitempty"`
	CreatedAt    Timestamp `json:"createdAt"`
	Participants []User    `json:"participants"`
	LastMessage  *Message  `json:"lastMessage,omitempty"`
}

// Partner returns the other participant of a private room. The second
// return is false for group rooms or malformed participant sets.
func (r Room) Partner(self string) (User, bool) {
	if r.Type != RoomPrivate {
		return User{}, false
	}
	for _, p := range r.Participants {
		if p.Username != self {
			return p, true
		}
	}
	return User{}, false
}

// DisplayName resolves what a room is called from the viewer's side:
// group rooms use their name, private rooms the partner's username.
func (r Room) DisplayName(self string) string {
	switch r.Type {
	case RoomGroup:
		return r.Name
	case RoomPrivate:
		if partner, ok := r.Partner(self); ok {
			return partner.Username
		}
	}
	return r.Name
}
