package models

import (
	"time"

	"github.com/google/uuid"
)

// TombstoneContent replaces the content of a deleted message. Deleted
// messages keep their position and timestamp in history.
const TombstoneContent = "[Wiadomość usunięta]"

// ReelRef is the reel attachment carried by a shared-reel message.
type ReelRef struct {
	ID           int64  `json:"id"`
	ThumbnailURL string `json:"thumbnailUrl,omitempty"`
	Author       string `json:"author,omitempty"`
	SongTitle    string `json:"songTitle,omitempty"`
}

// Message is a chat message. Immutable once delivered except for content
// and the edited flag via an explicit edit, or tombstoning via delete.
type Message struct {
	ID        uuid.UUID `json:"id"`
	RoomID    uuid.UUID `json:"chatRoomId"`
	Content   string    `json:"content"`
	Timestamp Timestamp `json:"timestamp"`
	Edited    bool      `json:"edited"`
	Sender    User      `json:"sender"`
	Reel      *ReelRef  `json:"reel,omitempty"`
}

// Deleted reports whether the message has been tombstoned.
func (m Message) Deleted() bool {
	return m.Content == TombstoneContent && m.Reel == nil
}

// displayGroupGap is the largest spacing between two consecutive messages
// from the same sender that still renders as one visual group.
const displayGroupGap = 10 * time.Minute

// GroupedWith reports whether m belongs to the same display group as the
// message preceding it. Renderers collapse the avatar and insert a time
// divider when this is false.
func (m Message) GroupedWith(prev Message) bool {
	if m.Sender.Username != prev.Sender.Username {
		return false
	}
	return m.Timestamp.Sub(prev.Timestamp.Time) <= displayGroupGap
}

// UpdateType tags a room update arriving on the chat-updates queue.
type UpdateType string

const (
	UpdateEdit   UpdateType = "EDIT"
	UpdateDelete UpdateType = "DELETE"
)

// RoomUpdate is broadcast to participants when a message is edited or
// deleted. The embedded message is the authoritative post-mutation state.
type RoomUpdate struct {
	Type    UpdateType `json:"type"`
	RoomID  uuid.UUID  `json:"chatRoomId"`
	Message Message    `json:"message"`
}
