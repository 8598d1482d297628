package models

// Notification is an in-app notification delivered on the personal
// notification queue and listed by the notifications endpoint.
type Notification struct {
	ID                     int64     `json:"id"`
	Title                  string    `json:"title"`
	Body                   string    `json:"body"`
	RelativeURL            string    `json:"relativeUrl,omitempty"`
	Read                   bool      `json:"read"`
	CreatedAt              Timestamp `json:"createdAt"`
	ActorUsername          string    `json:"actorUsername,omitempty"`
	ActorProfilePictureURL string    `json:"actorProfilePictureUrl,omitempty"`
}

// Reel is a feed entry. The client only reads feeds; reel CRUD stays on
// the backend.
type Reel struct {
	ID           int64     `json:"id"`
	VideoURL     string    `json:"videoUrl,omitempty"`
	ThumbnailURL string    `json:"thumbnailUrl,omitempty"`
	Author       string    `json:"author,omitempty"`
	SongTitle    string    `json:"songTitle,omitempty"`
	LikeCount    int64     `json:"likeCount"`
	CreatedAt    Timestamp `json:"createdAt"`
}
