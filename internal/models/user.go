package models

// User is a lightweight reference to an account. Rooms and messages point
// at users but never own them.
type User struct {
	Username          string `json:"username"`
	ProfilePictureURL string `json:"profilePictureUrl,omitempty"`
}
