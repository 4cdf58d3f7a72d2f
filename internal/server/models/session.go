package models

import "time"

// Session is a login session. ID is the sha256 hex digest of the bearer
// token handed to the client; the token itself is never stored.
type Session struct {
	ID        string
	UserID    int64
	ExpiresAt time.Time
	CreatedAt time.Time
}
