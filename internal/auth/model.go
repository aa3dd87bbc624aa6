package auth

import "time"

// User mirrors a row in the users table. PasswordHash never leaves
// this package in a response body.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// Claims is the payload carried inside a bearer token: the user it
// was issued to and when it stops being usable.
type Claims struct {
	UserID    int64
	ExpiresAt time.Time
}
