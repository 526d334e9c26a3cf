package models

import "time"

// RefreshToken is a server-stored session refresh token.
type RefreshToken struct {
	ID        string
	AccountID string
	Token     string
	Expires   time.Time
	CreatedAt time.Time
}
