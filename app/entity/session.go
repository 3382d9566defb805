package entity

import "time"

// Session is the persisted record backing one refresh token. The raw token is
// never stored; TokenHash binds it to the token's subject and issue time.
type Session struct {
	ID        string
	UserID    string
	DeviceID  string
	TokenHash string
	IPAddress string
	UserAgent string
	Revoked   bool
	ExpiresAt time.Time
	CreatedAt time.Time
}
