package entity

import "time"

type VerificationType string

const (
	VerificationPasswordReset VerificationType = "password_reset"
	VerificationEmail         VerificationType = "email_verification"
)

// VerificationToken is a single-use out-of-band token record. At most one
// unused token exists per (user, type); Used only ever flips false to true.
type VerificationToken struct {
	ID        string
	UserID    string
	TokenHash string
	TokenType VerificationType
	ExpiresAt time.Time
	Used      bool
	CreatedAt time.Time
}
