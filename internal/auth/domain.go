package auth

import "time"

// User represents an operator account as the auth module sees it.
type User struct {
	ID            string
	Email         string
	DisplayName   string
	PasswordHash  string
	EmailVerified bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
