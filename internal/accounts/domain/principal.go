package domain

import "time"

// Principal is the authenticated identity and its authorization flags. It is
// read from the user directory and never mutated by the auth flow.
type Principal struct {
	UserID      string
	Email       string
	IsActive    bool
	IsSuperuser bool
}

// AccessGrant is the result of a successful login.
type AccessGrant struct {
	AccessToken string
	TokenType   string // always "bearer"
	ExpiresIn   time.Duration
	Principal   Principal
}
