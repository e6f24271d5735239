package domain

import (
	"errors"
	"net/mail"
	"strings"
	"time"
)

// MinPasswordLength is enforced on every password set through the API.
const MinPasswordLength = 8

var (
	ErrInvalidEmail  = errors.New("invalid email address")
	ErrWeakPassword  = errors.New("password too short")
	ErrEmptyPassword = errors.New("password required")
)

type User struct {
	ID           string
	Email        string
	PasswordHash string // argon2id PHC string, or bcrypt for legacy rows
	FirstName    string
	LastName     string
	PhoneNumber  string
	IsActive     bool
	IsSuperuser  bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// FullName joins first and last name, skipping blanks.
func (u User) FullName() string {
	return strings.TrimSpace(strings.Join([]string{u.FirstName, u.LastName}, " "))
}

// Principal returns the read-only authorization view of u.
func (u User) Principal() Principal {
	return Principal{
		UserID:      u.ID,
		Email:       u.Email,
		IsActive:    u.IsActive,
		IsSuperuser: u.IsSuperuser,
	}
}

// NewUser is the input for creating an account.
type NewUser struct {
	Email       string
	Password    string
	FirstName   string
	LastName    string
	PhoneNumber string
	IsActive    bool
	IsSuperuser bool
}

// UserUpdate is a partial update. A nil field is left untouched.
type UserUpdate struct {
	Email       *string
	Password    *string
	FirstName   *string
	LastName    *string
	PhoneNumber *string
	IsActive    *bool
	IsSuperuser *bool
}

// UserChanges is what the store applies: a UserUpdate with the password
// already hashed.
type UserChanges struct {
	Email        *string
	PasswordHash *string
	FirstName    *string
	LastName     *string
	PhoneNumber  *string
	IsActive     *bool
	IsSuperuser  *bool
}

// IsEmpty reports whether c changes nothing.
func (c UserChanges) IsEmpty() bool {
	return c.Email == nil && c.PasswordHash == nil && c.FirstName == nil &&
		c.LastName == nil && c.PhoneNumber == nil && c.IsActive == nil && c.IsSuperuser == nil
}

// Apply returns u with c applied. UpdatedAt is left to the caller.
func (c UserChanges) Apply(u User) User {
	if c.Email != nil {
		u.Email = *c.Email
	}
	if c.PasswordHash != nil {
		u.PasswordHash = *c.PasswordHash
	}
	if c.FirstName != nil {
		u.FirstName = *c.FirstName
	}
	if c.LastName != nil {
		u.LastName = *c.LastName
	}
	if c.PhoneNumber != nil {
		u.PhoneNumber = *c.PhoneNumber
	}
	if c.IsActive != nil {
		u.IsActive = *c.IsActive
	}
	if c.IsSuperuser != nil {
		u.IsSuperuser = *c.IsSuperuser
	}
	return u
}

// NormalizeEmail validates an address and returns its lower-cased bare form.
func NormalizeEmail(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ErrInvalidEmail
	}
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return "", ErrInvalidEmail
	}
	return strings.ToLower(addr.Address), nil
}

// ValidatePassword applies the password policy.
func ValidatePassword(p string) error {
	if p == "" {
		return ErrEmptyPassword
	}
	if len([]rune(p)) < MinPasswordLength {
		return ErrWeakPassword
	}
	return nil
}
