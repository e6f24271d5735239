package jwtx

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Default token lifetimes.
const (
	// DefaultAccessTokenTTL is the lifetime of a login token (8 days).
	DefaultAccessTokenTTL = 8 * 24 * time.Hour

	// DefaultResetTokenTTL is the lifetime of a password reset link.
	DefaultResetTokenTTL = 3 * time.Hour
)

// Token purposes carried in the "purpose" claim.
const (
	PurposeAccess        = "access"
	PurposePasswordReset = "password_reset"
)

// AccessClaims are carried by bearer tokens: {sub, iat, exp} plus the
// issuer and purpose. They never carry nbf.
type AccessClaims struct {
	jwt.RegisteredClaims

	Purpose string `json:"purpose"`
}

// Validate is called by the jwt parser after the registered claims checks.
func (c AccessClaims) Validate() error {
	if c.Purpose != PurposeAccess {
		return ErrPurposeMismatch
	}
	if c.Subject == "" {
		return ErrMissingSubject
	}
	if c.IssuedAt == nil {
		return ErrInvalidClaim
	}
	if c.NotBefore != nil {
		return ErrPurposeMismatch
	}
	return nil
}

// ResetClaims are carried by password reset tokens: {sub, nbf, exp} plus the
// issuer and purpose.
type ResetClaims struct {
	jwt.RegisteredClaims

	Purpose string `json:"purpose"`
}

// Validate is called by the jwt parser after the registered claims checks.
func (c ResetClaims) Validate() error {
	if c.Purpose != PurposePasswordReset {
		return ErrPurposeMismatch
	}
	if c.Subject == "" {
		return ErrMissingSubject
	}
	if c.NotBefore == nil {
		return ErrPurposeMismatch
	}
	return nil
}

func newAccessClaims(subject, issuer string, now time.Time, ttl time.Duration) AccessClaims {
	return AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Purpose: PurposeAccess,
	}
}

func newResetClaims(subject, issuer string, now time.Time, ttl time.Duration) ResetClaims {
	return ResetClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Purpose: PurposePasswordReset,
	}
}
