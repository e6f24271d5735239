package accountsdk

import (
	"time"
)

// expiryBuffer is subtracted from the server-reported lifetime so a token
// is not used in the last moments before it expires.
const expiryBuffer = 30 * time.Second

// Session is an authenticated session holding a bearer access token. It is
// immutable and safe for concurrent use.
type Session struct {
	client      *Client
	accessToken string
	expiresAt   time.Time
}

func newSession(client *Client, tokenResp *TokenResponse) *Session {
	var expiresAt time.Time
	if tokenResp.ExpiresIn > 0 {
		expiresAt = time.Now().Add(time.Duration(tokenResp.ExpiresIn)*time.Second - expiryBuffer)
	}
	return &Session{
		client:      client,
		accessToken: tokenResp.AccessToken,
		expiresAt:   expiresAt,
	}
}

// AccessToken returns the bearer token.
func (s *Session) AccessToken() string { return s.accessToken }

// ExpiresAt is when the client stops using the token. Zero means unknown.
func (s *Session) ExpiresAt() time.Time { return s.expiresAt }

// Expired reports whether the token is past its expiry.
func (s *Session) Expired() bool {
	return !s.expiresAt.IsZero() && !time.Now().Before(s.expiresAt)
}
