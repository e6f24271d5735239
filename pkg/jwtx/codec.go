package jwtx

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/hkdf"
)

// MinSecretLength is the shortest accepted HS256 secret in bytes.
const MinSecretLength = 32

const resetKeyInfo = "accounts/password-reset/v1"

var (
	// ErrInvalidToken is the only error DecodeAccessToken exposes for
	// matching. The wrapped cause is for logs.
	ErrInvalidToken = errors.New("jwtx: invalid token")

	ErrWeakSecret      = errors.New("jwtx: secret too short")
	ErrPurposeMismatch = errors.New("jwtx: token purpose mismatch")
	ErrMissingSubject  = errors.New("jwtx: missing subject")
	ErrInvalidClaim    = errors.New("jwtx: invalid claims")
)

// CodecConfig configures a Codec.
type CodecConfig struct {
	// Secret is the server-held HS256 key. Access tokens are signed with it
	// directly; reset tokens with a subkey derived from it.
	Secret []byte

	// Issuer is written to "iss" and, when non-empty, required on decode.
	Issuer string

	// Leeway tolerates clock skew on exp/nbf/iat.
	Leeway time.Duration

	// Now overrides the clock. Defaults to time.Now.
	Now func() time.Time
}

// Codec issues and decodes HS256 signed access and password reset tokens.
// It is immutable after construction and safe for concurrent use.
type Codec struct {
	accessKey []byte
	resetKey  []byte
	issuer    string
	leeway    time.Duration
	now       func() time.Time
}

// NewCodec validates cfg and derives the reset subkey.
func NewCodec(cfg CodecConfig) (*Codec, error) {
	if len(cfg.Secret) < MinSecretLength {
		return nil, fmt.Errorf("%w: need %d bytes, got %d", ErrWeakSecret, MinSecretLength, len(cfg.Secret))
	}

	resetKey := make([]byte, 32)
	kdf := hkdf.New(sha256.New, cfg.Secret, nil, []byte(resetKeyInfo))
	if _, err := io.ReadFull(kdf, resetKey); err != nil {
		return nil, fmt.Errorf("jwtx: derive reset key: %w", err)
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	accessKey := make([]byte, len(cfg.Secret))
	copy(accessKey, cfg.Secret)

	return &Codec{
		accessKey: accessKey,
		resetKey:  resetKey,
		issuer:    cfg.Issuer,
		leeway:    cfg.Leeway,
		now:       now,
	}, nil
}

// IssueAccessToken signs a bearer token for subject valid for ttl.
func (c *Codec) IssueAccessToken(subject string, ttl time.Duration) (string, error) {
	if subject == "" {
		return "", ErrMissingSubject
	}
	claims := newAccessClaims(subject, c.issuer, c.now().UTC(), ttl)
	return c.sign(claims, c.accessKey)
}

// DecodeAccessToken verifies signature, algorithm, expiry and purpose and
// returns the subject. Every failure matches ErrInvalidToken.
func (c *Codec) DecodeAccessToken(tokenStr string) (string, error) {
	var claims AccessClaims
	if err := c.parse(tokenStr, &claims, c.accessKey); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims.Subject, nil
}

// IssueResetToken signs a single-purpose password reset token for subject.
// It carries nbf set to the issue time and is signed with the reset subkey.
func (c *Codec) IssueResetToken(subject string, ttl time.Duration) (string, error) {
	if subject == "" {
		return "", ErrMissingSubject
	}
	claims := newResetClaims(subject, c.issuer, c.now().UTC(), ttl)
	return c.sign(claims, c.resetKey)
}

// DecodeResetToken returns the subject of a valid reset token. Any failure,
// including an access token presented here, yields ("", false).
func (c *Codec) DecodeResetToken(tokenStr string) (string, bool) {
	var claims ResetClaims
	if err := c.parse(tokenStr, &claims, c.resetKey); err != nil {
		return "", false
	}
	return claims.Subject, true
}

func (c *Codec) sign(claims jwt.Claims, key []byte) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := t.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("jwtx: sign: %w", err)
	}
	return s, nil
}

func (c *Codec) parse(tokenStr string, claims jwt.Claims, key []byte) error {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.now),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(c.leeway),
	}
	if c.issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.issuer))
	}

	parser := jwt.NewParser(opts...)
	token, err := parser.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("jwtx: unexpected signing method %v", t.Header["alg"])
		}
		return key, nil
	})
	if err != nil {
		return err
	}
	if !token.Valid {
		return ErrInvalidClaim
	}
	return nil
}
