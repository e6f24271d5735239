package jwtx_test

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/accounts/pkg/jwtx"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const exampleIssuer = "https://accounts.example.com"

var (
	testSecret  = []byte("0123456789abcdef0123456789abcdef")
	otherSecret = []byte("fedcba9876543210fedcba9876543210")
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newCodec(t *testing.T, secret []byte, clk *clock) *jwtx.Codec {
	t.Helper()
	cfg := jwtx.CodecConfig{Secret: secret, Issuer: exampleIssuer}
	if clk != nil {
		cfg.Now = clk.Now
	}
	c, err := jwtx.NewCodec(cfg)
	require.NoError(t, err)
	return c
}

func TestNewCodec_RejectsShortSecret(t *testing.T) {
	_, err := jwtx.NewCodec(jwtx.CodecConfig{Secret: []byte("short")})
	require.ErrorIs(t, err, jwtx.ErrWeakSecret)
}

func TestAccessToken_RoundTrip(t *testing.T) {
	c := newCodec(t, testSecret, nil)

	token, err := c.IssueAccessToken("42", 8*time.Minute)
	require.NoError(t, err)
	require.Len(t, strings.Split(token, "."), 3)

	sub, err := c.DecodeAccessToken(token)
	require.NoError(t, err)
	require.Equal(t, "42", sub)
}

func TestAccessToken_ExpiresWithClock(t *testing.T) {
	clk := &clock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	c := newCodec(t, testSecret, clk)

	token, err := c.IssueAccessToken("42", 8*time.Minute)
	require.NoError(t, err)

	sub, err := c.DecodeAccessToken(token)
	require.NoError(t, err)
	require.Equal(t, "42", sub)

	clk.Advance(7 * time.Minute)
	_, err = c.DecodeAccessToken(token)
	require.NoError(t, err)

	clk.Advance(time.Minute + time.Second)
	_, err = c.DecodeAccessToken(token)
	require.ErrorIs(t, err, jwtx.ErrInvalidToken)
}

func TestAccessToken_NegativeTTL(t *testing.T) {
	c := newCodec(t, testSecret, nil)

	token, err := c.IssueAccessToken("42", -time.Second)
	require.NoError(t, err)

	_, err = c.DecodeAccessToken(token)
	require.ErrorIs(t, err, jwtx.ErrInvalidToken)
}

func TestAccessToken_WrongKey(t *testing.T) {
	issuer := newCodec(t, testSecret, nil)
	verifier := newCodec(t, otherSecret, nil)

	token, err := issuer.IssueAccessToken("42", time.Hour)
	require.NoError(t, err)

	_, err = verifier.DecodeAccessToken(token)
	require.ErrorIs(t, err, jwtx.ErrInvalidToken)
}

func TestAccessToken_WrongIssuer(t *testing.T) {
	a := newCodec(t, testSecret, nil)
	b, err := jwtx.NewCodec(jwtx.CodecConfig{Secret: testSecret, Issuer: "someone-else"})
	require.NoError(t, err)

	token, err := a.IssueAccessToken("42", time.Hour)
	require.NoError(t, err)

	_, err = b.DecodeAccessToken(token)
	require.ErrorIs(t, err, jwtx.ErrInvalidToken)
}

func TestAccessToken_Rejections(t *testing.T) {
	c := newCodec(t, testSecret, nil)
	now := time.Now()

	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, jwtx.AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    exampleIssuer,
			Subject:   "42",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
		Purpose: jwtx.PurposeAccess,
	}).SignedString(testSecret)
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwtx.AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    exampleIssuer,
			Subject:   "42",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
		Purpose: jwtx.PurposeAccess,
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwtx.AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   exampleIssuer,
			Subject:  "42",
			IssuedAt: jwt.NewNumericDate(now),
		},
		Purpose: jwtx.PurposeAccess,
	}).SignedString(testSecret)
	require.NoError(t, err)

	noSub, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwtx.AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    exampleIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
		Purpose: jwtx.PurposeAccess,
	}).SignedString(testSecret)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not.a.token"},
		{"two segments", "abc.def"},
		{"wrong algorithm", hs512},
		{"alg none", none},
		{"missing exp", noExp},
		{"missing subject", noSub},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub, err := c.DecodeAccessToken(tt.token)
			require.ErrorIs(t, err, jwtx.ErrInvalidToken)
			require.Empty(t, sub)
		})
	}
}

func TestAccessToken_TamperedSignature(t *testing.T) {
	c := newCodec(t, testSecret, nil)

	token, err := c.IssueAccessToken("42", time.Hour)
	require.NoError(t, err)

	_, err = c.DecodeAccessToken(tamper(token))
	require.ErrorIs(t, err, jwtx.ErrInvalidToken)
}

func TestResetToken_RoundTrip(t *testing.T) {
	c := newCodec(t, testSecret, nil)

	token, err := c.IssueResetToken("user@example.com", time.Hour)
	require.NoError(t, err)

	sub, ok := c.DecodeResetToken(token)
	require.True(t, ok)
	require.Equal(t, "user@example.com", sub)
}

func TestResetToken_CarriesNotBefore(t *testing.T) {
	clk := &clock{now: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}
	c := newCodec(t, testSecret, clk)

	token, err := c.IssueResetToken("42", time.Hour)
	require.NoError(t, err)

	var claims jwtx.ResetClaims
	_, _, err = jwt.NewParser().ParseUnverified(token, &claims)
	require.NoError(t, err)
	require.NotNil(t, claims.NotBefore)
	require.True(t, claims.NotBefore.Time.Equal(clk.Now()))
	require.Nil(t, claims.IssuedAt)
	require.Equal(t, jwtx.PurposePasswordReset, claims.Purpose)
}

func TestResetToken_Failures(t *testing.T) {
	clk := &clock{now: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}
	c := newCodec(t, testSecret, clk)
	other := newCodec(t, otherSecret, clk)

	valid, err := c.IssueResetToken("42", time.Hour)
	require.NoError(t, err)
	foreign, err := other.IssueResetToken("42", time.Hour)
	require.NoError(t, err)
	expired, err := c.IssueResetToken("42", -time.Second)
	require.NoError(t, err)

	for name, token := range map[string]string{
		"empty":    "",
		"garbage":  "garbage",
		"tampered": tamper(valid),
		"foreign":  foreign,
		"expired":  expired,
	} {
		t.Run(name, func(t *testing.T) {
			var (
				sub string
				ok  bool
			)
			require.NotPanics(t, func() { sub, ok = c.DecodeResetToken(token) })
			require.False(t, ok)
			require.Empty(t, sub)
		})
	}

	clk.Advance(time.Hour + time.Second)
	_, ok := c.DecodeResetToken(valid)
	require.False(t, ok, "reset token should expire")
}

func TestCrossPurposeRejection(t *testing.T) {
	c := newCodec(t, testSecret, nil)

	access, err := c.IssueAccessToken("42", time.Hour)
	require.NoError(t, err)
	reset, err := c.IssueResetToken("42", time.Hour)
	require.NoError(t, err)

	_, ok := c.DecodeResetToken(access)
	require.False(t, ok, "access token must not decode as reset token")

	_, err = c.DecodeAccessToken(reset)
	require.ErrorIs(t, err, jwtx.ErrInvalidToken, "reset token must not decode as access token")
}

func TestCrossPurpose_SameKeyDifferentShape(t *testing.T) {
	// Even signed with the access key, a reset-shaped payload is refused.
	c := newCodec(t, testSecret, nil)
	now := time.Now()

	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwtx.ResetClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    exampleIssuer,
			Subject:   "42",
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
		Purpose: jwtx.PurposePasswordReset,
	}).SignedString(testSecret)
	require.NoError(t, err)

	_, err = c.DecodeAccessToken(forged)
	require.ErrorIs(t, err, jwtx.ErrInvalidToken)
}

func TestIssue_EmptySubject(t *testing.T) {
	c := newCodec(t, testSecret, nil)

	_, err := c.IssueAccessToken("", time.Hour)
	require.ErrorIs(t, err, jwtx.ErrMissingSubject)

	_, err = c.IssueResetToken("", time.Hour)
	require.ErrorIs(t, err, jwtx.ErrMissingSubject)
}

// tamper flips one character in the middle of the signature segment.
func tamper(token string) string {
	dot := strings.LastIndex(token, ".")
	sig := []byte(token[dot+1:])
	i := len(sig) / 2
	if sig[i] == 'A' {
		sig[i] = 'B'
	} else {
		sig[i] = 'A'
	}
	return token[:dot+1] + string(sig)
}
