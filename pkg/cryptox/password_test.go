package cryptox

import (
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newTestHasher(t *testing.T) *PasswordHasher {
	t.Helper()
	pepper, err := LoadOrGeneratePepper(filepath.Join(t.TempDir(), "pepper"))
	require.NoError(t, err)
	return NewPasswordHasher(HasherConfig{Pepper: pepper})
}

func TestHash(t *testing.T) {
	h := newTestHasher(t)

	tests := []struct {
		name     string
		password string
	}{
		{"simple password", "password123"},
		{"complex password", "P@ssw0rd!#$%^&*()"},
		{"long password", strings.Repeat("a", 100)},
		{"empty password", ""},
		{"unicode password", "пароль🔒密码"},
		{"whitespace password", "   spaces   "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash, err := h.Hash(tt.password)
			require.NoError(t, err)
			require.True(t, strings.HasPrefix(hash, "$argon2id$v=19$"), "hash should be in PHC format")

			parts := strings.Split(hash, "$")
			require.Len(t, parts, 6, "PHC hash should have 6 parts")
			require.Equal(t, "m=19456,t=2,p=1", parts[3])
			require.NotEmpty(t, parts[4], "salt should not be empty")
			require.NotEmpty(t, parts[5], "hash should not be empty")

			require.True(t, h.Verify(tt.password, hash))
		})
	}
}

func TestHash_UniqueSalts(t *testing.T) {
	h := newTestHasher(t)
	password := "samepassword"

	hash1, err := h.Hash(password)
	require.NoError(t, err)
	hash2, err := h.Hash(password)
	require.NoError(t, err)

	require.NotEqual(t, hash1, hash2, "hashes should differ due to unique salts")
	require.True(t, h.Verify(password, hash1))
	require.True(t, h.Verify(password, hash2))
}

func TestVerify_WrongPassword(t *testing.T) {
	h := newTestHasher(t)
	hash, err := h.Hash("correct-password")
	require.NoError(t, err)

	for _, wrong := range []string{
		"wrong-password",
		"Correct-Password",
		"correct-password ",
		"",
		"correct-passwor",
		strings.Repeat("x", 10000),
	} {
		require.False(t, h.Verify(wrong, hash), "password %q should not match", wrong)
	}
}

func TestVerify_MalformedHash(t *testing.T) {
	h := newTestHasher(t)

	tests := []struct {
		name string
		hash string
	}{
		{"empty hash", ""},
		{"garbage", "not-a-hash"},
		{"wrong algorithm", "$argon2i$v=19$m=19456,t=2,p=1$c2FsdA$aGFzaA"},
		{"missing parts", "$argon2id$v=19$m=19456"},
		{"malformed parameters", "$argon2id$v=19$invalid$c2FsdA$aGFzaA"},
		{"zero parameters", "$argon2id$v=19$m=0,t=0,p=0$c2FsdA$aGFzaA"},
		{"invalid base64 salt", "$argon2id$v=19$m=19456,t=2,p=1$!!!invalid!!!$aGFzaA"},
		{"invalid base64 hash", "$argon2id$v=19$m=19456,t=2,p=1$c2FsdA$!!!invalid!!!"},
		{"empty digest", "$argon2id$v=19$m=19456,t=2,p=1$c2FsdA$"},
		{"wrong version", "$argon2id$v=18$m=19456,t=2,p=1$c2FsdA$aGFzaA"},
		{"missing version", "$argon2id$m=19456,t=2,p=1$c2FsdA$aGFzaA"},
		{"truncated bcrypt", "$2b$04$short"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NotPanics(t, func() {
				require.False(t, h.Verify("test-password", tt.hash))
			})
		})
	}
}

func TestVerify_DifferentPepper(t *testing.T) {
	a := NewPasswordHasher(HasherConfig{Pepper: "pepper-a"})
	b := NewPasswordHasher(HasherConfig{Pepper: "pepper-b"})

	hash, err := a.Hash("secret")
	require.NoError(t, err)

	require.True(t, a.Verify("secret", hash))
	require.False(t, b.Verify("secret", hash))
}

func TestVerify_LegacyBcrypt(t *testing.T) {
	h := newTestHasher(t)

	legacy, err := bcrypt.GenerateFromPassword([]byte("changethis"), bcrypt.MinCost)
	require.NoError(t, err)

	require.True(t, h.Verify("changethis", string(legacy)))
	require.False(t, h.Verify("changethat", string(legacy)))
	require.True(t, h.NeedsRehash(string(legacy)))
}

func TestNeedsRehash(t *testing.T) {
	h := newTestHasher(t)

	current, err := h.Hash("pw")
	require.NoError(t, err)
	require.False(t, h.NeedsRehash(current))

	weak := NewPasswordHasher(HasherConfig{Memory: 8 * 1024, Iterations: 1})
	old, err := weak.Hash("pw")
	require.NoError(t, err)
	require.True(t, h.NeedsRehash(old))

	require.True(t, h.NeedsRehash("garbage"))
}

func TestPasswordHasher_Concurrent(t *testing.T) {
	h := NewPasswordHasher(HasherConfig{Pepper: "p", Memory: 1024, Iterations: 1})

	var wg sync.WaitGroup
	results := make(chan bool, 8)
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pw := strings.Repeat("x", i+1)
			hash, err := h.Hash(pw)
			results <- err == nil && h.Verify(pw, hash)
		}()
	}
	wg.Wait()
	close(results)

	for ok := range results {
		require.True(t, ok)
	}
}

func TestGeneratePassword(t *testing.T) {
	seen := make(map[string]bool, 50)
	for range 50 {
		password, err := GeneratePassword()
		require.NoError(t, err)
		require.Len(t, password, 12)
		require.NotContains(t, seen, password, "duplicate password generated")
		seen[password] = true

		for _, c := range password {
			valid := (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
			require.True(t, valid, "password should only contain alphanumeric characters")
		}
	}
}

func TestLoadOrGeneratePepper(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "pepper")

	first, err := LoadOrGeneratePepper(path)
	require.NoError(t, err)
	require.NotEmpty(t, first)

	second, err := LoadOrGeneratePepper(path)
	require.NoError(t, err)
	require.Equal(t, first, second, "pepper should persist across loads")

	_, err = LoadOrGeneratePepper("")
	require.Error(t, err)
}
