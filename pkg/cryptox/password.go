package cryptox

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

var errMalformedHash = errors.New("cryptox: malformed password hash")

// HasherConfig tunes the Argon2id parameters. Zero values fall back to the
// package defaults.
type HasherConfig struct {
	// Pepper is appended to every plaintext before hashing. It lives outside
	// the database so a leaked table alone is not enough to brute force.
	Pepper string

	Memory      uint32 // KiB
	Iterations  uint32
	Parallelism uint8
}

// PasswordHasher produces and verifies PHC-format Argon2id hashes. It holds
// no mutable state and is safe for concurrent use.
type PasswordHasher struct {
	pepper      string
	memory      uint32
	iterations  uint32
	parallelism uint8
}

// NewPasswordHasher returns a hasher using cfg, filling in defaults.
func NewPasswordHasher(cfg HasherConfig) *PasswordHasher {
	h := &PasswordHasher{
		pepper:      cfg.Pepper,
		memory:      cfg.Memory,
		iterations:  cfg.Iterations,
		parallelism: cfg.Parallelism,
	}
	if h.memory == 0 {
		h.memory = memory
	}
	if h.iterations == 0 {
		h.iterations = iterations
	}
	if h.parallelism == 0 {
		h.parallelism = parallelism
	}
	return h
}

// Hash generates a PHC-format Argon2id hash string including salt and parameters.
func (h *PasswordHasher) Hash(password string) (string, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("cryptox: read salt: %w", err)
	}
	sum := argon2.IDKey(
		[]byte(password+h.pepper),
		salt,
		h.iterations,
		h.memory,
		h.parallelism,
		keyLength,
	)

	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.memory,
		h.iterations,
		h.parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(sum),
	), nil
}

// Verify reports whether password matches encodedHash. Malformed hashes never
// match. Bcrypt hashes carried over from older deployments are accepted too
// (without the pepper, which they were never created with).
func (h *PasswordHasher) Verify(password, encodedHash string) bool {
	if isBcrypt(encodedHash) {
		return bcrypt.CompareHashAndPassword([]byte(encodedHash), []byte(password)) == nil
	}

	p, err := parsePHC(encodedHash)
	if err != nil {
		return false
	}

	computed := argon2.IDKey(
		[]byte(password+h.pepper),
		p.salt,
		p.iterations,
		p.memory,
		p.parallelism,
		uint32(len(p.hash)), // #nosec G115 - bounded by the decoded hash length
	)
	return subtle.ConstantTimeCompare(computed, p.hash) == 1
}

// NeedsRehash reports whether encodedHash should be replaced by a fresh Hash
// the next time the plaintext is known: legacy bcrypt hashes, unparsable hashes
// and hashes created with weaker parameters than the hasher's.
func (h *PasswordHasher) NeedsRehash(encodedHash string) bool {
	if isBcrypt(encodedHash) {
		return true
	}
	p, err := parsePHC(encodedHash)
	if err != nil {
		return true
	}
	return p.memory < h.memory || p.iterations < h.iterations || p.parallelism < h.parallelism
}

type phcParams struct {
	memory      uint32
	iterations  uint32
	parallelism uint8
	salt        []byte
	hash        []byte
}

// parsePHC splits $argon2id$v=19$m=X,t=Y,p=Z$salt$hash.
func parsePHC(encodedHash string) (phcParams, error) {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 || parts[0] != "" {
		return phcParams{}, fmt.Errorf("%w: expected 6 parts", errMalformedHash)
	}
	if parts[1] != "argon2id" {
		return phcParams{}, fmt.Errorf("%w: not argon2id", errMalformedHash)
	}
	if parts[2] != fmt.Sprintf("v=%d", argon2.Version) {
		return phcParams{}, fmt.Errorf("%w: wrong version", errMalformedHash)
	}

	var p phcParams
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.memory, &p.iterations, &p.parallelism); err != nil {
		return phcParams{}, fmt.Errorf("%w: parameters: %v", errMalformedHash, err)
	}
	if p.memory == 0 || p.iterations == 0 || p.parallelism == 0 {
		return phcParams{}, fmt.Errorf("%w: zero parameter", errMalformedHash)
	}

	var err error
	if p.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return phcParams{}, fmt.Errorf("%w: salt: %v", errMalformedHash, err)
	}
	if p.hash, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil {
		return phcParams{}, fmt.Errorf("%w: hash: %v", errMalformedHash, err)
	}
	if len(p.hash) == 0 {
		return phcParams{}, fmt.Errorf("%w: empty hash", errMalformedHash)
	}
	return p, nil
}

func isBcrypt(encodedHash string) bool {
	return strings.HasPrefix(encodedHash, "$2a$") ||
		strings.HasPrefix(encodedHash, "$2b$") ||
		strings.HasPrefix(encodedHash, "$2y$")
}

// GeneratePassword returns a random 12 character alphanumeric password.
func GeneratePassword() (string, error) {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	const length = 12
	password := make([]byte, length)
	for i := range password {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", fmt.Errorf("failed to generate random password: %w", err)
		}
		password[i] = charset[n.Int64()]
	}
	return string(password), nil
}
