package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// argon2id parameters, OWASP-recommended.
const (
	argonTime    = 1
	argonMemory  = 64 * 1024 // KiB
	argonThreads = 4
	argonSaltLen = 16
	argonKeyLen  = 32
)

var (
	ErrEmptyPassword = errors.New("password cannot be empty")

	// ErrMalformedHash means the stored hash is structurally corrupt.
	// Callers must not treat it as a credentials mismatch.
	ErrMalformedHash = errors.New("malformed password hash")
)

// PasswordHasher hashes and verifies passwords.
type PasswordHasher interface {
	// Hash produces a salted hash of the password. The salt is fresh
	// per call, so hashing the same password twice yields different
	// strings; never compare hashes by equality.
	Hash(password string) (string, error)

	// Verify reports whether password matches the stored hash.
	// A mismatch is (false, nil); an unparseable hash is an error
	// wrapping ErrMalformedHash.
	Verify(password, encodedHash string) (bool, error)
}

// Argon2Hasher implements PasswordHasher with argon2id, encoding
// hashes in PHC string format:
//
//	$argon2id$v=19$m=65536,t=1,p=4$<salt>$<key>
type Argon2Hasher struct{}

func NewArgon2Hasher() *Argon2Hasher {
	return &Argon2Hasher{}
}

func (h *Argon2Hasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}

	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	key := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)

	encoded := fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		argonMemory,
		argonTime,
		argonThreads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	)

	return encoded, nil
}

func (h *Argon2Hasher) Verify(password, encodedHash string) (bool, error) {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 {
		return false, fmt.Errorf("%w: expected 6 segments, got %d", ErrMalformedHash, len(parts))
	}
	if parts[1] != "argon2id" {
		return false, fmt.Errorf("%w: unsupported algorithm %q", ErrMalformedHash, parts[1])
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return false, fmt.Errorf("%w: bad version segment", ErrMalformedHash)
	}
	if version != argon2.Version {
		return false, fmt.Errorf("%w: unsupported argon2 version %d", ErrMalformedHash, version)
	}

	var memory, time uint32
	var threads uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &time, &threads); err != nil {
		return false, fmt.Errorf("%w: bad parameter segment", ErrMalformedHash)
	}
	if threads == 0 || threads > 255 {
		return false, fmt.Errorf("%w: parallelism %d out of range", ErrMalformedHash, threads)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, fmt.Errorf("%w: bad salt encoding", ErrMalformedHash)
	}
	expected, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false, fmt.Errorf("%w: bad key encoding", ErrMalformedHash)
	}
	if len(expected) == 0 || len(expected) > 1<<10 {
		return false, fmt.Errorf("%w: key length %d out of range", ErrMalformedHash, len(expected))
	}

	computed := argon2.IDKey([]byte(password), salt, time, memory, uint8(threads), uint32(len(expected)))

	return subtle.ConstantTimeCompare(computed, expected) == 1, nil
}
