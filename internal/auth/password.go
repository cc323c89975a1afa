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

// PasswordHasher defines the contract for credential hashing. Service-account
// secrets go through the same implementation as user passwords.
type PasswordHasher interface {
	Hash(plain string) (string, error)
	// Verify reports whether plain re-derives the digest inside encoded.
	// Malformed or truncated encodings return false, never an error.
	Verify(plain, encoded string) bool
}

// ErrInvalidHash is returned by the strict decode path when an encoded string
// is not a well-formed argon2id hash.
var ErrInvalidHash = errors.New("invalid argon2id hash encoding")

// Argon2Params tunes the KDF. The defaults follow the current OWASP guidance
// for argon2id; deployments override them through ARGON2_* env vars.
type Argon2Params struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultArgon2Params is used when the config leaves a field zero.
var DefaultArgon2Params = Argon2Params{
	MemoryKiB:   64 * 1024,
	Iterations:  3,
	Parallelism: 2,
	SaltLength:  16,
	KeyLength:   32,
}

// Bounds applied when decoding a stored hash. They stop a poisoned row from
// turning a verify call into a multi-gigabyte allocation.
const (
	minDecodedMemoryKiB = 8
	maxDecodedMemoryKiB = 4 * 1024 * 1024
	maxDecodedIters     = 64
	maxDecodedThreads   = 64
	minDecodedSaltLen   = 8
	maxDecodedSaltLen   = 64
	minDecodedKeyLen    = 16
	maxDecodedKeyLen    = 128
)

// Argon2Hasher implements PasswordHasher using argon2id with a self-describing
// PHC-format encoding, so parameters can be tuned without invalidating stored
// hashes.
type Argon2Hasher struct {
	params Argon2Params
}

// NewArgon2Hasher builds a hasher from the given params, filling zero fields
// from DefaultArgon2Params.
func NewArgon2Hasher(params Argon2Params) *Argon2Hasher {
	if params.MemoryKiB == 0 {
		params.MemoryKiB = DefaultArgon2Params.MemoryKiB
	}
	if params.Iterations == 0 {
		params.Iterations = DefaultArgon2Params.Iterations
	}
	if params.Parallelism == 0 {
		params.Parallelism = DefaultArgon2Params.Parallelism
	}
	if params.SaltLength == 0 {
		params.SaltLength = DefaultArgon2Params.SaltLength
	}
	if params.KeyLength == 0 {
		params.KeyLength = DefaultArgon2Params.KeyLength
	}
	return &Argon2Hasher{params: params}
}

// Hash derives an argon2id digest over plain with a fresh random salt and
// returns the PHC-encoded string:
//
//	$argon2id$v=19$m=65536,t=3,p=2$<salt>$<digest>
//
// Two calls with the same input produce distinct encodings. The empty string
// hashes fine; length and complexity rules live in the password policy, not
// here.
func (h *Argon2Hasher) Hash(plain string) (string, error) {
	salt := make([]byte, h.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	key := argon2.IDKey([]byte(plain), salt, h.params.Iterations, h.params.MemoryKiB, h.params.Parallelism, h.params.KeyLength)

	encoded := fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.params.MemoryKiB,
		h.params.Iterations,
		h.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	)
	return encoded, nil
}

// Verify re-derives the digest using the parameters embedded in encoded and
// compares in constant time over the digest region. Any decode failure counts
// as a mismatch.
func (h *Argon2Hasher) Verify(plain, encoded string) bool {
	params, salt, key, err := decodeArgon2Hash(encoded)
	if err != nil {
		return false
	}

	derived := argon2.IDKey([]byte(plain), salt, params.Iterations, params.MemoryKiB, params.Parallelism, params.KeyLength)
	return subtle.ConstantTimeCompare(key, derived) == 1
}

// decodeArgon2Hash parses a PHC argon2id string and enforces parameter bounds.
func decodeArgon2Hash(encoded string) (Argon2Params, []byte, []byte, error) {
	var params Argon2Params

	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return params, nil, nil, ErrInvalidHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return params, nil, nil, ErrInvalidHash
	}

	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &params.MemoryKiB, &params.Iterations, &params.Parallelism); err != nil {
		return params, nil, nil, ErrInvalidHash
	}
	if params.MemoryKiB < minDecodedMemoryKiB || params.MemoryKiB > maxDecodedMemoryKiB ||
		params.Iterations == 0 || params.Iterations > maxDecodedIters ||
		params.Parallelism == 0 || uint32(params.Parallelism) > maxDecodedThreads {
		return params, nil, nil, ErrInvalidHash
	}

	salt, err := base64.RawStdEncoding.Strict().DecodeString(parts[4])
	if err != nil || len(salt) < minDecodedSaltLen || len(salt) > maxDecodedSaltLen {
		return params, nil, nil, ErrInvalidHash
	}
	params.SaltLength = uint32(len(salt))

	key, err := base64.RawStdEncoding.Strict().DecodeString(parts[5])
	if err != nil || len(key) < minDecodedKeyLen || len(key) > maxDecodedKeyLen {
		return params, nil, nil, ErrInvalidHash
	}
	params.KeyLength = uint32(len(key))

	return params, salt, key, nil
}
