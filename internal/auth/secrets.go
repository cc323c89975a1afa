package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// GenerateSecureToken returns n bytes of randomness in URL-safe base64.
// Used for client secrets, reset tokens, and remember-me tokens.
func GenerateSecureToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate secure token: %w", err)
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// HashToken maps opaque token material to the hex digest stored at rest.
// Only digests are persisted; the original value never touches storage.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
