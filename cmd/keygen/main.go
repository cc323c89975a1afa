// Command keygen generates the secrets the service needs at deploy time: a
// JWT signing secret and an AES-256 key for sealing TOTP secrets. Values are
// printed once; store them in your secret manager, not in the repo.
package main

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"

	"github.com/corvidsec/identity/internal/crypto"
)

func main() {
	jwtSecret := make([]byte, 48)
	if _, err := rand.Read(jwtSecret); err != nil {
		fmt.Fprintln(os.Stderr, "generate JWT secret:", err)
		os.Exit(1)
	}

	mfaKey, err := crypto.GenerateKey()
	if err != nil {
		fmt.Fprintln(os.Stderr, "generate MFA key:", err)
		os.Exit(1)
	}

	fmt.Println("JWT_SECRET=" + base64.RawURLEncoding.EncodeToString(jwtSecret))
	fmt.Println("MFA_SECRET_KEY=" + mfaKey)
}
