package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	"github.com/hashicorp/go-secure-stdlib/base62"
)

const (
	// TokenLength is the number of base62 characters in a generated token (~238 bits).
	TokenLength = 40

	// RememberTokenLength is the number of base62 characters in a remember-me token.
	RememberTokenLength = 60
)

// GenerateToken returns a new random plaintext token suitable for API tokens.
func GenerateToken() (string, error) {
	return randomString(TokenLength)
}

// GenerateRememberToken returns a new random remember-me token.
func GenerateRememberToken() (string, error) {
	return randomString(RememberTokenLength)
}

func randomString(n int) (string, error) {
	token, err := base62.Random(n)
	if err != nil {
		return "", fmt.Errorf("generate random token: %w", err)
	}
	return token, nil
}

// HashToken hashes a token for storage/lookup.
// Returns SHA256 hex hash.
func HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// TokenMatchesHash compares a plaintext token with a stored hash in constant time.
func TokenMatchesHash(token, hash string) bool {
	if token == "" || hash == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(HashToken(token)), []byte(hash)) == 1
}
