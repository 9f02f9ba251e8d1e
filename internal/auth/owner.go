package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/sakif/artwall/internal/model"
)

// NewOwnerToken returns 32 random bytes, base64url encoded. The plaintext is
// shown to the uploader exactly once.
func NewOwnerToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("auth: generating owner token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// HashOwnerToken is the stored form of an owner token: lowercase hex SHA-256.
// Tokens carry 256 bits of entropy, so an unsalted fast hash is enough.
func HashOwnerToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// VerifyOwner reports whether presented proves ownership of a. Records that
// predate hashing carry the plaintext token instead of a hash.
func VerifyOwner(a *model.Artwork, presented string) bool {
	presented = strings.TrimSpace(presented)
	if presented == "" {
		return false
	}

	if a.OwnerTokenHash != "" {
		want := strings.ToLower(a.OwnerTokenHash)
		got := HashOwnerToken(presented)
		return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
	}
	if a.OwnerToken != "" {
		return subtle.ConstantTimeCompare([]byte(presented), []byte(a.OwnerToken)) == 1
	}
	return false
}
