package utils

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
)

// OpaqueTokenBytes is the entropy of a verification token: 32 bytes, 256 bits.
const OpaqueTokenBytes = 32

// NewOpaqueToken returns a hex encoded random token suitable for email
// verification and password reset links.  It is never derived from user data.
func NewOpaqueToken() (string, error) {
	return randomHex(OpaqueTokenBytes)
}

// HashToken returns the SHA-256 hex digest of a raw token.  Only digests are
// stored, so a leaked table cannot be replayed.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
