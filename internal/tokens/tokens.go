// Package tokens generates and digests the single-use password-reset
// secrets. Only the SHA-256 digest of a token is ever persisted; the
// plaintext goes to the requester once, inside the reset link, and is
// never stored or logged.
package tokens

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// ResetTokenTTL bounds the lifetime of a reset token. Expiry is enforced
// by timestamp comparison at validation time; no cleanup job is needed.
const ResetTokenTTL = time.Hour

// NewResetToken returns a fresh reset token and its storable digest. The
// token carries 256 bits of entropy.
func NewResetToken() (plaintext, digest string, err error) {
	var buf [32]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", "", err
	}
	plaintext = hex.EncodeToString(buf[:])
	return plaintext, Digest(plaintext), nil
}

// Digest re-derives the storable digest from a presented token.
func Digest(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}
