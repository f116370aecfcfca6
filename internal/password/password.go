// Package password holds the write-time password policy and the bcrypt
// hashing helpers. The policy runs at signup, change, and reset; login
// only compares hashes.
package password

import (
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	// HashCost is the bcrypt cost factor for newly stored hashes.
	HashCost = 12

	minLength = 8
	maxLength = 128

	symbols = "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"
)

// Validate checks the password against the complexity policy and returns
// every violated rule. All checks run independently so the caller can
// render the complete list at once; an empty slice means the password is
// acceptable.
func Validate(password string) []string {
	var violations []string

	if len(password) < minLength {
		violations = append(violations, "password must be at least 8 characters")
	}
	if len(password) > maxLength {
		violations = append(violations, "password must be at most 128 characters")
	}
	if !strings.ContainsFunc(password, func(r rune) bool { return r >= 'A' && r <= 'Z' }) {
		violations = append(violations, "password must contain an uppercase letter")
	}
	if !strings.ContainsFunc(password, func(r rune) bool { return r >= 'a' && r <= 'z' }) {
		violations = append(violations, "password must contain a lowercase letter")
	}
	if !strings.ContainsFunc(password, func(r rune) bool { return r >= '0' && r <= '9' }) {
		violations = append(violations, "password must contain a digit")
	}
	if !strings.ContainsAny(password, symbols) {
		violations = append(violations, "password must contain a symbol")
	}

	return violations
}

// Hash returns the bcrypt hash of the password at HashCost.
func Hash(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), HashCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// Compare reports whether the password matches the stored hash. It
// returns bcrypt's mismatch error on failure.
func Compare(hash, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}
