package common

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
)

// MakeRandHexString returns size random bytes encoded as hex, so the
// resulting string is 2*size characters long.
func MakeRandHexString(size int) (string, error) {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// GenerateRandByteArray returns size bytes from crypto/rand. It panics if the
// system random source fails, which on supported platforms does not happen.
func GenerateRandByteArray(size int) []byte {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return b
}

// WipeByteArray zeroes b in place. Nil is allowed.
func WipeByteArray(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// NormalizeEmail is the canonical stored form of an email address: trimmed
// and lower-cased. Every write and lookup goes through it.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
