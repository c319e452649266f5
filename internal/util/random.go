package util

import (
	"crypto/rand"
	"fmt"
)

// RandomBytes returns n bytes from the system CSPRNG.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("generating random bytes: %w", err)
	}
	return b, nil
}

// NewAESKey returns a fresh random AES-256 key.
func NewAESKey() ([]byte, error) {
	return RandomBytes(AESKeySize)
}
