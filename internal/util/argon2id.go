package util

import (
	"fmt"

	"golang.org/x/crypto/argon2"
)

// Argon2idParams are the cost parameters for passphrase-derived keys.
type Argon2idParams struct {
	Time        uint32 `json:"time"`
	MemoryKiB   uint32 `json:"memory"`
	Parallelism uint8  `json:"parallelism"`
	KeyLen      uint32 `json:"key_len"`
}

func DefaultArgon2idParams() Argon2idParams {
	return Argon2idParams{
		Time:        1,
		MemoryKiB:   64 * 1024,
		Parallelism: 4,
		KeyLen:      AESKeySize,
	}
}

// DeriveArgon2idKey stretches passphrase into an AES-256 key.
func DeriveArgon2idKey(passphrase string, salt []byte, params Argon2idParams) ([]byte, error) {
	if params.KeyLen != AESKeySize {
		return nil, fmt.Errorf("argon2id key length must be %d bytes", AESKeySize)
	}
	if len(salt) == 0 {
		return nil, fmt.Errorf("argon2id salt is required")
	}
	return argon2.IDKey([]byte(Normalize(passphrase)), salt, params.Time, params.MemoryKiB, params.Parallelism, params.KeyLen), nil
}
