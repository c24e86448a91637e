// Package keygen produces credential key material and the keyed digest used
// to find and verify presented keys without storing them.
package keygen

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

const (
	// KeyBytes is the entropy of a presented key (256 bits).
	KeyBytes = 32
	// SecretBytes is the entropy of a secondary secret (512 bits).
	SecretBytes = 64
	// PrefixLen is the number of key characters kept for display.
	PrefixLen = 8
)

// GenerateKey returns a new presented key as lowercase hex.
func GenerateKey() (string, error) {
	return randomHex(KeyBytes)
}

// GenerateSecondarySecret returns a new secondary secret as lowercase hex.
func GenerateSecondarySecret() (string, error) {
	return randomHex(SecretBytes)
}

// GenerateID returns a UUIDv7 string. v7 IDs sort by creation time.
func GenerateID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Prefix returns the display prefix of a presented key.
func Prefix(key string) string {
	if len(key) <= PrefixLen {
		return key
	}
	return key[:PrefixLen]
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
