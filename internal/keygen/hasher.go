package keygen

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/zeebo/blake3"
	"golang.org/x/crypto/hkdf"
)

// MinSecretLen is the shortest master secret DerivePepper accepts.
const MinSecretLen = 16

var (
	hkdfSalt = []byte("keyledger")
	hkdfInfo = []byte("keyledger-key-hash-v1")
)

// DerivePepper derives the 32-byte hashing key from the configured master secret.
func DerivePepper(secret []byte) ([]byte, error) {
	if len(secret) < MinSecretLen {
		return nil, fmt.Errorf("hash secret must be at least %d bytes", MinSecretLen)
	}

	reader := hkdf.New(sha256.New, secret, hkdfSalt, hkdfInfo)
	pepper := make([]byte, 32)
	if _, err := io.ReadFull(reader, pepper); err != nil {
		return nil, fmt.Errorf("derive pepper: %w", err)
	}
	return pepper, nil
}

// Hasher computes the keyed BLAKE3 digest of presented keys. The digest is
// deterministic for a given pepper, so it doubles as the lookup index.
type Hasher struct {
	pepper []byte
}

// NewHasher creates a Hasher. pepper must be exactly 32 bytes.
func NewHasher(pepper []byte) (*Hasher, error) {
	if len(pepper) != 32 {
		return nil, errors.New("pepper must be 32 bytes")
	}
	p := make([]byte, 32)
	copy(p, pepper)
	return &Hasher{pepper: p}, nil
}

// NewHasherFromSecret derives a pepper from secret and returns a Hasher.
func NewHasherFromSecret(secret []byte) (*Hasher, error) {
	pepper, err := DerivePepper(secret)
	if err != nil {
		return nil, err
	}
	return NewHasher(pepper)
}

// Hash returns the hex digest of key.
func (h *Hasher) Hash(key string) string {
	hasher, err := blake3.NewKeyed(h.pepper)
	if err != nil {
		// The pepper length is checked in NewHasher.
		panic("keygen: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	_, _ = hasher.Write([]byte(key))
	return hex.EncodeToString(hasher.Sum(nil))
}

// Verify reports whether key hashes to stored, in constant time.
func (h *Hasher) Verify(key, stored string) bool {
	return subtle.ConstantTimeCompare([]byte(h.Hash(key)), []byte(stored)) == 1
}
