package encryption

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// KeySize is the length of a master key in bytes.
const KeySize = 32

const keyIDPrefix = "k1."

// Key is a 256-bit symmetric master key. It never leaves the host.
type Key [KeySize]byte

// GenerateKey returns a fresh random key.
func GenerateKey() (Key, error) {
	var k Key
	if _, err := rand.Read(k[:]); err != nil {
		return Key{}, fmt.Errorf("generate key: %w", err)
	}
	return k, nil
}

// KeyFromBase64 decodes a key produced by Key.Base64.
func KeyFromBase64(s string) (Key, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return Key{}, fmt.Errorf("decode key: %w", err)
	}
	if len(raw) != KeySize {
		return Key{}, fmt.Errorf("decode key: want %d bytes, got %d", KeySize, len(raw))
	}
	var k Key
	copy(k[:], raw)
	return k, nil
}

// Base64 encodes the key for storage in a key file.
func (k Key) Base64() string {
	return base64.StdEncoding.EncodeToString(k[:])
}

// ID returns a stable public identifier for the key. It is a keyed BLAKE2b
// digest, so it can be synced and compared without revealing the key.
func (k Key) ID() string {
	h, err := blake2b.New256(k[:])
	if err != nil {
		// only returned for keys longer than 64 bytes
		panic(err)
	}
	h.Write([]byte("chainsync key id"))
	sum := h.Sum(nil)
	return keyIDPrefix + base64.RawURLEncoding.EncodeToString(sum[:16])
}

// String never prints key material.
func (k Key) String() string {
	return "Key(" + k.ID() + ")"
}
