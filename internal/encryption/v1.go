package encryption

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/roach88/chainsync/internal/record"
)

// V1Name is the name and label prefix of the envelope scheme.
const V1Name = "v1"

const (
	v1DataPrefix  = "v1.local."
	v1LabelPrefix = "v1.local-wrap."
	v1WrapInfo    = "chainsync v1 wrap"
)

// V1 is envelope encryption with XChaCha20-Poly1305.
//
// Payload: "v1.local." + base64url(nonce || seal(cek, pt, aad))
// Label:   "v1.local-wrap." + keyID + "." + base64url(nonce || seal(wrapKey, cek, keyID || aad))
//
// The wrap key is derived from the master key with HKDF-SHA256. Re-encryption
// only re-wraps the content key, so the payload bytes survive a rotation.
type V1 struct{}

func (V1) Name() string { return V1Name }

func (V1) Encrypt(pt record.DecryptedData, ad record.AdditionalData, key Key) (record.EncryptedData, error) {
	cek := make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(cek); err != nil {
		return record.EncryptedData{}, fmt.Errorf("v1: content key: %w", err)
	}

	aead, err := chacha20poly1305.NewX(cek)
	if err != nil {
		return record.EncryptedData{}, fmt.Errorf("v1: %w", err)
	}
	sealed, err := seal(aead, pt, ad.Canonical())
	if err != nil {
		return record.EncryptedData{}, err
	}

	label, err := wrapContentKey(cek, ad, key)
	if err != nil {
		return record.EncryptedData{}, err
	}

	return record.EncryptedData{
		Data:                 []byte(v1DataPrefix + base64.RawURLEncoding.EncodeToString(sealed)),
		ContentEncryptionKey: label,
	}, nil
}

func (V1) Decrypt(ct record.EncryptedData, ad record.AdditionalData, key Key) (record.DecryptedData, error) {
	cek, err := unwrapContentKey(ct.ContentEncryptionKey, ad, key)
	if err != nil {
		return nil, err
	}
	return openPayload(ct.Data, cek, ad)
}

func (V1) ReEncrypt(ct record.EncryptedData, ad record.AdditionalData, oldKey, newKey Key) (record.EncryptedData, error) {
	cek, err := unwrapContentKey(ct.ContentEncryptionKey, ad, oldKey)
	if err != nil {
		return record.EncryptedData{}, err
	}
	if _, err := openPayload(ct.Data, cek, ad); err != nil {
		return record.EncryptedData{}, err
	}

	label, err := wrapContentKey(cek, ad, newKey)
	if err != nil {
		return record.EncryptedData{}, err
	}
	data := make([]byte, len(ct.Data))
	copy(data, ct.Data)
	return record.EncryptedData{Data: data, ContentEncryptionKey: label}, nil
}

func openPayload(data []byte, cek []byte, ad record.AdditionalData) (record.DecryptedData, error) {
	token := string(data)
	if !strings.HasPrefix(token, v1DataPrefix) {
		return nil, decryptionError(V1Name, "payload is not a v1 token", nil)
	}
	sealed, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(token, v1DataPrefix))
	if err != nil {
		return nil, decryptionError(V1Name, "malformed payload", err)
	}
	aead, err := chacha20poly1305.NewX(cek)
	if err != nil {
		return nil, decryptionError(V1Name, "bad content key", err)
	}
	pt, err := open(aead, sealed, ad.Canonical())
	if err != nil {
		return nil, decryptionError(V1Name, "payload authentication failed", err)
	}
	return record.DecryptedData(pt), nil
}

func wrapContentKey(cek []byte, ad record.AdditionalData, key Key) (string, error) {
	aead, err := wrapAEAD(key)
	if err != nil {
		return "", err
	}
	keyID := key.ID()
	sealed, err := seal(aead, cek, wrapAD(keyID, ad))
	if err != nil {
		return "", err
	}
	return v1LabelPrefix + keyID + "." + base64.RawURLEncoding.EncodeToString(sealed), nil
}

func unwrapContentKey(label string, ad record.AdditionalData, key Key) ([]byte, error) {
	if !strings.HasPrefix(label, v1LabelPrefix) {
		return nil, decryptionError(V1Name, "label mismatch", nil)
	}
	// keyID is "k1.<id>", so the remainder splits into exactly three parts
	parts := strings.Split(strings.TrimPrefix(label, v1LabelPrefix), ".")
	if len(parts) != 3 {
		return nil, decryptionError(V1Name, "malformed label", nil)
	}
	keyID := parts[0] + "." + parts[1]
	if keyID != key.ID() {
		return nil, decryptionError(V1Name, fmt.Sprintf("sealed under key %s, have %s", keyID, key.ID()), nil)
	}

	sealed, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return nil, decryptionError(V1Name, "malformed wrapped key", err)
	}
	aead, err := wrapAEAD(key)
	if err != nil {
		return nil, err
	}
	cek, err := open(aead, sealed, wrapAD(keyID, ad))
	if err != nil {
		return nil, decryptionError(V1Name, "content key authentication failed", err)
	}
	return cek, nil
}

func wrapAEAD(key Key) (cipher.AEAD, error) {
	wrapKey := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, key[:], nil, []byte(v1WrapInfo)), wrapKey); err != nil {
		return nil, fmt.Errorf("v1: derive wrap key: %w", err)
	}
	return chacha20poly1305.NewX(wrapKey)
}

func wrapAD(keyID string, ad record.AdditionalData) []byte {
	return append([]byte(keyID+"."), ad.Canonical()...)
}

func seal(aead cipher.AEAD, pt, ad []byte) ([]byte, error) {
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(pt)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("v1: nonce: %w", err)
	}
	return aead.Seal(nonce, nonce, pt, ad), nil
}

func open(aead cipher.AEAD, sealed, ad []byte) ([]byte, error) {
	if len(sealed) < aead.NonceSize() {
		return nil, fmt.Errorf("ciphertext shorter than nonce")
	}
	nonce, ct := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	return aead.Open(nil, nonce, ct, ad)
}
