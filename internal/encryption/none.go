package encryption

import (
	"encoding/base64"

	"github.com/roach88/chainsync/internal/record"
)

// NoneName labels payloads that are encoded but not encrypted.
const NoneName = "none"

// None stores payloads base64 encoded and unauthenticated. It exists for
// records whose content is known to be safe to publish, such as key ids.
type None struct{}

func (None) Name() string { return NoneName }

func (None) Encrypt(pt record.DecryptedData, _ record.AdditionalData, _ Key) (record.EncryptedData, error) {
	data := make([]byte, base64.StdEncoding.EncodedLen(len(pt)))
	base64.StdEncoding.Encode(data, pt)
	return record.EncryptedData{Data: data, ContentEncryptionKey: NoneName}, nil
}

func (None) Decrypt(ct record.EncryptedData, _ record.AdditionalData, _ Key) (record.DecryptedData, error) {
	if ct.ContentEncryptionKey != NoneName {
		return nil, decryptionError(NoneName, "label mismatch", nil)
	}
	pt := make([]byte, base64.StdEncoding.DecodedLen(len(ct.Data)))
	n, err := base64.StdEncoding.Decode(pt, ct.Data)
	if err != nil {
		return nil, decryptionError(NoneName, "malformed payload", err)
	}
	return record.DecryptedData(pt[:n]), nil
}

// ReEncrypt is a passthrough after checking the payload decodes.
func (n None) ReEncrypt(ct record.EncryptedData, ad record.AdditionalData, oldKey, _ Key) (record.EncryptedData, error) {
	if _, err := n.Decrypt(ct, ad, oldKey); err != nil {
		return record.EncryptedData{}, err
	}
	return ct, nil
}
