package record

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// AdditionalData is authenticated but unencrypted context for a record.
// Binding it into the ciphertext stops a sealed payload from being replayed
// under a different id, host, tag or position.
type AdditionalData struct {
	ID      ID
	Idx     Idx
	Version string
	Tag     string
	Host    HostID
}

// Canonical returns the byte encoding used as AEAD associated data.
//
// The encoding is a JSON object with keys in lexicographic order and no HTML
// escaping, so every replica produces the same bytes for the same record.
// Strings are taken byte for byte; tags are normalized when records are built.
func (ad AdditionalData) Canonical() []byte {
	var buf bytes.Buffer
	buf.WriteByte('{')
	writeField(&buf, "host", canonicalString(string(ad.Host)), false)
	writeField(&buf, "id", canonicalString(string(ad.ID)), true)
	writeField(&buf, "idx", []byte(strconv.FormatUint(ad.Idx, 10)), true)
	writeField(&buf, "tag", canonicalString(ad.Tag), true)
	writeField(&buf, "version", canonicalString(ad.Version), true)
	buf.WriteByte('}')
	return buf.Bytes()
}

func (ad AdditionalData) String() string {
	return fmt.Sprintf("%s %s/%s#%d %s", ad.ID, ad.Host, ad.Tag, ad.Idx, ad.Version)
}

func writeField(buf *bytes.Buffer, key string, value []byte, comma bool) {
	if comma {
		buf.WriteByte(',')
	}
	buf.Write(canonicalString(key))
	buf.WriteByte(':')
	buf.Write(value)
}

// canonicalString encodes s as a JSON string. Encoding a string cannot fail,
// so errors are not surfaced.
func canonicalString(s string) []byte {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s)
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n"))
}
