package record

import (
	"fmt"

	"github.com/google/uuid"
)

// Version is the record format version written by this module.
const Version = "v0"

// HostID identifies a writing replica.
type HostID string

// NewHostID generates a fresh time-sortable host identifier.
func NewHostID() HostID {
	return HostID(uuid.Must(uuid.NewV7()).String())
}

// ParseHostID validates s as a host identifier.
func ParseHostID(s string) (HostID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("parse host id %q: %w", s, err)
	}
	return HostID(u.String()), nil
}

func (h HostID) String() string { return string(h) }

// ID identifies a single record.
type ID string

// NewID generates a UUIDv7 record id. UUIDv7 embeds a millisecond timestamp so
// ids sort roughly by creation time, which keeps tie-breaks stable.
func NewID() ID {
	return ID(uuid.Must(uuid.NewV7()).String())
}

func (id ID) String() string { return string(id) }

// Idx is the position of a record within its chain.
type Idx = uint64

// Payload is the set of types a Record may carry.
type Payload interface {
	DecryptedData | EncryptedData
}

// DecryptedData is plaintext record content.
type DecryptedData []byte

// EncryptedData is ciphertext plus the label of the scheme and key that sealed it.
type EncryptedData struct {
	Data                 []byte `json:"data"`
	ContentEncryptionKey string `json:"content_encryption_key"`
}

// Record is one entry of a chain.
type Record[T Payload] struct {
	ID        ID     `json:"id"`
	Idx       Idx    `json:"idx"`
	Host      HostID `json:"host"`
	Parent    *ID    `json:"parent"`
	Timestamp uint64 `json:"timestamp"`
	Version   string `json:"version"`
	Tag       string `json:"tag"`
	Data      T      `json:"data"`
}

// AdditionalData returns the non-secret context bound into this record's
// encryption.
func (r Record[T]) AdditionalData() AdditionalData {
	return AdditionalData{
		ID:      r.ID,
		Idx:     r.Idx,
		Version: r.Version,
		Tag:     r.Tag,
		Host:    r.Host,
	}
}

// WithData returns a copy of r carrying data instead of its current payload.
// Identity fields (id, idx, host, parent, tag) are preserved.
func WithData[T, U Payload](r Record[T], data U) Record[U] {
	return Record[U]{
		ID:        r.ID,
		Idx:       r.Idx,
		Host:      r.Host,
		Parent:    r.Parent,
		Timestamp: r.Timestamp,
		Version:   r.Version,
		Tag:       r.Tag,
		Data:      data,
	}
}

// ParentID returns the parent id or the empty string for the first record.
func (r Record[T]) ParentID() ID {
	if r.Parent == nil {
		return ""
	}
	return *r.Parent
}

func (r Record[T]) String() string {
	return fmt.Sprintf("record(%s %s/%s#%d)", r.ID, r.Host, r.Tag, r.Idx)
}
