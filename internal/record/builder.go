package record

import (
	"github.com/jonboulle/clockwork"
)

// Builder constructs the next record of a chain owned by Host.
//
// Thread-safety: Builder holds no mutable state, but callers must serialize
// appends to the same chain themselves; the tail passed to Next must be the
// current tail.
type Builder struct {
	Host    HostID
	Version string
	Clock   clockwork.Clock
	NewID   func() ID
}

// NewBuilder returns a Builder stamping records with the real clock.
func NewBuilder(host HostID) *Builder {
	return &Builder{
		Host:    host,
		Version: Version,
		Clock:   clockwork.NewRealClock(),
		NewID:   NewID,
	}
}

// Next returns a record that extends tail. A nil tail starts a new chain at
// idx 0 with no parent. The tag is stored NFC normalized.
func (b *Builder) Next(tag string, tail *Record[EncryptedData], data DecryptedData) Record[DecryptedData] {
	r := Record[DecryptedData]{
		ID:        b.NewID(),
		Host:      b.Host,
		Timestamp: uint64(b.Clock.Now().UnixNano()),
		Version:   b.Version,
		Tag:       NormalizeTag(tag),
		Data:      data,
	}
	if tail != nil {
		parent := tail.ID
		r.Idx = tail.Idx + 1
		r.Parent = &parent
	}
	return r
}
