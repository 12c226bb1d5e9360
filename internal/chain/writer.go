// Package chain appends locally produced records to this host's chains.
package chain

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/chainsync/internal/encryption"
	"github.com/roach88/chainsync/internal/keys"
	"github.com/roach88/chainsync/internal/record"
	"github.com/roach88/chainsync/internal/store"
)

// Writer seals plaintext into the next record of a chain and stores it.
//
// A Writer must be the only appender to its host's chains; concurrent Appends
// to one tag collide on idx and the loser gets a conflict error.
type Writer struct {
	Store      store.Store
	Encryption *encryption.Registry
	Scheme     string
	Key        encryption.Key
	// Guard, if set, is consulted before every append.
	Guard   *keys.Guard
	Builder *record.Builder
}

// NewWriter returns a Writer for host using scheme and key.
func NewWriter(st store.Store, host record.HostID, scheme string, key encryption.Key, guard *keys.Guard) *Writer {
	return &Writer{
		Store:      st,
		Encryption: encryption.Default(),
		Scheme:     scheme,
		Key:        key,
		Guard:      guard,
		Builder:    record.NewBuilder(host),
	}
}

// Append adds plaintext as the next record of the tag chain. The tag is NFC
// normalized first.
func (w *Writer) Append(ctx context.Context, tag string, plaintext []byte) (store.Record, error) {
	tag = record.NormalizeTag(tag)
	if w.Guard != nil {
		if err := w.Guard.Check(ctx, w.Key); err != nil {
			return store.Record{}, fmt.Errorf("append %s: %w", tag, err)
		}
	}

	tail, err := w.Store.Last(ctx, w.Builder.Host, tag)
	if err != nil {
		return store.Record{}, fmt.Errorf("append %s: %w", tag, err)
	}

	rec, err := w.Encryption.EncryptRecord(w.Scheme, w.Builder.Next(tag, tail, plaintext), w.Key)
	if err != nil {
		return store.Record{}, fmt.Errorf("append %s: %w", tag, err)
	}
	if err := w.Store.Push(ctx, rec); err != nil {
		return store.Record{}, fmt.Errorf("append %s: %w", tag, err)
	}

	slog.Debug("record appended", "record", rec.String(), "scheme", w.Scheme)
	return rec, nil
}
