package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/chainsync/internal/encryption"
	"github.com/roach88/chainsync/internal/record"
)

// Rewriter is the backend surface needed by the key operations.
type Rewriter interface {
	// IDs lists every record id, in a stable order.
	IDs(ctx context.Context) ([]record.ID, error)
	Get(ctx context.Context, id record.ID) (Record, error)
	// Replace atomically swaps the payload of an existing record. Identity
	// fields of r must match the stored record.
	Replace(ctx context.Context, r Record) error
	Delete(ctx context.Context, id record.ID) error
}

// ReEncrypt moves every record from oldKey to newKey, one atomic update per
// record. It stops at the first failure: records already migrated stay on
// newKey, the rest stay on oldKey. Records already readable under newKey are
// skipped, so an interrupted migration can be rerun.
func ReEncrypt(ctx context.Context, rw Rewriter, enc *encryption.Registry, oldKey, newKey encryption.Key) error {
	ids, err := rw.IDs(ctx)
	if err != nil {
		return Wrap("re-encrypt", err)
	}

	skipped := 0
	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("re-encrypt: stopped after %d of %d records: %w", i, len(ids), err)
		}
		r, err := rw.Get(ctx, id)
		if err != nil {
			return Wrap("re-encrypt", err)
		}
		if _, err := enc.DecryptRecord(r, newKey); err == nil {
			skipped++
			continue
		}
		moved, err := enc.ReEncryptRecord(r, oldKey, newKey)
		if err != nil {
			return fmt.Errorf("re-encrypt: %d of %d records migrated: %w", i, len(ids), err)
		}
		if err := rw.Replace(ctx, moved); err != nil {
			return Wrap("re-encrypt", fmt.Errorf("replace %s: %w", id, err))
		}
	}

	slog.Info("records re-encrypted", "count", len(ids)-skipped, "skipped", skipped, "key", newKey.ID())
	return nil
}

// Verify checks that every record decrypts under key. It writes nothing.
func Verify(ctx context.Context, rw Rewriter, enc *encryption.Registry, key encryption.Key) error {
	ids, err := rw.IDs(ctx)
	if err != nil {
		return Wrap("verify", err)
	}

	for _, id := range ids {
		r, err := rw.Get(ctx, id)
		if err != nil {
			return Wrap("verify", err)
		}
		if _, err := enc.DecryptRecord(r, key); err != nil {
			return fmt.Errorf("verify: %w", err)
		}
	}
	return nil
}

// Purge deletes every record that does not decrypt under key.
func Purge(ctx context.Context, rw Rewriter, enc *encryption.Registry, key encryption.Key) error {
	ids, err := rw.IDs(ctx)
	if err != nil {
		return Wrap("purge", err)
	}

	purged := 0
	for _, id := range ids {
		r, err := rw.Get(ctx, id)
		if err != nil {
			return Wrap("purge", err)
		}
		if _, err := enc.DecryptRecord(r, key); err == nil {
			continue
		}
		if err := rw.Delete(ctx, id); err != nil {
			return Wrap("purge", err)
		}
		purged++
	}

	slog.Info("purged records not readable with key", "count", purged, "key", key.ID())
	return nil
}
