package keys

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/chainsync/internal/encryption"
	"github.com/roach88/chainsync/internal/record"
	"github.com/roach88/chainsync/internal/store"
)

// Rotate puts newKey into service for host and re-encrypts st under it.
//
// oldKey must be the current key, unless newKey already is, in which case the
// registration is kept and only the re-encryption runs. That makes a rotation
// that failed partway safe to repeat.
func Rotate(ctx context.Context, st store.Store, reg *Registry, host record.HostID, oldKey, newKey encryption.Key) error {
	if oldKey == newKey {
		return fmt.Errorf("rotate: new key equals old key")
	}

	cur, err := reg.Current(ctx)
	if err != nil {
		return fmt.Errorf("rotate: %w", err)
	}
	switch {
	case cur != nil && cur.KeyID == newKey.ID():
		slog.Info("new key already registered, resuming re-encryption", "key", newKey.ID())
	case cur != nil && cur.KeyID != oldKey.ID():
		return fmt.Errorf("rotate: %w", &KeyError{Want: cur.KeyID, Got: oldKey.ID()})
	default:
		if _, err := reg.Supersede(ctx, host, oldKey, newKey); err != nil {
			return fmt.Errorf("rotate: %w", err)
		}
	}

	if err := st.ReEncrypt(ctx, oldKey, newKey); err != nil {
		return fmt.Errorf("rotate: %w", err)
	}
	slog.Info("key rotated", "from", oldKey.ID(), "to", newKey.ID())
	return nil
}

// Verify checks that every record in st opens with key.
func Verify(ctx context.Context, st store.Store, key encryption.Key) error {
	return st.Verify(ctx, key)
}

// Purge removes every record in st that does not open with key.
func Purge(ctx context.Context, st store.Store, key encryption.Key) error {
	return st.Purge(ctx, key)
}
