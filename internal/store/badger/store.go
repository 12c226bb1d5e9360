package badger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/roach88/chainsync/internal/encryption"
	"github.com/roach88/chainsync/internal/record"
	"github.com/roach88/chainsync/internal/store"
)

// Store is a store.Store backed by Badger.
type Store struct {
	db  *badgerdb.DB
	enc *encryption.Registry
}

var _ store.Store = (*Store)(nil)

type config struct {
	inMemory bool
	enc      *encryption.Registry
}

// Option configures Open.
type Option func(*config)

// InMemory keeps all data in memory; dir is ignored. Used by tests.
func InMemory() Option {
	return func(c *config) { c.inMemory = true }
}

// WithEncryption sets the scheme registry used by ReEncrypt, Verify and Purge.
func WithEncryption(reg *encryption.Registry) Option {
	return func(c *config) { c.enc = reg }
}

// Open opens or creates a Badger store in dir.
func Open(dir string, opts ...Option) (*Store, error) {
	cfg := config{enc: encryption.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}

	bopts := badgerdb.DefaultOptions(dir).WithLogger(nil)
	if cfg.inMemory {
		bopts = badgerdb.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	}

	db, err := badgerdb.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger store: %w", err)
	}
	slog.Debug("badger store opened", "dir", dir, "in_memory", cfg.inMemory)
	return &Store{db: db, enc: cfg.enc}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Push appends a single record.
func (s *Store) Push(ctx context.Context, r store.Record) error {
	return s.PushBatch(ctx, []store.Record{r})
}

// PushBatch writes records in one transaction, in the order given.
func (s *Store) PushBatch(ctx context.Context, rs []store.Record) error {
	if len(rs) == 0 {
		return nil
	}
	if err := store.CheckRange(rs); err != nil {
		return store.Wrap("push batch", err)
	}
	if err := ctx.Err(); err != nil {
		return store.Wrap("push batch", err)
	}

	err := s.db.Update(func(txn *badgerdb.Txn) error {
		for _, r := range rs {
			if err := insert(txn, r); err != nil {
				return fmt.Errorf("insert %s: %w", r, err)
			}
		}
		return nil
	})
	if errors.Is(err, badgerdb.ErrConflict) {
		err = fmt.Errorf("%w: %v", store.ErrConflict, err)
	}
	return store.Wrap("push batch", err)
}

func insert(txn *badgerdb.Txn, r store.Record) error {
	rk := recordKey(r.ID)
	ck := chainKey(r.Host, r.Tag, r.Idx)
	for _, k := range [][]byte{rk, ck} {
		if _, err := txn.Get(k); err == nil {
			return fmt.Errorf("%w: key %q exists", store.ErrConflict, k)
		} else if !errors.Is(err, badgerdb.ErrKeyNotFound) {
			return err
		}
	}

	val, err := encodeRecord(r)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	if err := txn.Set(rk, val); err != nil {
		return err
	}
	if err := txn.Set(ck, []byte(r.ID)); err != nil {
		return err
	}
	return txn.Set(tagKey(r.Tag, r.Host, r.Idx), []byte(r.ID))
}

// Get returns the record with id.
func (s *Store) Get(ctx context.Context, id record.ID) (store.Record, error) {
	var r store.Record
	err := s.db.View(func(txn *badgerdb.Txn) error {
		var err error
		r, err = get(txn, id)
		return err
	})
	if err != nil {
		return store.Record{}, store.Wrap("get", err)
	}
	return r, nil
}

func get(txn *badgerdb.Txn, id record.ID) (store.Record, error) {
	item, err := txn.Get(recordKey(id))
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return store.Record{}, fmt.Errorf("%s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return store.Record{}, err
	}
	val, err := item.ValueCopy(nil)
	if err != nil {
		return store.Record{}, err
	}
	r, err := decodeRecord(val)
	if err != nil {
		return store.Record{}, fmt.Errorf("decode %s: %w", id, err)
	}
	return r, nil
}

// Delete removes one record and its index entries.
func (s *Store) Delete(ctx context.Context, id record.ID) error {
	err := s.db.Update(func(txn *badgerdb.Txn) error {
		r, err := get(txn, id)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		for _, k := range [][]byte{recordKey(id), chainKey(r.Host, r.Tag, r.Idx), tagKey(r.Tag, r.Host, r.Idx)} {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	return store.Wrap("delete", err)
}

// DeleteAll drops every key.
func (s *Store) DeleteAll(ctx context.Context) error {
	return store.Wrap("delete all", s.db.DropAll())
}

// Replace swaps the payload of an existing record.
func (s *Store) Replace(ctx context.Context, r store.Record) error {
	err := s.db.Update(func(txn *badgerdb.Txn) error {
		existing, err := get(txn, r.ID)
		if err != nil {
			return err
		}
		if existing.Host != r.Host || existing.Tag != r.Tag || existing.Idx != r.Idx {
			return fmt.Errorf("%s: identity changed: %w", r, store.ErrNotFound)
		}
		existing.Data = r.Data
		val, err := encodeRecord(existing)
		if err != nil {
			return fmt.Errorf("encode: %w", err)
		}
		return txn.Set(recordKey(r.ID), val)
	})
	return store.Wrap("replace", err)
}

// ReEncrypt moves every record from oldKey to newKey.
func (s *Store) ReEncrypt(ctx context.Context, oldKey, newKey encryption.Key) error {
	return store.ReEncrypt(ctx, s, s.enc, oldKey, newKey)
}

// Verify checks every record decrypts under key.
func (s *Store) Verify(ctx context.Context, key encryption.Key) error {
	return store.Verify(ctx, s, s.enc, key)
}

// Purge deletes every record that does not decrypt under key.
func (s *Store) Purge(ctx context.Context, key encryption.Key) error {
	return store.Purge(ctx, s, s.enc, key)
}
