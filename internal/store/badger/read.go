package badger

import (
	"context"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/roach88/chainsync/internal/record"
	"github.com/roach88/chainsync/internal/store"
)

// countPrefix counts keys under prefix without fetching values.
func (s *Store) countPrefix(op string, prefix []byte) (uint64, error) {
	var n uint64
	err := s.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	return n, store.Wrap(op, err)
}

func (s *Store) LenAll(ctx context.Context) (uint64, error) {
	return s.countPrefix("len all", recordPrefix)
}

func (s *Store) Len(ctx context.Context, host record.HostID, tag string) (uint64, error) {
	return s.countPrefix("len", chainScope(host, tag))
}

func (s *Store) LenTag(ctx context.Context, tag string) (uint64, error) {
	return s.countPrefix("len tag", tagScope(tag))
}

// indexed resolves up to limit ids found under an index prefix, starting at
// seek. limit 0 means no limit.
func indexed(txn *badgerdb.Txn, prefix, seek []byte, reverse bool, limit uint64) ([]store.Record, error) {
	opts := badgerdb.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.Reverse = reverse
	it := txn.NewIterator(opts)
	defer it.Close()

	rs := []store.Record{}
	for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
		id, err := it.Item().ValueCopy(nil)
		if err != nil {
			return nil, err
		}
		r, err := get(txn, record.ID(id))
		if err != nil {
			return nil, err
		}
		rs = append(rs, r)
		if limit > 0 && uint64(len(rs)) >= limit {
			break
		}
	}
	return rs, nil
}

func (s *Store) view(op string, fn func(txn *badgerdb.Txn) ([]store.Record, error)) ([]store.Record, error) {
	var rs []store.Record
	err := s.db.View(func(txn *badgerdb.Txn) error {
		var err error
		rs, err = fn(txn)
		return err
	})
	if err != nil {
		return nil, store.Wrap(op, err)
	}
	return rs, nil
}

func first(rs []store.Record) *store.Record {
	if len(rs) == 0 {
		return nil
	}
	return &rs[0]
}

func (s *Store) First(ctx context.Context, host record.HostID, tag string) (*store.Record, error) {
	scope := chainScope(host, tag)
	rs, err := s.view("first", func(txn *badgerdb.Txn) ([]store.Record, error) {
		return indexed(txn, scope, scope, false, 1)
	})
	return first(rs), err
}

func (s *Store) Last(ctx context.Context, host record.HostID, tag string) (*store.Record, error) {
	scope := chainScope(host, tag)
	// reverse iteration seeks to the largest key <= seek
	seek := append(append([]byte{}, scope...), 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff)
	rs, err := s.view("last", func(txn *badgerdb.Txn) ([]store.Record, error) {
		return indexed(txn, scope, seek, true, 1)
	})
	return first(rs), err
}

func (s *Store) Idx(ctx context.Context, host record.HostID, tag string, idx record.Idx) (*store.Record, error) {
	rs, err := s.Next(ctx, host, tag, idx, 1)
	if err != nil {
		return nil, store.Wrap("idx", err)
	}
	return first(rs), nil
}

// Next returns a contiguous page of up to limit records starting at idx.
func (s *Store) Next(ctx context.Context, host record.HostID, tag string, idx record.Idx, limit uint64) ([]store.Record, error) {
	if limit == 0 {
		return []store.Record{}, nil
	}
	rs, err := s.view("next", func(txn *badgerdb.Txn) ([]store.Record, error) {
		return indexed(txn, chainScope(host, tag), chainKey(host, tag, idx), false, limit)
	})
	if err != nil {
		return nil, err
	}
	for i, r := range rs {
		if r.Idx != idx+record.Idx(i) {
			return rs[:i], nil
		}
	}
	return rs, nil
}

func (s *Store) AllTagged(ctx context.Context, tag string) ([]store.Record, error) {
	scope := tagScope(tag)
	return s.view("all tagged", func(txn *badgerdb.Txn) ([]store.Record, error) {
		return indexed(txn, scope, scope, false, 0)
	})
}

// Status walks the chain index; the last key of each chain is its tip.
func (s *Store) Status(ctx context.Context) (record.Status, error) {
	status := record.NewStatus()
	err := s.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = chainPrefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			host, tag, idx, err := parseChainKey(it.Item().Key())
			if err != nil {
				return err
			}
			status.Set(host, tag, idx)
		}
		return nil
	})
	if err != nil {
		return record.Status{}, store.Wrap("status", err)
	}
	return status, nil
}

// IDs lists every record id in chain index order.
func (s *Store) IDs(ctx context.Context) ([]record.ID, error) {
	var ids []record.ID
	err := s.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = chainPrefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			id, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			ids = append(ids, record.ID(id))
		}
		return nil
	})
	return ids, store.Wrap("ids", err)
}
