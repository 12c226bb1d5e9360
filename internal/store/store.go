package store

import (
	"context"

	"github.com/roach88/chainsync/internal/encryption"
	"github.com/roach88/chainsync/internal/record"
)

// Record is the stored form of a record.
type Record = record.Record[record.EncryptedData]

// Store is durable storage for encrypted records.
//
// All methods may fail with a *StorageError. Methods returning *Record return
// nil, nil when the requested record does not exist.
type Store interface {
	// Push appends one record. It is PushBatch of a single record.
	Push(ctx context.Context, r Record) error
	// PushBatch appends records atomically, preserving input order.
	PushBatch(ctx context.Context, rs []Record) error

	// Get returns the record with id, or an error matching ErrNotFound.
	Get(ctx context.Context, id record.ID) (Record, error)
	Delete(ctx context.Context, id record.ID) error
	DeleteAll(ctx context.Context) error

	LenAll(ctx context.Context) (uint64, error)
	Len(ctx context.Context, host record.HostID, tag string) (uint64, error)
	LenTag(ctx context.Context, tag string) (uint64, error)

	First(ctx context.Context, host record.HostID, tag string) (*Record, error)
	Last(ctx context.Context, host record.HostID, tag string) (*Record, error)
	// Next returns up to limit records of the chain starting at idx, in idx
	// order, stopping early at a gap.
	Next(ctx context.Context, host record.HostID, tag string, idx record.Idx, limit uint64) ([]Record, error)
	Idx(ctx context.Context, host record.HostID, tag string, idx record.Idx) (*Record, error)

	// Status snapshots the tip of every chain.
	Status(ctx context.Context) (record.Status, error)
	// AllTagged returns every record under tag across hosts, ordered by host
	// then idx.
	AllTagged(ctx context.Context, tag string) ([]Record, error)

	ReEncrypt(ctx context.Context, oldKey, newKey encryption.Key) error
	Verify(ctx context.Context, key encryption.Key) error
	Purge(ctx context.Context, key encryption.Key) error

	Close() error
}
