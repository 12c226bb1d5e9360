package storetest

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/chainsync/internal/encryption"
	"github.com/roach88/chainsync/internal/record"
	"github.com/roach88/chainsync/internal/store"
)

// Factory opens an empty store for one test. The factory registers cleanup.
type Factory func(t *testing.T) store.Store

const (
	hostA record.HostID = "0190b1c4-6d7e-7c3a-9f00-00000000000a"
	hostB record.HostID = "0190b1c4-6d7e-7c3a-9f00-00000000000b"
)

// Run executes the conformance suite against stores produced by open.
func Run(t *testing.T, open Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, open Factory)
	}{
		{"PushAndGet", testPushAndGet},
		{"GetMissing", testGetMissing},
		{"DuplicateID", testDuplicateID},
		{"DuplicatePosition", testDuplicatePosition},
		{"BatchIsAtomic", testBatchIsAtomic},
		{"EmptyBatch", testEmptyBatch},
		{"Lengths", testLengths},
		{"FirstLast", testFirstLast},
		{"Next", testNext},
		{"NextStopsAtGap", testNextStopsAtGap},
		{"Idx", testIdx},
		{"Status", testStatus},
		{"NulInTag", testNulInTag},
		{"IdxOutOfRange", testIdxOutOfRange},
		{"AllTagged", testAllTagged},
		{"Delete", testDelete},
		{"DeleteAll", testDeleteAll},
		{"ChainInvariant", testChainInvariant},
		{"ReEncrypt", testReEncrypt},
		{"ReEncryptInterrupted", testReEncryptInterrupted},
		{"ReEncryptResumes", testReEncryptResumes},
		{"Verify", testVerify},
		{"Purge", testPurge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, open)
		})
	}
}

func push(t *testing.T, s store.Store, rs []store.Record) {
	t.Helper()
	require.NoError(t, s.PushBatch(context.Background(), rs))
}

func testPushAndGet(t *testing.T, open Factory) {
	ctx := context.Background()
	s := open(t)
	c := NewChain(hostA, "history", MustKey(t))
	rs := c.Next(t, 2)

	require.NoError(t, s.Push(ctx, rs[0]))
	require.NoError(t, s.Push(ctx, rs[1]))

	got, err := s.Get(ctx, rs[1].ID)
	require.NoError(t, err)
	assert.Equal(t, rs[1], got)

	got, err = s.Get(ctx, rs[0].ID)
	require.NoError(t, err)
	assert.Nil(t, got.Parent)
	assert.Equal(t, rs[0], got)
}

func testGetMissing(t *testing.T, open Factory) {
	_, err := open(t).Get(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, store.IsNotFound(err))

	var se *store.StorageError
	assert.ErrorAs(t, err, &se)
}

func testDuplicateID(t *testing.T, open Factory) {
	ctx := context.Background()
	s := open(t)
	rs := NewChain(hostA, "history", MustKey(t)).Next(t, 1)
	push(t, s, rs)

	dup := rs[0]
	dup.Tag = "elsewhere"
	err := s.Push(ctx, dup)
	require.Error(t, err)
	assert.True(t, store.IsConflict(err), "got %v", err)
}

func testDuplicatePosition(t *testing.T, open Factory) {
	ctx := context.Background()
	s := open(t)
	key := MustKey(t)
	push(t, s, NewChain(hostA, "history", key).Next(t, 1))

	// a second writer producing idx 0 of the same chain
	other := NewChain(hostA, "history", key)
	other.builder.NewID = func() record.ID { return "racing-writer" }
	err := s.Push(ctx, other.Next(t, 1)[0])
	require.Error(t, err)
	assert.True(t, store.IsConflict(err), "got %v", err)
}

func testBatchIsAtomic(t *testing.T, open Factory) {
	ctx := context.Background()
	s := open(t)
	rs := NewChain(hostA, "history", MustKey(t)).Next(t, 3)
	push(t, s, rs[:1])

	// rs[0] is already stored, so the batch fails on its last record
	err := s.PushBatch(ctx, []store.Record{rs[1], rs[2], rs[0]})
	require.Error(t, err)

	n, err := s.LenAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), n)
}

func testEmptyBatch(t *testing.T, open Factory) {
	assert.NoError(t, open(t).PushBatch(context.Background(), nil))
}

func testLengths(t *testing.T, open Factory) {
	ctx := context.Background()
	s := open(t)
	key := MustKey(t)
	push(t, s, NewChain(hostA, "history", key).Next(t, 3))
	push(t, s, NewChain(hostA, "kv", key).Next(t, 2))
	push(t, s, NewChain(hostB, "history", key).Next(t, 4))

	all, err := s.LenAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(9), all)

	n, err := s.Len(ctx, hostA, "history")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), n)

	n, err = s.Len(ctx, hostB, "kv")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), n)

	n, err = s.LenTag(ctx, "history")
	require.NoError(t, err)
	assert.Equal(t, uint64(7), n)
}

func testFirstLast(t *testing.T, open Factory) {
	ctx := context.Background()
	s := open(t)

	first, err := s.First(ctx, hostA, "history")
	require.NoError(t, err)
	assert.Nil(t, first)
	last, err := s.Last(ctx, hostA, "history")
	require.NoError(t, err)
	assert.Nil(t, last)

	rs := NewChain(hostA, "history", MustKey(t)).Next(t, 5)
	push(t, s, rs)

	first, err = s.First(ctx, hostA, "history")
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, rs[0], *first)

	last, err = s.Last(ctx, hostA, "history")
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, rs[4], *last)
}

func testNext(t *testing.T, open Factory) {
	ctx := context.Background()
	s := open(t)
	rs := NewChain(hostA, "history", MustKey(t)).Next(t, 10)
	push(t, s, rs)
	push(t, s, NewChain(hostB, "history", MustKey(t)).Next(t, 3))

	page, err := s.Next(ctx, hostA, "history", 0, 4)
	require.NoError(t, err)
	assert.Equal(t, rs[0:4], page)

	page, err = s.Next(ctx, hostA, "history", 4, 4)
	require.NoError(t, err)
	assert.Equal(t, rs[4:8], page)

	page, err = s.Next(ctx, hostA, "history", 8, 4)
	require.NoError(t, err)
	assert.Equal(t, rs[8:10], page)

	page, err = s.Next(ctx, hostA, "history", 10, 4)
	require.NoError(t, err)
	assert.Empty(t, page)

	page, err = s.Next(ctx, hostA, "missing", 0, 4)
	require.NoError(t, err)
	assert.Empty(t, page)

	page, err = s.Next(ctx, hostA, "history", 0, 0)
	require.NoError(t, err)
	assert.Empty(t, page)
}

func testNextStopsAtGap(t *testing.T, open Factory) {
	ctx := context.Background()
	s := open(t)
	rs := NewChain(hostA, "history", MustKey(t)).Next(t, 6)
	push(t, s, rs)
	require.NoError(t, s.Delete(ctx, rs[3].ID))

	page, err := s.Next(ctx, hostA, "history", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, rs[1:3], page)

	page, err = s.Next(ctx, hostA, "history", 4, 10)
	require.NoError(t, err)
	assert.Equal(t, rs[4:6], page)

	// a page that starts inside the gap is empty
	page, err = s.Next(ctx, hostA, "history", 3, 10)
	require.NoError(t, err)
	assert.Empty(t, page)
}

func testIdx(t *testing.T, open Factory) {
	ctx := context.Background()
	s := open(t)
	rs := NewChain(hostA, "history", MustKey(t)).Next(t, 3)
	push(t, s, rs)

	got, err := s.Idx(ctx, hostA, "history", 2)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, rs[2], *got)

	got, err = s.Idx(ctx, hostA, "history", 3)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func testStatus(t *testing.T, open Factory) {
	ctx := context.Background()
	s := open(t)

	status, err := s.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, status.Len())

	key := MustKey(t)
	push(t, s, NewChain(hostA, "history", key).Next(t, 6))
	push(t, s, NewChain(hostB, "kv", key).Next(t, 4))

	status, err = s.Status(ctx)
	require.NoError(t, err)
	want := record.NewStatus()
	want.Set(hostA, "history", 5)
	want.Set(hostB, "kv", 3)
	assert.Equal(t, want, status)
}

func testNulInTag(t *testing.T, open Factory) {
	ctx := context.Background()
	s := open(t)
	key := MustKey(t)
	push(t, s, NewChain(hostA, "a", key).Next(t, 2))
	push(t, s, NewChain(hostA, "a\x00b", key).Next(t, 3))

	status, err := s.Status(ctx)
	require.NoError(t, err)
	want := record.NewStatus()
	want.Set(hostA, "a", 1)
	want.Set(hostA, "a\x00b", 2)
	assert.Equal(t, want, status)

	n, err := s.Len(ctx, hostA, "a")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), n)

	tagged, err := s.AllTagged(ctx, "a")
	require.NoError(t, err)
	assert.Len(t, tagged, 2)

	last, err := s.Last(ctx, hostA, "a")
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, record.Idx(1), last.Idx)
}

func testIdxOutOfRange(t *testing.T, open Factory) {
	ctx := context.Background()
	s := open(t)
	rs := NewChain(hostA, "history", MustKey(t)).Next(t, 2)
	r := rs[1]
	r.Idx = math.MaxInt64 + 1

	err := s.Push(ctx, r)
	require.ErrorIs(t, err, store.ErrIdxRange)
	assert.NotErrorIs(t, err, store.ErrConflict)

	n, err := s.LenAll(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	got, err := s.Idx(ctx, hostA, "history", math.MaxInt64+1)
	require.NoError(t, err)
	assert.Nil(t, got)

	page, err := s.Next(ctx, hostA, "history", math.MaxUint64, 10)
	require.NoError(t, err)
	assert.Empty(t, page)
}

func testAllTagged(t *testing.T, open Factory) {
	ctx := context.Background()
	s := open(t)
	key := MustKey(t)
	b := NewChain(hostB, "history", key).Next(t, 2)
	a := NewChain(hostA, "history", key).Next(t, 2)
	push(t, s, b)
	push(t, s, NewChain(hostA, "kv", key).Next(t, 2))
	push(t, s, a)

	got, err := s.AllTagged(ctx, "history")
	require.NoError(t, err)
	assert.Equal(t, []store.Record{a[0], a[1], b[0], b[1]}, got)

	got, err = s.AllTagged(ctx, "nothing")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func testDelete(t *testing.T, open Factory) {
	ctx := context.Background()
	s := open(t)
	rs := NewChain(hostA, "history", MustKey(t)).Next(t, 2)
	push(t, s, rs)

	require.NoError(t, s.Delete(ctx, rs[1].ID))
	_, err := s.Get(ctx, rs[1].ID)
	assert.True(t, store.IsNotFound(err))

	require.NoError(t, s.Delete(ctx, "never-existed"))

	n, err := s.LenAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), n)
}

func testDeleteAll(t *testing.T, open Factory) {
	ctx := context.Background()
	s := open(t)
	key := MustKey(t)
	push(t, s, NewChain(hostA, "history", key).Next(t, 3))
	push(t, s, NewChain(hostB, "kv", key).Next(t, 3))

	require.NoError(t, s.DeleteAll(ctx))

	n, err := s.LenAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), n)
	status, err := s.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, status.Len())
}

func testChainInvariant(t *testing.T, open Factory) {
	ctx := context.Background()
	s := open(t)
	c := NewChain(hostA, "history", MustKey(t))
	push(t, s, c.Next(t, 4))
	push(t, s, c.Next(t, 3))

	all, err := s.Next(ctx, hostA, "history", 0, 100)
	require.NoError(t, err)
	require.Len(t, all, 7)
	assert.NoError(t, record.ValidateChain(nil, all))
	for i, r := range all {
		if i == 0 {
			assert.Nil(t, r.Parent)
			continue
		}
		require.NotNil(t, r.Parent)
		assert.Equal(t, all[i-1].ID, *r.Parent)
	}
}

func decryptsUnder(reg *encryption.Registry, r store.Record, key encryption.Key) bool {
	_, err := reg.DecryptRecord(r, key)
	return err == nil
}

func testReEncrypt(t *testing.T, open Factory) {
	ctx := context.Background()
	s := open(t)
	oldKey, newKey := MustKey(t), MustKey(t)
	rs := NewChain(hostA, "history", oldKey).Next(t, 5)
	push(t, s, rs)

	require.NoError(t, s.ReEncrypt(ctx, oldKey, newKey))
	require.NoError(t, s.Verify(ctx, newKey))
	assert.ErrorIs(t, s.Verify(ctx, oldKey), encryption.ErrDecryption)

	reg := encryption.Default()
	for _, r := range rs {
		got, err := s.Get(ctx, r.ID)
		require.NoError(t, err)
		assert.False(t, decryptsUnder(reg, got, oldKey), "record %d still readable with old key", r.Idx)

		dec, err := reg.DecryptRecord(got, newKey)
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("history %d", r.Idx), string(dec.Data))

		// identity survives re-encryption
		assert.Equal(t, r.ID, got.ID)
		assert.Equal(t, r.Idx, got.Idx)
		assert.Equal(t, r.Parent, got.Parent)
		assert.Equal(t, r.Host, got.Host)
		assert.Equal(t, r.Tag, got.Tag)
	}
}

func testReEncryptInterrupted(t *testing.T, open Factory) {
	ctx := context.Background()
	s := open(t)
	oldKey, newKey, strayKey := MustKey(t), MustKey(t), MustKey(t)

	c := NewChain(hostA, "history", oldKey)
	rs := c.Next(t, 3)
	c.Key = strayKey
	rs = append(rs, c.Next(t, 1)...)
	c.Key = oldKey
	rs = append(rs, c.Next(t, 2)...)
	push(t, s, rs)

	// records are visited in chain order, so the stray record at idx 3 stops
	// the migration after 3 of 6 records
	err := s.ReEncrypt(ctx, oldKey, newKey)
	require.Error(t, err)
	assert.ErrorIs(t, err, encryption.ErrDecryption)

	reg := encryption.Default()
	for _, r := range rs {
		got, err := s.Get(ctx, r.ID)
		require.NoError(t, err)
		switch {
		case r.Idx < 3:
			assert.True(t, decryptsUnder(reg, got, newKey), "idx %d should be migrated", r.Idx)
			assert.False(t, decryptsUnder(reg, got, oldKey), "idx %d should not open with old key", r.Idx)
		case r.Idx == 3:
			assert.True(t, decryptsUnder(reg, got, strayKey))
		default:
			assert.True(t, decryptsUnder(reg, got, oldKey), "idx %d should be untouched", r.Idx)
			assert.False(t, decryptsUnder(reg, got, newKey))
		}
	}
	assert.Error(t, s.Verify(ctx, newKey))
	assert.Error(t, s.Verify(ctx, oldKey))
}

func testReEncryptResumes(t *testing.T, open Factory) {
	ctx := context.Background()
	s := open(t)
	oldKey, newKey := MustKey(t), MustKey(t)

	// the first two records look like a previous run already moved them
	c := NewChain(hostA, "history", newKey)
	rs := c.Next(t, 2)
	c.Key = oldKey
	rs = append(rs, c.Next(t, 3)...)
	push(t, s, rs)

	require.NoError(t, s.ReEncrypt(ctx, oldKey, newKey))
	require.NoError(t, s.Verify(ctx, newKey))
}

func testVerify(t *testing.T, open Factory) {
	ctx := context.Background()
	s := open(t)
	key := MustKey(t)

	require.NoError(t, s.Verify(ctx, key), "empty store verifies under any key")

	push(t, s, NewChain(hostA, "history", key).Next(t, 3))
	require.NoError(t, s.Verify(ctx, key))

	err := s.Verify(ctx, MustKey(t))
	assert.ErrorIs(t, err, encryption.ErrDecryption)

	n, err := s.LenAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), n, "verify must not modify the store")
}

func testPurge(t *testing.T, open Factory) {
	ctx := context.Background()
	s := open(t)
	keep, drop := MustKey(t), MustKey(t)

	kept := NewChain(hostA, "history", keep).Next(t, 3)
	push(t, s, kept)
	push(t, s, NewChain(hostB, "history", drop).Next(t, 2))

	plain := NewChain(hostB, "key", keep)
	plain.Scheme = encryption.NoneName
	meta := plain.Next(t, 1)
	push(t, s, meta)

	require.NoError(t, s.Purge(ctx, keep))
	require.NoError(t, s.Verify(ctx, keep))

	n, err := s.LenAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), n)

	n, err = s.Len(ctx, hostB, "history")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), n)

	_, err = s.Get(ctx, meta[0].ID)
	assert.NoError(t, err, "unencrypted records are readable under any key and survive a purge")
}
