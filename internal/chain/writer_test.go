package chain

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/chainsync/internal/encryption"
	"github.com/roach88/chainsync/internal/keys"
	"github.com/roach88/chainsync/internal/record"
	"github.com/roach88/chainsync/internal/store"
	"github.com/roach88/chainsync/internal/store/badger"
	"github.com/roach88/chainsync/internal/store/storetest"
)

const (
	hostA record.HostID = "0190b1c4-6d7e-7c3a-9f00-00000000000a"
	hostB record.HostID = "0190b1c4-6d7e-7c3a-9f00-00000000000b"
)

func openStore(t *testing.T) store.Store {
	t.Helper()
	s, err := badger.Open("", badger.InMemory())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAppendBuildsChain(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)
	key := storetest.MustKey(t)
	w := NewWriter(st, hostA, encryption.V1Name, key, nil)

	var rs []store.Record
	for _, cmd := range []string{"ls", "cd /tmp", "make test"} {
		r, err := w.Append(ctx, "history", []byte(cmd))
		require.NoError(t, err)
		rs = append(rs, r)
	}

	require.NoError(t, record.ValidateChain(nil, rs))

	stored, err := st.Next(ctx, hostA, "history", 0, 10)
	require.NoError(t, err)
	assert.Equal(t, rs, stored)

	dec, err := encryption.Default().DecryptRecord(stored[2], key)
	require.NoError(t, err)
	assert.Equal(t, "make test", string(dec.Data))
}

func TestAppendRefusesStaleKey(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)
	clock := clockwork.NewFakeClockAt(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))
	reg := keys.NewRegistry(st, clock)
	old, rotated := storetest.MustKey(t), storetest.MustKey(t)

	w := NewWriter(st, hostA, encryption.V1Name, old, keys.NewGuard(reg, hostA, nil))
	_, err := w.Append(ctx, "history", []byte("ls"))
	require.NoError(t, err)

	clock.Advance(time.Minute)
	_, err = reg.Supersede(ctx, hostB, old, rotated)
	require.NoError(t, err)

	_, err = w.Append(ctx, "history", []byte("rm -rf build"))
	require.Error(t, err)
	assert.True(t, keys.IsStaleKey(err))

	n, err := st.Len(ctx, hostA, "history")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), n, "nothing is written under a stale key")
}

func TestAppendKeepsTagsIndependent(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)
	w := NewWriter(st, hostA, encryption.NoneName, storetest.MustKey(t), nil)

	_, err := w.Append(ctx, "history", []byte("a"))
	require.NoError(t, err)
	kv, err := w.Append(ctx, "kv", []byte("b"))
	require.NoError(t, err)
	assert.Equal(t, record.Idx(0), kv.Idx)
	assert.Nil(t, kv.Parent)
}

func TestAppendNormalizesTag(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)
	w := NewWriter(st, hostA, encryption.NoneName, storetest.MustKey(t), nil)

	_, err := w.Append(ctx, "cafe\u0301", []byte("a"))
	require.NoError(t, err)
	second, err := w.Append(ctx, "caf\u00e9", []byte("b"))
	require.NoError(t, err)
	assert.Equal(t, "caf\u00e9", second.Tag)
	assert.Equal(t, record.Idx(1), second.Idx, "both spellings extend one chain")
}
