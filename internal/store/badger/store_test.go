package badger

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/chainsync/internal/record"
	"github.com/roach88/chainsync/internal/store"
	"github.com/roach88/chainsync/internal/store/storetest"
)

func openMemory(t *testing.T) *Store {
	t.Helper()
	s, err := Open("", InMemory())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		return openMemory(t)
	})
}

func TestOpenOnDiskReopens(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := Open(dir)
	require.NoError(t, err)
	rs := storetest.NewChain("0190b1c4-6d7e-7c3a-9f00-00000000000a", "history", storetest.MustKey(t)).Next(t, 3)
	require.NoError(t, s.PushBatch(ctx, rs))
	require.NoError(t, s.Close())

	s, err = Open(dir)
	require.NoError(t, err)
	defer s.Close()

	n, err := s.LenAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), n)

	last, err := s.Last(ctx, rs[0].Host, "history")
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, rs[2], *last)
}

func TestChainKeyRoundTrip(t *testing.T) {
	host := record.HostID("0190b1c4-6d7e-7c3a-9f00-00000000000a")
	k := chainKey(host, "history", 258)

	gotHost, gotTag, gotIdx, err := parseChainKey(k)
	require.NoError(t, err)
	assert.Equal(t, host, gotHost)
	assert.Equal(t, "history", gotTag)
	assert.Equal(t, record.Idx(258), gotIdx)
}

func TestChainKeyEscapesNul(t *testing.T) {
	host := record.HostID("h\x00ost")
	k := chainKey(host, "a\x00b", 7)

	gotHost, gotTag, gotIdx, err := parseChainKey(k)
	require.NoError(t, err)
	assert.Equal(t, host, gotHost)
	assert.Equal(t, "a\x00b", gotTag)
	assert.Equal(t, record.Idx(7), gotIdx)
}

func TestChainScopesDoNotOverlap(t *testing.T) {
	a := chainScope("h", "a")
	ab := chainScope("h", "a\x00b")
	b := chainScope("h", "b")

	assert.False(t, bytes.HasPrefix(ab, a))
	assert.False(t, bytes.HasPrefix(a, ab))
	assert.Less(t, string(a), string(ab), "byte order follows tag order")
	assert.Less(t, string(ab), string(b))
	assert.False(t, bytes.HasPrefix(tagScope("a\x00b"), tagScope("a")))
}

func TestChainKeysSortByIdx(t *testing.T) {
	host := record.HostID("h")
	a := chainKey(host, "t", 9)
	b := chainKey(host, "t", 10)
	assert.Less(t, string(a), string(b))
}

func TestParseChainKeyRejectsMalformed(t *testing.T) {
	_, _, _, err := parseChainKey([]byte("c/short"))
	assert.Error(t, err)

	k := append([]byte("c/host-only"), 0, 0, 0, 0, 0, 0, 0, 0, 1)
	_, _, _, err = parseChainKey(k)
	assert.Error(t, err)

	k = append(chainScope("h", "t"), 1, 2, 3)
	_, _, _, err = parseChainKey(k)
	assert.Error(t, err, "idx must be exactly 8 bytes")
}

func TestReplaceKeepsIndexes(t *testing.T) {
	ctx := context.Background()
	s := openMemory(t)
	rs := storetest.NewChain("0190b1c4-6d7e-7c3a-9f00-00000000000a", "history", storetest.MustKey(t)).Next(t, 2)
	require.NoError(t, s.PushBatch(ctx, rs))

	changed := rs[1]
	changed.Data.Data = []byte("other")
	require.NoError(t, s.Replace(ctx, changed))

	got, err := s.Idx(ctx, changed.Host, "history", 1)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, []byte("other"), got.Data.Data)

	moved := rs[0]
	moved.Idx = 7
	assert.ErrorIs(t, s.Replace(ctx, moved), store.ErrNotFound)
}
