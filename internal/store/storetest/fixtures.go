// Package storetest holds the conformance suite every store.Store backend must
// pass, plus record fixtures shared by tests of packages built on a Store.
package storetest

import (
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/roach88/chainsync/internal/encryption"
	"github.com/roach88/chainsync/internal/record"
	"github.com/roach88/chainsync/internal/store"
)

// TB is the part of testing.TB the fixtures need; *rapid.T satisfies it too.
type TB interface {
	Helper()
	Errorf(format string, args ...any)
	FailNow()
}

// Chain builds encrypted records for one chain.
type Chain struct {
	Host   record.HostID
	Tag    string
	Key    encryption.Key
	Scheme string
	Reg    *encryption.Registry

	builder *record.Builder
	tail    *store.Record
	n       int
}

// NewChain returns a chain builder sealing records with the v1 scheme.
// Record ids are deterministic ("<host>-<tag>-<n>") and timestamps come from a
// fake clock, so fixtures are stable across runs.
func NewChain(host record.HostID, tag string, key encryption.Key) *Chain {
	c := &Chain{
		Host:   host,
		Tag:    tag,
		Key:    key,
		Scheme: encryption.V1Name,
		Reg:    encryption.Default(),
	}
	c.builder = &record.Builder{
		Host:    host,
		Version: record.Version,
		Clock:   clockwork.NewFakeClockAt(time.Unix(1700000000, 0)),
		NewID: func() record.ID {
			c.n++
			return record.ID(fmt.Sprintf("%s-%s-%d", host, tag, c.n-1))
		},
	}
	return c
}

// Next builds the next n records with payloads "<tag> <idx>".
func (c *Chain) Next(t TB, n int) []store.Record {
	t.Helper()
	out := make([]store.Record, 0, n)
	for i := 0; i < n; i++ {
		idx := uint64(0)
		if c.tail != nil {
			idx = c.tail.Idx + 1
		}
		pt := record.DecryptedData(fmt.Sprintf("%s %d", c.Tag, idx))
		rec, err := c.Reg.EncryptRecord(c.Scheme, c.builder.Next(c.Tag, c.tail, pt), c.Key)
		require.NoError(t, err)
		out = append(out, rec)
		c.tail = &out[len(out)-1]
	}
	return out
}

// Tail returns the last record built, or nil.
func (c *Chain) Tail() *store.Record {
	return c.tail
}

// MustKey generates a key or fails the test.
func MustKey(t TB) encryption.Key {
	t.Helper()
	k, err := encryption.GenerateKey()
	require.NoError(t, err)
	return k
}
