package recordsync

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/chainsync/internal/record"
	"github.com/roach88/chainsync/internal/store"
	"github.com/roach88/chainsync/internal/store/badger"
)

const (
	hostA record.HostID = "0190b1c4-6d7e-7c3a-9f00-00000000000a"
	hostB record.HostID = "0190b1c4-6d7e-7c3a-9f00-00000000000b"
)

func openStore(t testing.TB) store.Store {
	t.Helper()
	s, err := badger.Open("", badger.InMemory())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// storeRemote serves the remote side straight from a Store.
type storeRemote struct {
	st store.Store

	pushes, nexts int
	// failPush and failNext fail the nth call (1-based) when set.
	failPush, failNext int
	// onPush runs after every successful push.
	onPush func()
	// rewrite lets a test tamper with pages before they are returned.
	rewrite func([]store.Record) []store.Record
}

var errInjected = errors.New("injected failure")

func (r *storeRemote) Status(ctx context.Context) (record.Status, error) {
	return r.st.Status(ctx)
}

func (r *storeRemote) Next(ctx context.Context, host record.HostID, tag string, start record.Idx, count uint64) ([]store.Record, error) {
	r.nexts++
	if r.nexts == r.failNext {
		return nil, errInjected
	}
	page, err := r.st.Next(ctx, host, tag, start, count)
	if err != nil {
		return nil, err
	}
	if r.rewrite != nil {
		page = r.rewrite(page)
	}
	return page, nil
}

func (r *storeRemote) Push(ctx context.Context, rs []store.Record) error {
	r.pushes++
	if r.pushes == r.failPush {
		return errInjected
	}
	if err := r.st.PushBatch(ctx, rs); err != nil {
		return err
	}
	if r.onPush != nil {
		r.onPush()
	}
	return nil
}

func mustStatus(t testing.TB, st store.Store) record.Status {
	t.Helper()
	s, err := st.Status(context.Background())
	require.NoError(t, err)
	return s
}

func status(entries map[record.HostID]map[string]record.Idx) record.Status {
	s := record.NewStatus()
	for host, tags := range entries {
		for tag, idx := range tags {
			s.Set(host, tag, idx)
		}
	}
	return s
}
