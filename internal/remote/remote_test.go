package remote

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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

func startServer(t *testing.T, st store.Store, opts ...ServerOption) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(NewServer(st, opts...))
	t.Cleanup(srv.Close)
	return srv
}

func newClient(srv *httptest.Server, token string) *HTTPClient {
	return NewHTTPClient(Config{Address: srv.URL, Token: token, Timeout: 5 * time.Second, ConnectTimeout: time.Second})
}

func TestPushStatusNext(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)
	c := newClient(startServer(t, st), "")

	status, err := c.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, status.Len())

	history := storetest.NewChain(hostA, "history", storetest.MustKey(t)).Next(t, 5)
	kv := storetest.NewChain(hostB, "kv", storetest.MustKey(t)).Next(t, 2)
	require.NoError(t, c.Push(ctx, history[:3]))
	require.NoError(t, c.Push(ctx, append(history[3:], kv...)))

	status, err = c.Status(ctx)
	require.NoError(t, err)
	idx, ok := status.Get(hostA, "history")
	require.True(t, ok)
	assert.Equal(t, record.Idx(4), idx)
	idx, ok = status.Get(hostB, "kv")
	require.True(t, ok)
	assert.Equal(t, record.Idx(1), idx)

	page, err := c.Next(ctx, hostA, "history", 1, 3)
	require.NoError(t, err)
	assert.Equal(t, history[1:4], page)

	page, err = c.Next(ctx, hostA, "missing", 0, 10)
	require.NoError(t, err)
	assert.Empty(t, page)
}

func TestPushEmptyBatchIsNoop(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request %s %s", r.Method, r.URL)
	}))
	defer srv.Close()

	require.NoError(t, newClient(srv, "").Push(context.Background(), nil))
}

func TestPushConflict(t *testing.T) {
	ctx := context.Background()
	c := newClient(startServer(t, openStore(t)), "")
	rs := storetest.NewChain(hostA, "history", storetest.MustKey(t)).Next(t, 2)
	require.NoError(t, c.Push(ctx, rs))

	err := c.Push(ctx, rs[1:])
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransport)
	assert.True(t, store.IsConflict(err))

	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.StatusConflict, te.Status)
}

func TestPushRejectsGap(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)
	c := newClient(startServer(t, st), "")
	rs := storetest.NewChain(hostA, "history", storetest.MustKey(t)).Next(t, 4)

	err := c.Push(ctx, rs[2:])
	require.Error(t, err)
	assert.True(t, store.IsConflict(err))

	n, err := st.LenAll(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPushRejectsMalformedChainNames(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)
	c := newClient(startServer(t, st), "")
	good := storetest.NewChain(hostA, "history", storetest.MustKey(t)).Next(t, 1)
	require.NoError(t, c.Push(ctx, good))

	tests := []struct {
		name string
		rs   []store.Record
	}{
		{"nul in tag", storetest.NewChain(hostB, "a\x00b", storetest.MustKey(t)).Next(t, 1)},
		{"nul in host", storetest.NewChain("h\x00b", "history", storetest.MustKey(t)).Next(t, 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.Push(ctx, tt.rs)
			var te *TransportError
			require.ErrorAs(t, err, &te)
			assert.Equal(t, http.StatusBadRequest, te.Status)
		})
	}

	t.Run("idx out of range", func(t *testing.T) {
		r := storetest.NewChain(hostB, "kv", storetest.MustKey(t)).Next(t, 1)[0]
		r.Idx = store.MaxIdx + 1
		err := c.Push(ctx, []store.Record{r})
		var te *TransportError
		require.ErrorAs(t, err, &te)
		assert.Equal(t, http.StatusBadRequest, te.Status)
	})

	status, err := c.Status(ctx)
	require.NoError(t, err, "status keeps working for every host")
	assert.Equal(t, 1, status.Len())
}

func TestPushRejectsOutOfOrderBatch(t *testing.T) {
	ctx := context.Background()
	c := newClient(startServer(t, openStore(t)), "")
	rs := storetest.NewChain(hostA, "history", storetest.MustKey(t)).Next(t, 3)

	err := c.Push(ctx, []store.Record{rs[0], rs[2], rs[1]})
	assert.True(t, store.IsConflict(err))
}

func TestToken(t *testing.T) {
	ctx := context.Background()
	srv := startServer(t, openStore(t), WithToken("s3cret"))

	_, err := newClient(srv, "").Status(ctx)
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.StatusUnauthorized, te.Status)

	_, err = newClient(srv, "s3cret").Status(ctx)
	require.NoError(t, err)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode, "health check needs no token")
}

func TestNextValidatesQuery(t *testing.T) {
	srv := startServer(t, openStore(t))

	for _, q := range []string{
		"",
		"?host=h&tag=t&start=x&count=1",
		"?host=h&tag=t&start=0&count=-1",
		"?tag=t&start=0&count=1",
	} {
		resp, err := http.Get(srv.URL + "/api/v0/record/next" + q)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, q)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ctx := context.Background()
	srv := startServer(t, openStore(t), WithRegistry(prometheus.NewRegistry()))
	require.NoError(t, newClient(srv, "").Push(ctx, storetest.NewChain(hostA, "history", storetest.MustKey(t)).Next(t, 3)))

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `chainsync_server_records_received_total{tag="history"} 3`)
}

func TestUnreachableServer(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	_, err := NewHTTPClient(Config{Address: addr, Timeout: time.Second, ConnectTimeout: time.Second}).Status(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransport)

	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Zero(t, te.Status)
}

func TestCanceledContext(t *testing.T) {
	c := newClient(startServer(t, openStore(t)), "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Status(ctx)
	assert.ErrorIs(t, err, ErrTransport)
	assert.ErrorIs(t, err, context.Canceled)
}
