package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/chainsync/internal/keys"
	"github.com/roach88/chainsync/internal/remote"
	"github.com/roach88/chainsync/internal/store/sqlite"
)

const (
	hostA = "0190b1c4-6d7e-7c3a-9f00-00000000000a"
	hostB = "0190b1c4-6d7e-7c3a-9f00-00000000000b"
)

func startServer(t *testing.T) string {
	t.Helper()
	st, err := sqlite.Open(filepath.Join(t.TempDir(), "server.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	srv := httptest.NewServer(remote.NewServer(st))
	t.Cleanup(srv.Close)
	return srv.URL
}

type testHost struct {
	dir    string
	config string
}

func newTestHost(t *testing.T, serverURL, host string) testHost {
	t.Helper()
	dir := t.TempDir()
	config := fmt.Sprintf(`sync_address: %s
record_store_path: %s
key_path: %s
host_id_path: %s
page_size: 2
`, serverURL, filepath.Join(dir, "records.db"), filepath.Join(dir, "key"), filepath.Join(dir, "host_id"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(config), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "host_id"), []byte(host+"\n"), 0o600))
	return testHost{dir: dir, config: filepath.Join(dir, "config.yaml")}
}

func (h testHost) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(buf)
	cmd.SetErr(io.Discard)
	cmd.SetIn(bytes.NewReader(nil))
	cmd.SetArgs(append([]string{"--config", h.config}, args...))
	err := cmd.Execute()
	return buf.String(), err
}

func (h testHost) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := h.run(t, args...)
	require.NoError(t, err, out)
	return out
}

func (h testHost) shareKey(t *testing.T, from testHost) {
	t.Helper()
	b, err := os.ReadFile(filepath.Join(from.dir, "key"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(h.dir, "key"), b, 0o600))
}

func TestAppendPushPull(t *testing.T) {
	url := startServer(t)
	a, b := newTestHost(t, url, hostA), newTestHost(t, url, hostB)

	assert.Equal(t, "appended history#0\n", a.mustRun(t, "append", "history", "git", "status"))
	assert.Equal(t, "appended history#1\n", a.mustRun(t, "append", "history", "make"))
	assert.Equal(t, "appended kv#0\n", a.mustRun(t, "append", "kv", "theme=dark"))

	// history 2 + kv 1 + the key registration
	assert.Equal(t, "uploaded 4 records, downloaded 0 records\n", a.mustRun(t, "push"))
	assert.Equal(t, "uploaded 0 records, downloaded 0 records\n", a.mustRun(t, "push"))

	b.shareKey(t, a)
	assert.Equal(t, "uploaded 0 records, downloaded 4 records\n", b.mustRun(t, "pull"))
	b.mustRun(t, "key", "verify")

	assert.Equal(t, "appended history#0\n", b.mustRun(t, "append", "history", "ls"))
	assert.Equal(t, "uploaded 1 records, downloaded 0 records\n", b.mustRun(t, "sync"))
	assert.Equal(t, "uploaded 0 records, downloaded 1 records\n", a.mustRun(t, "sync"))
}

func TestStatusJSON(t *testing.T) {
	url := startServer(t)
	a := newTestHost(t, url, hostA)
	a.mustRun(t, "append", "history", "one")
	a.mustRun(t, "append", "history", "two")

	var resp struct {
		Status string       `json:"status"`
		Data   StatusReport `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(a.mustRun(t, "--format", "json", "status")), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, hostA, string(resp.Data.Host))
	assert.Equal(t, []ChainStatus{
		{Host: hostA, Tag: "history", Local: 1, Remote: -1, Action: "upload 0..1"},
		{Host: hostA, Tag: "key", Local: 0, Remote: -1, Action: "upload 0..0"},
	}, resp.Data.Chains)
	assert.Equal(t, 2, resp.Data.Counts.Upload)
	assert.Equal(t, uint64(3), resp.Data.Counts.UploadRecords)
}

func TestForcePull(t *testing.T) {
	url := startServer(t)
	a := newTestHost(t, url, hostA)
	a.mustRun(t, "append", "history", "kept")
	a.mustRun(t, "push")
	a.mustRun(t, "append", "history", "never pushed")

	assert.Equal(t, "uploaded 0 records, downloaded 2 records\n", a.mustRun(t, "pull", "--force"))
	out := a.mustRun(t, "status")
	assert.Contains(t, out, "0 to upload (0 records), 0 to download (0 records), 2 up to date")
}

func TestStaleKeyRefusesAppend(t *testing.T) {
	url := startServer(t)
	a, b := newTestHost(t, url, hostA), newTestHost(t, url, hostB)
	a.mustRun(t, "append", "history", "x")
	a.mustRun(t, "push")

	// b has its own key and learns about a's registration
	b.mustRun(t, "key", "generate")
	b.mustRun(t, "pull")

	_, err := b.run(t, "append", "history", "y")
	require.Error(t, err)
	assert.Equal(t, ExitStaleKey, GetExitCode(err))
}

func TestFreshHostCannotReplaceFleetKey(t *testing.T) {
	url := startServer(t)
	a, b := newTestHost(t, url, hostA), newTestHost(t, url, hostB)
	a.mustRun(t, "append", "history", "x")
	a.mustRun(t, "sync")

	// b has never pulled and holds a key of its own
	_, err := b.run(t, "append", "history", "y")
	require.Error(t, err)
	assert.ErrorIs(t, err, keys.ErrUnsyncedRegistry)

	assert.Equal(t, "uploaded 0 records, downloaded 2 records\n", b.mustRun(t, "sync"))
	_, err = b.run(t, "append", "history", "y")
	assert.Equal(t, ExitStaleKey, GetExitCode(err))

	assert.Equal(t, "uploaded 0 records, downloaded 0 records\n", a.mustRun(t, "sync"))
	assert.Equal(t, "appended history#1\n", a.mustRun(t, "append", "history", "z"))
}

func TestSyncFailureReportsCounts(t *testing.T) {
	st, err := sqlite.Open(filepath.Join(t.TempDir(), "server.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	srv := httptest.NewServer(remote.NewServer(st))

	a := newTestHost(t, srv.URL, hostA)
	a.mustRun(t, "append", "history", "x")
	srv.Close()

	out, err := a.run(t, "sync")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "uploaded 0 records, downloaded 0 records\nstopped early:")
}

func TestKeyRotate(t *testing.T) {
	url := startServer(t)
	a := newTestHost(t, url, hostA)
	a.mustRun(t, "append", "history", "before")
	oldKey, err := os.ReadFile(filepath.Join(a.dir, "key"))
	require.NoError(t, err)

	out := a.mustRun(t, "key", "rotate")
	assert.Contains(t, out, "rotated from")

	newKey, err := os.ReadFile(filepath.Join(a.dir, "key"))
	require.NoError(t, err)
	assert.NotEqual(t, oldKey, newKey)
	_, err = os.Stat(filepath.Join(a.dir, "key.next"))
	assert.True(t, os.IsNotExist(err), "pending key is removed")

	a.mustRun(t, "key", "verify")
	assert.Equal(t, "appended history#1\n", a.mustRun(t, "append", "history", "after"))

	require.NoError(t, os.WriteFile(filepath.Join(a.dir, "key"), oldKey, 0o600))
	_, err = a.run(t, "key", "verify")
	assert.Equal(t, ExitFailure, GetExitCode(err))

	a.mustRun(t, "key", "purge")
	out = a.mustRun(t, "status")
	// only the two key registrations survive the purge
	assert.Contains(t, out, "1 to upload (2 records), 0 to download (0 records), 0 up to date")
}

func TestKeyGenerateRefusesOverwrite(t *testing.T) {
	a := newTestHost(t, "http://127.0.0.1:1", hostA)
	out := a.mustRun(t, "key", "generate")
	assert.Contains(t, out, "generated")

	_, err := a.run(t, "key", "generate")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestInvalidConfig(t *testing.T) {
	a := newTestHost(t, "http://127.0.0.1:1", hostA)
	require.NoError(t, os.WriteFile(a.config, []byte("page_size: 0\n"), 0o644))

	_, err := a.run(t, "status")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestServe(t *testing.T) {
	ready := make(chan string, 1)
	opts := &ServeOptions{
		RootOptions: &RootOptions{Format: "text"},
		Listen:      "127.0.0.1:0",
		Database:    filepath.Join(t.TempDir(), "server.db"),
		Backend:     "sqlite",
		ready:       ready,
	}
	ctx, cancel := context.WithCancel(context.Background())
	cmd := &cobra.Command{}
	cmd.SetContext(ctx)
	cmd.SetOut(io.Discard)

	done := make(chan error, 1)
	go func() { done <- runServe(opts, cmd) }()

	var addr string
	select {
	case addr = <-ready:
	case err := <-done:
		t.Fatalf("serve exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not start")
	}

	resp, err := http.Get("http://" + addr + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
