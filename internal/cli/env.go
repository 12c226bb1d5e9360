package cli

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/chainsync/internal/encryption"
	"github.com/roach88/chainsync/internal/keys"
	"github.com/roach88/chainsync/internal/record"
	"github.com/roach88/chainsync/internal/remote"
	"github.com/roach88/chainsync/internal/settings"
	"github.com/roach88/chainsync/internal/store"
	"github.com/roach88/chainsync/internal/store/badger"
	"github.com/roach88/chainsync/internal/store/sqlite"
)

// env is what a command needs from settings, opened on demand.
type env struct {
	opts     *RootOptions
	settings settings.Settings
	host     record.HostID
	store    store.Store
}

func loadEnv(opts *RootOptions) (*env, error) {
	s, err := settings.Load(opts.fs(), opts.configPath())
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load settings", err)
	}
	host, err := s.HostID(opts.fs())
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load host id", err)
	}
	return &env{opts: opts, settings: s, host: host}, nil
}

// openEnv loads settings and opens the record store.
func openEnv(opts *RootOptions) (*env, error) {
	e, err := loadEnv(opts)
	if err != nil {
		return nil, err
	}
	st, err := openStore(e.settings.StoreBackend, e.settings.RecordStorePath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open record store", err)
	}
	e.store = st
	slog.Debug("record store ready", "backend", e.settings.StoreBackend, "path", e.settings.RecordStorePath, "host", e.host)
	return e, nil
}

func openStore(backend, path string) (store.Store, error) {
	switch backend {
	case settings.BackendSQLite:
		return sqlite.Open(path)
	case settings.BackendBadger:
		return badger.Open(path)
	default:
		return nil, fmt.Errorf("unknown store backend %q", backend)
	}
}

func (e *env) Close() {
	if e.store == nil {
		return
	}
	if err := e.store.Close(); err != nil {
		slog.Error("error closing record store", "error", err)
	}
}

func (e *env) client() remote.Client {
	return remote.NewHTTPClient(remote.Config{
		Address:        e.settings.SyncAddress,
		Token:          e.settings.SessionToken,
		Timeout:        e.settings.Timeout(),
		ConnectTimeout: e.settings.ConnectTimeout(),
	})
}

func (e *env) key() (encryption.Key, error) {
	key, err := keys.LoadOrCreate(e.opts.fs(), e.settings.KeyPath)
	if err != nil {
		return encryption.Key{}, WrapExitError(ExitCommandError, "failed to load key", err)
	}
	return key, nil
}

func (e *env) registry() *keys.Registry {
	return keys.NewRegistry(e.store, nil)
}

// exitCode picks the exit code for a failed operation.
func exitCode(err error) int {
	if errors.Is(err, keys.ErrStaleKey) {
		return ExitStaleKey
	}
	return ExitFailure
}
