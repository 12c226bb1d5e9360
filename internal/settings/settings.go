// Package settings loads the client configuration file.
package settings

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/roach88/chainsync/internal/record"
)

//go:embed schema.cue
var schemaSource string

// EnvConfig names the environment variable overriding the config file path.
const EnvConfig = "CHAINSYNC_CONFIG"

// Backends.
const (
	BackendSQLite = "sqlite"
	BackendBadger = "badger"
)

// Settings is the client configuration. Durations are in seconds.
type Settings struct {
	SyncAddress           string `yaml:"sync_address" json:"sync_address"`
	RecordStorePath       string `yaml:"record_store_path" json:"record_store_path"`
	StoreBackend          string `yaml:"store_backend" json:"store_backend"`
	KeyPath               string `yaml:"key_path" json:"key_path"`
	HostIDPath            string `yaml:"host_id_path" json:"host_id_path"`
	SessionToken          string `yaml:"session_token" json:"session_token"`
	PageSize              uint64 `yaml:"page_size" json:"page_size"`
	Scheme                string `yaml:"scheme" json:"scheme"`
	NetworkTimeout        int    `yaml:"network_timeout" json:"network_timeout"`
	NetworkConnectTimeout int    `yaml:"network_connect_timeout" json:"network_connect_timeout"`
}

// Default returns the settings used when the file omits a field.
func Default() Settings {
	data := filepath.Join("~", ".local", "share", "chainsync")
	return Settings{
		SyncAddress:           "http://127.0.0.1:8888",
		RecordStorePath:       filepath.Join(data, "records.db"),
		StoreBackend:          BackendSQLite,
		KeyPath:               filepath.Join(data, "key"),
		HostIDPath:            filepath.Join(data, "host_id"),
		PageSize:              100,
		Scheme:                "v1",
		NetworkTimeout:        30,
		NetworkConnectTimeout: 5,
	}
}

// ConfigPath returns the config file location: $CHAINSYNC_CONFIG if set,
// otherwise ~/.config/chainsync/config.yaml.
func ConfigPath() string {
	if p := os.Getenv(EnvConfig); p != "" {
		return p
	}
	return filepath.Join("~", ".config", "chainsync", "config.yaml")
}

// Load reads settings from path. A missing file yields the defaults.
func Load(fsys afero.Fs, path string) (Settings, error) {
	path, err := homedir.Expand(path)
	if err != nil {
		return Settings{}, fmt.Errorf("config path: %w", err)
	}

	data, err := afero.ReadFile(fsys, path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Settings{}, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML settings over the defaults and validates the result.
func Parse(data []byte) (Settings, error) {
	s := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil && !errors.Is(err, io.EOF) {
		return Settings{}, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	if err := s.expand(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Validate checks s against the settings schema.
func (s Settings) Validate() error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource).LookupPath(cue.ParsePath("#Settings"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("settings schema: %w", err)
	}

	v := schema.Unify(ctx.Encode(s))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func (s *Settings) expand() error {
	for _, p := range []*string{&s.RecordStorePath, &s.KeyPath, &s.HostIDPath} {
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("expand %s: %w", *p, err)
		}
		*p = expanded
	}
	return nil
}

// Timeout bounds a whole request.
func (s Settings) Timeout() time.Duration {
	return time.Duration(s.NetworkTimeout) * time.Second
}

// ConnectTimeout bounds establishing a connection.
func (s Settings) ConnectTimeout() time.Duration {
	return time.Duration(s.NetworkConnectTimeout) * time.Second
}

// HostID returns the id stored at HostIDPath, creating it on first use.
func (s Settings) HostID(fsys afero.Fs) (record.HostID, error) {
	b, err := afero.ReadFile(fsys, s.HostIDPath)
	if err == nil {
		return record.ParseHostID(strings.TrimSpace(string(b)))
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("read host id: %w", err)
	}

	host := record.NewHostID()
	if err := fsys.MkdirAll(filepath.Dir(s.HostIDPath), 0o700); err != nil {
		return "", fmt.Errorf("create host id dir: %w", err)
	}
	if err := afero.WriteFile(fsys, s.HostIDPath, []byte(host.String()+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("write host id: %w", err)
	}
	return host, nil
}
