package keys

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/roach88/chainsync/internal/encryption"
)

// Load reads a base64 key from path.
func Load(fsys afero.Fs, path string) (encryption.Key, error) {
	b, err := afero.ReadFile(fsys, path)
	if err != nil {
		return encryption.Key{}, fmt.Errorf("read key file: %w", err)
	}
	key, err := encryption.KeyFromBase64(strings.TrimSpace(string(b)))
	if err != nil {
		return encryption.Key{}, fmt.Errorf("key file %s: %w", path, err)
	}
	return key, nil
}

// Save writes key to path, readable only by the owner.
func Save(fsys afero.Fs, path string, key encryption.Key) error {
	if err := fsys.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create key dir: %w", err)
	}
	if err := afero.WriteFile(fsys, path, []byte(key.Base64()+"\n"), 0o600); err != nil {
		return fmt.Errorf("write key file: %w", err)
	}
	return nil
}

// LoadOrCreate loads the key at path, generating and saving a new one if the
// file does not exist.
func LoadOrCreate(fsys afero.Fs, path string) (encryption.Key, error) {
	key, err := Load(fsys, path)
	if err == nil {
		return key, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return encryption.Key{}, err
	}

	key, err = encryption.GenerateKey()
	if err != nil {
		return encryption.Key{}, err
	}
	if err := Save(fsys, path, key); err != nil {
		return encryption.Key{}, err
	}
	slog.Info("generated new encryption key", "path", path, "key", key.ID())
	return key, nil
}
