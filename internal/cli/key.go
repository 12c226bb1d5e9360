package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"

	"github.com/spf13/cobra"

	"github.com/roach88/chainsync/internal/encryption"
	"github.com/roach88/chainsync/internal/keys"
	"github.com/roach88/chainsync/internal/store"
)

// KeyReport is the output of the key commands.
type KeyReport struct {
	KeyID   string `json:"key_id"`
	Path    string `json:"path"`
	Message string `json:"message"`
}

func renderKey(w io.Writer, r KeyReport) error {
	_, err := fmt.Fprintf(w, "%s\nkey: %s\n", r.Message, r.KeyID)
	return err
}

// NewKeyCommand creates the key command group.
func NewKeyCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Manage the encryption key",
		Long: `Manage the symmetric key that encrypts this host's records.

The key never leaves this host. Other hosts learn only its id, through a
registration record synced like any other.`,
	}
	cmd.AddCommand(newKeyGenerateCommand(rootOpts))
	cmd.AddCommand(newKeyRotateCommand(rootOpts))
	cmd.AddCommand(newKeyVerifyCommand(rootOpts))
	cmd.AddCommand(newKeyPurgeCommand(rootOpts))
	return cmd
}

func keyCommand(use, short, long string, run func(*RootOptions, *cobra.Command) error, rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           use,
		Short:         short,
		Long:          long,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(rootOpts, cmd)
		},
	}
}

func newKeyGenerateCommand(rootOpts *RootOptions) *cobra.Command {
	return keyCommand("generate", "Create a key file if none exists",
		"Create a new key at key_path. An existing key file is never overwritten.",
		runKeyGenerate, rootOpts)
}

func runKeyGenerate(opts *RootOptions, cmd *cobra.Command) error {
	e, err := loadEnv(opts)
	if err != nil {
		return err
	}

	if _, err := keys.Load(opts.fs(), e.settings.KeyPath); err == nil {
		return NewExitError(ExitCommandError, fmt.Sprintf("key file %s already exists", e.settings.KeyPath))
	} else if !errors.Is(err, fs.ErrNotExist) {
		return WrapExitError(ExitCommandError, "failed to read key file", err)
	}

	key, err := keys.LoadOrCreate(opts.fs(), e.settings.KeyPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create key", err)
	}

	report := KeyReport{KeyID: key.ID(), Path: e.settings.KeyPath, Message: "generated " + e.settings.KeyPath}
	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return out.Success(report, func(w io.Writer) error { return renderKey(w, report) })
}

func newKeyRotateCommand(rootOpts *RootOptions) *cobra.Command {
	return keyCommand("rotate", "Replace the key and re-encrypt local records",
		`Generate a new key, register it for every host, and re-encrypt the local
store under it. Other hosts refuse to write with the old key from then on;
they need the new key file copied over out of band.

If rotation fails partway, run it again: the pending key is kept next to the
key file until the rotation completes.`,
		runKeyRotate, rootOpts)
}

func runKeyRotate(opts *RootOptions, cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	e, err := openEnv(opts)
	if err != nil {
		return err
	}
	defer e.Close()

	oldKey, err := e.key()
	if err != nil {
		return err
	}

	pending := e.settings.KeyPath + ".next"
	newKey, err := keys.LoadOrCreate(opts.fs(), pending)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to prepare new key", err)
	}

	if err := keys.Rotate(ctx, e.store, e.registry(), e.host, oldKey, newKey); err != nil {
		return WrapExitError(exitCode(err), "key rotation failed", err)
	}
	if err := keys.Save(opts.fs(), e.settings.KeyPath, newKey); err != nil {
		return WrapExitError(ExitFailure, "records re-encrypted but the new key could not be saved; it is in "+pending, err)
	}
	if err := opts.fs().Remove(pending); err != nil {
		return WrapExitError(ExitFailure, "failed to remove pending key", err)
	}

	report := KeyReport{KeyID: newKey.ID(), Path: e.settings.KeyPath, Message: "rotated from " + oldKey.ID()}
	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return out.Success(report, func(w io.Writer) error { return renderKey(w, report) })
}

func newKeyVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	return keyCommand("verify", "Check every local record opens with the key",
		"Check that every record in the local store decrypts under the current key. Nothing is modified.",
		runKeyVerify, rootOpts)
}

func runKeyVerify(opts *RootOptions, cmd *cobra.Command) error {
	return withKey(opts, cmd, "verify", "all records verified", keys.Verify)
}

func newKeyPurgeCommand(rootOpts *RootOptions) *cobra.Command {
	return keyCommand("purge", "Delete local records the key cannot open",
		`Delete every local record that does not decrypt under the current key,
such as records sealed with a key that was lost or compromised.`,
		runKeyPurge, rootOpts)
}

func runKeyPurge(opts *RootOptions, cmd *cobra.Command) error {
	return withKey(opts, cmd, "purge", "unreadable records purged", keys.Purge)
}

func withKey(opts *RootOptions, cmd *cobra.Command, op, done string, fn func(context.Context, store.Store, encryption.Key) error) error {
	ctx := commandContext(cmd)
	e, err := openEnv(opts)
	if err != nil {
		return err
	}
	defer e.Close()

	key, err := e.key()
	if err != nil {
		return err
	}
	if err := fn(ctx, e.store, key); err != nil {
		return WrapExitError(ExitFailure, op+" failed", err)
	}

	report := KeyReport{KeyID: key.ID(), Path: e.settings.KeyPath, Message: done}
	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return out.Success(report, func(w io.Writer) error { return renderKey(w, report) })
}
