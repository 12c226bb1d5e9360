package cli

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/chainsync/internal/recordsync"
	"github.com/roach88/chainsync/internal/remote"
)

// SyncOptions holds flags for push, pull and sync.
type SyncOptions struct {
	*RootOptions
	PageSize uint64
	Force    bool
}

type transfer int

const (
	transferPush transfer = iota
	transferPull
	transferSync
)

// NewPushCommand creates the push command.
func NewPushCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SyncOptions{RootOptions: rootOpts}
	cmd := &cobra.Command{
		Use:   "push",
		Short: "Upload this host's new records",
		Long: `Upload the records of this host's chains that the server does not have.

Example:
  chainsync push
  chainsync push --page-size 500`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTransfer(opts, transferPush, cmd)
		},
	}
	addPageSizeFlag(cmd, opts)
	return cmd
}

// NewPullCommand creates the pull command.
func NewPullCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SyncOptions{RootOptions: rootOpts}
	cmd := &cobra.Command{
		Use:   "pull",
		Short: "Download records from the server",
		Long: `Download every record the server has that this host does not.

With --force the local store is emptied first and rebuilt from the server.
Local records the server never received are lost.

Example:
  chainsync pull
  chainsync pull --force`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTransfer(opts, transferPull, cmd)
		},
	}
	addPageSizeFlag(cmd, opts)
	cmd.Flags().BoolVar(&opts.Force, "force", false, "delete all local records, then download everything")
	return cmd
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SyncOptions{RootOptions: rootOpts}
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Upload and download until both sides match",
		Long: `Run a full sync: upload what the server is missing and download what this
host is missing. An interrupted sync can simply be run again.

Example:
  chainsync sync`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTransfer(opts, transferSync, cmd)
		},
	}
	addPageSizeFlag(cmd, opts)
	return cmd
}

func addPageSizeFlag(cmd *cobra.Command, opts *SyncOptions) {
	cmd.Flags().Uint64Var(&opts.PageSize, "page-size", 0, "records per request (default from config)")
}

func runTransfer(opts *SyncOptions, mode transfer, cmd *cobra.Command) error {
	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e, err := openEnv(opts.RootOptions)
	if err != nil {
		return err
	}
	defer e.Close()

	syncOpts := recordsync.Options{Host: e.host, PageSize: e.settings.PageSize}
	if opts.PageSize > 0 {
		syncOpts.PageSize = opts.PageSize
	}
	rc := e.client()

	var res recordsync.Result
	switch {
	case mode == transferSync:
		res, err = recordsync.Sync(ctx, e.store, rc, syncOpts)
	case mode == transferPull && opts.Force:
		res, err = recordsync.ForcePull(ctx, e.store, rc, syncOpts)
	default:
		res, err = filtered(ctx, e, rc, mode, syncOpts)
	}

	report := newSyncReport(res)
	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	if err != nil {
		report.Error = err.Error()
		return out.Error(WrapExitError(exitCode(err), "sync failed", err), report, func(w io.Writer) error {
			return renderSync(w, report)
		})
	}
	return out.Success(report, func(w io.Writer) error {
		return renderSync(w, report)
	})
}

func filtered(ctx context.Context, e *env, rc remote.Client, mode transfer, opts recordsync.Options) (recordsync.Result, error) {
	diffs, _, err := recordsync.Diff(ctx, rc, e.store)
	if err != nil {
		return recordsync.Result{}, err
	}
	ops, err := recordsync.Operations(ctx, diffs, e.store)
	if err != nil {
		return recordsync.Result{}, err
	}
	if mode == transferPush {
		ops = recordsync.PushOperations(ops, e.host)
	} else {
		ops = recordsync.PullOperations(ops)
	}
	return recordsync.SyncRemote(ctx, ops, e.store, rc, opts)
}
