package cli

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/chainsync/internal/recordsync"
)

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Compare local chains with the server",
		Long: `Show every chain known locally or on the server, the highest idx each
side holds, and what a sync would do about it. Nothing is transferred.

Example:
  chainsync status
  chainsync status --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(rootOpts, cmd)
		},
	}
}

func runStatus(opts *RootOptions, cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	e, err := openEnv(opts)
	if err != nil {
		return err
	}
	defer e.Close()

	report, err := status(ctx, e)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to compute status", err)
	}

	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return out.Success(report, func(w io.Writer) error {
		return renderStatus(w, report)
	})
}

func status(ctx context.Context, e *env) (StatusReport, error) {
	diffs, _, err := recordsync.Diff(ctx, e.client(), e.store)
	if err != nil {
		return StatusReport{}, err
	}
	ops, err := recordsync.Operations(ctx, diffs, e.store)
	if err != nil {
		return StatusReport{}, err
	}
	return newStatusReport(e.host, diffs, ops), nil
}

// commandContext returns the command's context, or Background when run
// outside Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
