package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/chainsync/internal/chain"
	"github.com/roach88/chainsync/internal/keys"
)

// AppendReport is the output of the append command.
type AppendReport struct {
	ID  string `json:"id"`
	Tag string `json:"tag"`
	Idx uint64 `json:"idx"`
}

// NewAppendCommand creates the append command.
func NewAppendCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "append <tag> [data...]",
		Short: "Encrypt and append a record to this host's chain",
		Long: `Append a record to this host's chain for tag. The data is taken from the
remaining arguments, joined by spaces, or from stdin when there are none.

Appending is refused if another host has registered a newer key.

Example:
  chainsync append history "git status"
  echo '{"k":"v"}' | chainsync append kv`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAppend(rootOpts, cmd, args[0], args[1:])
		},
	}
}

func runAppend(opts *RootOptions, cmd *cobra.Command, tag string, words []string) error {
	ctx := commandContext(cmd)

	var data []byte
	if len(words) > 0 {
		data = []byte(strings.Join(words, " "))
	} else {
		b, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read stdin", err)
		}
		data = b
	}

	e, err := openEnv(opts)
	if err != nil {
		return err
	}
	defer e.Close()

	key, err := e.key()
	if err != nil {
		return err
	}

	w := chain.NewWriter(e.store, e.host, e.settings.Scheme, key, keys.NewGuard(e.registry(), e.host, e.client()))
	rec, err := w.Append(ctx, tag, data)
	if errors.Is(err, keys.ErrUnsyncedRegistry) {
		return WrapExitError(ExitFailure, "append refused, run pull first", err)
	}
	if err != nil {
		return WrapExitError(exitCode(err), "append failed", err)
	}

	report := AppendReport{ID: string(rec.ID), Tag: rec.Tag, Idx: rec.Idx}
	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return out.Success(report, func(w io.Writer) error {
		_, err := fmt.Fprintf(w, "appended %s#%d\n", rec.Tag, rec.Idx)
		return err
	})
}
