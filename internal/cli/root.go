package cli

import (
	"fmt"
	"log/slog"
	"os"
	"slices"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/roach88/chainsync/internal/settings"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	Config  string

	// Fs is the filesystem for the config, key and host id files. Nil means
	// the OS filesystem.
	Fs afero.Fs
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

func (o *RootOptions) fs() afero.Fs {
	if o.Fs == nil {
		return afero.NewOsFs()
	}
	return o.Fs
}

func (o *RootOptions) configPath() string {
	if o.Config != "" {
		return o.Config
	}
	return settings.ConfigPath()
}

// NewRootCommand creates the root command for the chainsync CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "chainsync",
		Short: "chainsync - encrypted record sync",
		Long: `Keep per-host append-only record chains in sync with a server.

Records are encrypted on the host that writes them; the server only ever
stores ciphertext.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			setupLogging(opts.Verbose)
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Config, "config", "", "config file (default $"+settings.EnvConfig+" or ~/.config/chainsync/config.yaml)")

	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewAppendCommand(opts))
	cmd.AddCommand(NewPushCommand(opts))
	cmd.AddCommand(NewPullCommand(opts))
	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewKeyCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))

	return cmd
}

// setupLogging sends slog text output to stderr, at Debug when verbose.
func setupLogging(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}
