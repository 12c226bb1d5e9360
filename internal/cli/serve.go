package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/chainsync/internal/remote"
	"github.com/roach88/chainsync/internal/settings"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Listen   string
	Database string
	Backend  string
	Token    string

	// ready, if set, receives the bound address once listening (for testing).
	ready chan<- string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a sync server",
		Long: `Serve the record API from a local store. The server keeps ciphertext
only; it holds no keys.

Example:
  chainsync serve --db ./server.db
  chainsync serve --db ./server --backend badger --listen :8888 --token s3cret`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Listen, "listen", "127.0.0.1:8888", "address to listen on")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to the server record store (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Backend, "backend", settings.BackendSQLite, "store backend (sqlite|badger)")
	cmd.Flags().StringVar(&opts.Token, "token", "", "session token clients must present")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	st, err := openStore(opts.Backend, opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open record store", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing record store", "error", closeErr)
		}
	}()

	serverOpts := []remote.ServerOption{remote.WithRegistry(prometheus.NewRegistry())}
	if opts.Token != "" {
		serverOpts = append(serverOpts, remote.WithToken(opts.Token))
	}
	srv := &http.Server{
		Handler:           remote.NewServer(st, serverOpts...),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", opts.Listen)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to listen", err)
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		errc <- srv.Serve(ln)
	}()

	slog.Info("server started", "addr", ln.Addr().String(), "db", opts.Database, "backend", opts.Backend)
	fmt.Fprintf(cmd.OutOrStdout(), "Listening on %s\n", ln.Addr())
	if opts.ready != nil {
		opts.ready <- ln.Addr().String()
	}

	select {
	case err := <-errc:
		return WrapExitError(ExitFailure, "server error", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return WrapExitError(ExitFailure, "shutdown failed", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return WrapExitError(ExitFailure, "server error", err)
	}
	slog.Info("server stopped gracefully")
	return nil
}
