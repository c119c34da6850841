package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lispc/lispc/pkg/native"
	"github.com/lispc/lispc/pkg/repl"
	"github.com/lispc/lispc/pkg/replserver"
)

func newReplCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repl",
		Short: "Start an interactive read-eval-print loop",
		RunE:  runRepl,
	}
	cmd.Flags().String("db", "", "SQLite file backing (db-save!)/(db-load) persisted globals across sessions")
	cmd.Flags().String("ws", "", "expose the REPL over WebSocket at this address (e.g. :4242) instead of stdin/stdout")
	return cmd
}

func runRepl(cmd *cobra.Command, _ []string) error {
	_ = loadConfig(cmd)
	wsAddr, _ := cmd.Flags().GetString("ws")

	if wsAddr != "" {
		return runReplServer(cmd.Context(), wsAddr)
	}

	dbPath, _ := cmd.Flags().GetString("db")
	r := repl.New(os.Stdin, os.Stdout, version)
	if dbPath != "" {
		store, err := native.OpenGlobalStore(dbPath)
		if err != nil {
			return err
		}
		defer store.Close()
		store.Register(r.VM())
	}
	return r.Start()
}

func runReplServer(ctx context.Context, addr string) error {
	srv := replserver.New(addr, "/repl")

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	printInfo(fmt.Sprintf("lispc repl --ws listening on %s (path /repl)", addr))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		printInfo("shutting down repl server")
		return srv.Shutdown(context.Background())
	}
}
