package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace"

	"github.com/lispc/lispc/pkg/logging"
	"github.com/lispc/lispc/pkg/metrics"
	"github.com/lispc/lispc/pkg/tracing"
	"github.com/lispc/lispc/pkg/vm"
)

func newCompileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compile <file.lisp>",
		Short: "Compile a source file to bytecode without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(cmd, args[0])
		},
	}
	cmd.Flags().Bool("cache", false, "install the Redis-backed cache-get!/cache-set!/cache-del! natives (when cache_backend is redis); compilation itself is not cached")
	cmd.Flags().Bool("trace", false, "emit an OpenTelemetry span for this compile unit (stdout exporter)")
	cmd.Flags().StringP("output", "o", "", "write a .lispc bytecode container to this path")
	return cmd
}

func runCompile(cmd *cobra.Command, path string) error {
	cfg := loadConfig(cmd)
	useCache, _ := cmd.Flags().GetBool("cache")
	wantTrace, _ := cmd.Flags().GetBool("trace")
	output, _ := cmd.Flags().GetString("output")

	source, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	session, cleanup, err := newSession(cfg, useCache, "")
	if err != nil {
		return err
	}
	defer cleanup()

	m := metrics.NewMetrics(metrics.DefaultConfig())

	ctx := cmd.Context()
	if wantTrace {
		tp, err := tracing.InitTracing(tracing.DefaultConfig())
		if err != nil {
			return err
		}
		defer tp.Shutdown(ctx)

		var span trace.Span
		ctx, span = tracing.StartSpan(ctx, "compile")
		defer span.End()
		tracing.SetAttributes(ctx, tracing.CompileUnitAttributes(path, len(source))...)
	}

	start := time.Now()
	code, err := session.CompileString(path, string(source))
	duration := time.Since(start)
	m.RecordCompileUnit("full", duration, err)
	if err != nil {
		m.RecordCompileError("compile")
		logging.Error(fmt.Sprintf("compile %s failed: %v", path, err))
		return err
	}

	logging.Info(fmt.Sprintf("compiled %s (%d top-level instructions) in %s", path, code.Len(), duration))
	printSuccess(fmt.Sprintf("compiled %s: %d instructions in %s", path, code.Len(), duration))

	if output != "" {
		blob, err := vm.EncodeBytecode(code, session.Pool())
		if err != nil {
			return err
		}
		if err := os.WriteFile(output, blob, 0o644); err != nil {
			return err
		}
		printSuccess(fmt.Sprintf("wrote %s (%d bytes)", output, len(blob)))
	}
	return nil
}
