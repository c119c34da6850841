package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lispc/lispc/pkg/metrics"
)

func newServeMetricsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve-metrics",
		Short: "Expose Prometheus compiler/VM metrics on an HTTP endpoint",
		RunE:  runServeMetrics,
	}
	cmd.Flags().Int("port", 0, "port to listen on (defaults to the config's metrics_port)")
	return cmd
}

func runServeMetrics(cmd *cobra.Command, _ []string) error {
	cfg := loadConfig(cmd)
	port, _ := cmd.Flags().GetInt("port")
	if port == 0 {
		port = cfg.MetricsPort
	}

	m := metrics.NewMetrics(metrics.DefaultConfig())

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	addr := fmt.Sprintf(":%d", port)
	server := &http.Server{Addr: addr, Handler: mux}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()

	printInfo(fmt.Sprintf("serving metrics on %s/metrics", addr))

	select {
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	case <-ctx.Done():
		printInfo("shutting down metrics server")
		return server.Shutdown(context.Background())
	}
}
