package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/girste/blueteam/internal/config"
	"github.com/girste/blueteam/internal/mcp"
	"github.com/girste/blueteam/internal/metrics"
	"github.com/girste/blueteam/internal/scan"
	"github.com/spf13/cobra"
)

func newServeCommand(version string) *cobra.Command {
	var metricsAddr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run an MCP server on stdio exposing the scan_hosts and get_result tools",
		Long: `Starts an MCP server on stdin/stdout. Remote hosts are reached with the
identity file and agent from the config; serve never prompts, so encrypted
keys must be loaded into the agent first.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), version, metricsAddr)
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve /metrics and /health on this address, e.g. :9110")
	return cmd
}

func runServe(ctx context.Context, version, metricsAddr string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	// stdin carries the protocol, nothing to prompt with
	cfg.SSH.Passphrase = false

	recorder := metrics.NewRecorder().WithRuntimeCollectors()
	if metricsAddr != "" {
		srv := metrics.StartServer(metricsAddr, recorder)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	fleet := scan.NewFleet(cfg.GetWorkers(), scan.NewDialer(cfg, scan.Credentials{}), scan.OptionsFromConfig(cfg), recorder)
	server := mcp.NewServer(fleet, version)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Serve()
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "\nReceived signal, shutting down gracefully...")
		return nil
	case err := <-errChan:
		return err
	}
}
