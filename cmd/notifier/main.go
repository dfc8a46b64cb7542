// cmd/notifier/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/FairForge/notifier/internal/api"
	"github.com/FairForge/notifier/internal/config"
	"github.com/FairForge/notifier/internal/gateway/metrics"
	"github.com/FairForge/notifier/internal/logging"
	"github.com/FairForge/notifier/internal/notifier"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "notifier",
		Short:        "object storage proxy that publishes change notifications",
		SilenceUsage: true,
	}

	var configPath string
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML or TOML config file")

	var listen, upstream string
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "proxy storage requests and publish a notification per successful mutation",
		Long: `Listens for object storage requests, forwards them to the upstream store
and publishes one notification for every successful PUT, POST, COPY or DELETE.

Examples:
  notifier serve --config /etc/notifier.yaml
  notifier serve --upstream http://127.0.0.1:8081 --listen :8080`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Server.Listen = listen
			}
			if upstream != "" {
				cfg.Server.Upstream = upstream
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, cmd.ErrOrStderr())
		},
	}
	serveCmd.Flags().StringVar(&listen, "listen", "", "listen address (overrides server.listen)")
	serveCmd.Flags().StringVar(&upstream, "upstream", "", "upstream object store URL (overrides server.upstream)")

	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "validate the configuration and print the effective settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if cfg.Messaging.WebhookSecret != "" {
				cfg.Messaging.WebhookSecret = "<redacted>"
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			defer func() { _ = enc.Close() }()
			return enc.Encode(cfg)
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "notifier %s (%s)\n", api.Version, runtime.Version())
		},
	}

	rootCmd.AddCommand(serveCmd, checkCmd, versionCmd)
	return rootCmd
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	cfg := &config.Config{}
	config.LoadFromEnv(cfg)
	cfg.ApplyDefaults()
	return cfg, cfg.Validate()
}

func serve(ctx context.Context, cfg *config.Config, stderr io.Writer) error {
	if cfg.Server.Upstream == "" {
		return errors.New("server.upstream is required")
	}

	cfg.Logging.Output = stderr
	logger, err := logging.NewLogger(&cfg.Logging)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	collector := metrics.NewCollector()

	publisher, err := notifier.NewFromConfig(cfg.Messaging, logger, collector)
	if err != nil {
		return fmt.Errorf("create notifier: %w", err)
	}

	proxy, err := api.NewUpstreamProxy(cfg.Server.Upstream, logger)
	if err != nil {
		return err
	}

	var opts []api.Option
	if qd, ok := publisher.Driver().(*notifier.QueueDriver); ok {
		opts = append(opts, api.WithBroker(qd.Broker()))
	}
	server := api.NewServer(cfg, logger, proxy, publisher, collector, opts...)

	logger.Info("notifier configured",
		zap.String("upstream", cfg.Server.Upstream),
		zap.String("driver", publisher.Driver().Name()),
		zap.String("routing_key", publisher.RoutingKey()),
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err = <-errCh:
		if err != nil {
			logger.Error("server failed", zap.Error(err))
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if serr := server.Shutdown(shutdownCtx); serr != nil {
		logger.Error("server shutdown failed", zap.Error(serr))
	}
	// requests are done; flush what they published
	if cerr := publisher.Close(shutdownCtx); cerr != nil {
		logger.Error("notifier shutdown failed", zap.Error(cerr))
	}
	logger.Info("server stopped")
	return err
}
