package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"advoid/pkg/blocklist"
	"advoid/pkg/cache"
	"advoid/pkg/config"
	"advoid/pkg/dns"
	"advoid/pkg/event"
	"advoid/pkg/forwarder"
	"advoid/pkg/logging"
	"advoid/pkg/telemetry"

	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

const shutdownTimeout = 5 * time.Second

func main() {
	cfg := &config.Config{}

	rootCmd := &cobra.Command{
		Use:          "advoid",
		Short:        "Ad-blocking DNS stub resolver",
		Long:         "advoid answers DNS queries for blocklisted names with NXDOMAIN and forwards everything else to a single upstream resolver.",
		Version:      fmt.Sprintf("%s (built %s)", version, buildTime),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cfg)
		},
	}

	flags := rootCmd.Flags()
	flags.StringVar(&cfg.Bind, "bind", "", "DNS listen address, host:port (required)")
	flags.StringVar(&cfg.Upstream, "upstream", "", "upstream resolver address, host:port (required)")
	flags.StringVar(&cfg.Exporter, "exporter", "", "Prometheus exporter listen address, host:port (required)")
	flags.StringVar(&cfg.Block, "block", "", "blocklist source, file path or http(s) URL (required)")
	flags.BoolVar(&cfg.ForwardLocalZone, "forward-local-zone", false, "forward queries for RFC 6303 zones instead of answering locally")
	flags.StringVar(&cfg.Otel, "otel", "", "OTLP gRPC endpoint for traces (disabled when empty)")
	flags.StringVar(&cfg.Sink, "sink", "", "event sink backend: s3, databricks or sqlite (disabled when empty)")
	flags.StringVar(&cfg.S3Bucket, "s3-bucket", "", "bucket for the s3 sink")
	flags.StringVar(&cfg.S3Prefix, "s3-prefix", "", "key prefix for the s3 sink")
	flags.StringVar(&cfg.Databricks.Host, "databricks-host", "", "workspace URL for the databricks sink")
	flags.StringVar(&cfg.Databricks.ClientID, "databricks-client-id", "", "service principal client id for the databricks sink")
	flags.StringVar(&cfg.Databricks.ClientSecret, "databricks-client-secret", "", "service principal secret for the databricks sink")
	flags.StringVar(&cfg.Databricks.VolumePath, "databricks-volume-path", "", "volume path for the databricks sink, e.g. /Volumes/main/default/dns")
	flags.StringVar(&cfg.SQLitePath, "sqlite-path", "", "database file for the sqlite sink")
	flags.IntVar(&cfg.SinkInterval, "sink-interval", 1, "sink flush interval in seconds")
	flags.IntVar(&cfg.SinkBatchSize, "sink-batch-size", 1000, "sink flush threshold in events")
	flags.IntVar(&cfg.CacheSize, "cache-size", 65536, "decision cache capacity in names")
	flags.StringVar(&cfg.LogLevel, "log-level", "info", "log level: debug, info, warn or error")
	flags.StringVar(&cfg.LogFormat, "log-format", "text", "log format: text or json")

	for _, name := range []string{"bind", "upstream", "exporter", "block"} {
		if err := rootCmd.MarkFlagRequired(name); err != nil {
			fmt.Fprintf(os.Stderr, "flag setup: %v\n", err)
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	if err := cfg.ApplyEnv(ctx); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	logging.SetGlobal(logger)

	logger.Info("advoid starting",
		"version", version,
		"build_time", buildTime,
	)

	telem, err := telemetry.New(ctx, cfg.Exporter, cfg.Otel, version, logger)
	if err != nil {
		logger.Error("Failed to initialize telemetry", "error", err)
		return err
	}
	metrics := telem.InitMetrics()

	set, err := blocklist.Load(ctx, cfg.Block, logger)
	if err != nil {
		logger.Error("Failed to load blocklist", "source", cfg.Block, "error", err)
		return err
	}

	sink, err := event.New(ctx, cfg, logger, metrics.EventsDropped)
	if err != nil {
		logger.Error("Failed to initialize event sink", "error", err)
		return err
	}

	decisions := cache.New(set, cfg.CacheSize)
	fwd := forwarder.New(cfg.Upstream, logger)
	handler := dns.NewHandler(ctx, decisions, fwd, sink, metrics, logger, !cfg.ForwardLocalZone)
	server := dns.NewServer(cfg.Bind, handler, logger)

	logger.Info("advoid running",
		"bind", cfg.Bind,
		"upstream", fwd.Upstream(),
	)

	serveErr := server.Start(ctx)

	// ctx is already cancelled here; flush and release with a fresh deadline.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := sink.Close(shutdownCtx); err != nil {
		logger.Error("Error during sink shutdown", "error", err)
	}
	if err := telem.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during telemetry shutdown", "error", err)
	}

	if serveErr != nil {
		logger.Error("Server error", "error", serveErr)
		return serveErr
	}

	logger.Info("advoid stopped")
	return nil
}
