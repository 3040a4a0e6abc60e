package event

import (
	"context"
	"fmt"
	"time"

	"advoid/pkg/config"
	"advoid/pkg/logging"
)

// New selects and constructs the configured sink backend. An empty
// cfg.Sink yields the null sink.
func New(ctx context.Context, cfg *config.Config, logger *logging.Logger, dropped DropCounter) (Sink, error) {
	opts := Options{
		BatchSize: cfg.SinkBatchSize,
		Interval:  time.Duration(cfg.SinkInterval) * time.Second,
		Logger:    logger,
		Dropped:   dropped,
	}

	switch cfg.Sink {
	case config.SinkNone:
		return NullSink{}, nil
	case config.SinkS3:
		logger.Info("Event sink enabled", "backend", "s3", "bucket", cfg.S3Bucket, "prefix", cfg.S3Prefix)
		return NewS3Sink(ctx, cfg.S3Bucket, cfg.S3Prefix, opts)
	case config.SinkDatabricks:
		logger.Info("Event sink enabled", "backend", "databricks", "host", cfg.Databricks.Host, "volume", cfg.Databricks.VolumePath)
		d := cfg.Databricks
		return NewDatabricksSink(ctx, d.Host, d.ClientID, d.ClientSecret, d.VolumePath, opts), nil
	case config.SinkSQLite:
		logger.Info("Event sink enabled", "backend", "sqlite", "path", cfg.SQLitePath)
		return NewSQLiteSink(cfg.SQLitePath, opts)
	default:
		return nil, fmt.Errorf("unknown sink backend %q", cfg.Sink)
	}
}
