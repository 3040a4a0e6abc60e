// Package config holds the flag-backed runtime configuration and its
// validation rules. Startup validation failures are fatal by design: the
// process exits non-zero before any socket is bound.
package config

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/sethvargo/go-envconfig"
)

// Sink backend names accepted by --sink. An empty value selects the null
// sink, which drops all events.
const (
	SinkNone       = ""
	SinkS3         = "s3"
	SinkDatabricks = "databricks"
	SinkSQLite     = "sqlite"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the complete runtime configuration of the resolver.
type Config struct {
	// DNS listener address, e.g. "0.0.0.0:53" or "[::]:53".
	Bind string

	// Upstream recursive resolver, host:port.
	Upstream string

	// Prometheus exporter listen address.
	Exporter string

	// Blocklist source: filesystem path or http(s) URL.
	Block string

	// ForwardLocalZone disables the RFC 6303 gate when true.
	ForwardLocalZone bool

	// Otel is an optional OTLP gRPC endpoint for traces.
	Otel string

	// Sink selects the event sink backend (see Sink* constants).
	Sink string

	S3Bucket string
	S3Prefix string

	Databricks DatabricksConfig

	// SQLitePath is the database file for the sqlite sink.
	SQLitePath string

	// SinkInterval is the flush interval in seconds.
	SinkInterval int
	// SinkBatchSize is the flush threshold in events.
	SinkBatchSize int

	// CacheSize bounds the per-name decision cache.
	CacheSize int

	LogLevel  string
	LogFormat string
}

// DatabricksConfig holds the tabular-volume sink credentials. Each field may
// be overridden by the environment variable named in its tag.
type DatabricksConfig struct {
	Host         string `env:"DATABRICKS_HOST,overwrite"`
	ClientID     string `env:"DATABRICKS_CLIENT_ID,overwrite"`
	ClientSecret string `env:"DATABRICKS_CLIENT_SECRET,overwrite"`
	VolumePath   string `env:"DATABRICKS_VOLUME_PATH,overwrite"`
}

// ApplyEnv overrides Databricks credentials from the environment. Flags set
// the defaults; a present environment variable wins.
func (c *Config) ApplyEnv(ctx context.Context) error {
	if err := envconfig.Process(ctx, &c.Databricks); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// Validate checks required flags and per-sink requirements.
func (c *Config) Validate() error {
	for _, req := range []struct {
		name, value string
	}{
		{"bind", c.Bind},
		{"upstream", c.Upstream},
		{"exporter", c.Exporter},
	} {
		if req.value == "" {
			return fmt.Errorf("%w: --%s is required", ErrInvalidConfig, req.name)
		}
		if _, _, err := net.SplitHostPort(req.value); err != nil {
			return fmt.Errorf("%w: --%s: %v", ErrInvalidConfig, req.name, err)
		}
	}

	if c.Block == "" {
		return fmt.Errorf("%w: --block is required", ErrInvalidConfig)
	}

	switch c.Sink {
	case SinkNone:
	case SinkS3:
		if c.S3Bucket == "" {
			return fmt.Errorf("%w: --s3-bucket is required for the s3 sink", ErrInvalidConfig)
		}
	case SinkDatabricks:
		d := c.Databricks
		if d.Host == "" || d.ClientID == "" || d.ClientSecret == "" || d.VolumePath == "" {
			return fmt.Errorf("%w: the databricks sink requires --databricks-host, --databricks-client-id, --databricks-client-secret and --databricks-volume-path", ErrInvalidConfig)
		}
	case SinkSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("%w: --sqlite-path is required for the sqlite sink", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown sink %q", ErrInvalidConfig, c.Sink)
	}

	if c.SinkInterval <= 0 {
		return fmt.Errorf("%w: --sink-interval must be positive", ErrInvalidConfig)
	}
	if c.SinkBatchSize <= 0 {
		return fmt.Errorf("%w: --sink-batch-size must be positive", ErrInvalidConfig)
	}
	if c.CacheSize <= 0 {
		return fmt.Errorf("%w: --cache-size must be positive", ErrInvalidConfig)
	}

	return nil
}
