package config

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Bind:          "0.0.0.0:53",
		Upstream:      "1.1.1.1:53",
		Exporter:      "0.0.0.0:9100",
		Block:         "/etc/advoid/blocklist.txt",
		SinkInterval:  1,
		SinkBatchSize: 1000,
		CacheSize:     65536,
	}
}

func TestValidateAccepts(t *testing.T) {
	require.NoError(t, validConfig().Validate())
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing bind", func(c *Config) { c.Bind = "" }},
		{"bind without port", func(c *Config) { c.Bind = "0.0.0.0" }},
		{"missing upstream", func(c *Config) { c.Upstream = "" }},
		{"upstream without port", func(c *Config) { c.Upstream = "1.1.1.1" }},
		{"missing exporter", func(c *Config) { c.Exporter = "" }},
		{"missing block", func(c *Config) { c.Block = "" }},
		{"unknown sink", func(c *Config) { c.Sink = "kafka" }},
		{"s3 without bucket", func(c *Config) { c.Sink = SinkS3 }},
		{"databricks without credentials", func(c *Config) { c.Sink = SinkDatabricks }},
		{"sqlite without path", func(c *Config) { c.Sink = SinkSQLite }},
		{"zero interval", func(c *Config) { c.SinkInterval = 0 }},
		{"negative batch size", func(c *Config) { c.SinkBatchSize = -1 }},
		{"zero cache size", func(c *Config) { c.CacheSize = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}

func TestValidateSinkRequirementsSatisfied(t *testing.T) {
	s3 := validConfig()
	s3.Sink = SinkS3
	s3.S3Bucket = "events"
	assert.NoError(t, s3.Validate())

	dbx := validConfig()
	dbx.Sink = SinkDatabricks
	dbx.Databricks = DatabricksConfig{
		Host:         "https://example.cloud.databricks.com",
		ClientID:     "client",
		ClientSecret: "secret",
		VolumePath:   "/Volumes/main/default/dns",
	}
	assert.NoError(t, dbx.Validate())

	lite := validConfig()
	lite.Sink = SinkSQLite
	lite.SQLitePath = "/var/lib/advoid/events.db"
	assert.NoError(t, lite.Validate())
}

func TestApplyEnvOverridesFlags(t *testing.T) {
	t.Setenv("DATABRICKS_HOST", "https://env.cloud.databricks.com")
	t.Setenv("DATABRICKS_CLIENT_SECRET", "env-secret")

	cfg := validConfig()
	cfg.Databricks.Host = "https://flag.cloud.databricks.com"
	cfg.Databricks.ClientID = "flag-client"

	require.NoError(t, cfg.ApplyEnv(context.Background()))

	assert.Equal(t, "https://env.cloud.databricks.com", cfg.Databricks.Host, "environment should win over flags")
	assert.Equal(t, "env-secret", cfg.Databricks.ClientSecret)
	assert.Equal(t, "flag-client", cfg.Databricks.ClientID, "flag value should survive when env is unset")
}
