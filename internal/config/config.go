// Package config loads runtime settings for the vaultsync CLI. Values come
// from defaults, then an optional JSON file, then command-line flags, each
// layer overriding the previous one.
package config

import "time"

// Backend names a remote store implementation.
const (
	BackendGitHub   = "github"
	BackendS3       = "s3"
	BackendPostgres = "postgres"
)

// Config holds runtime settings for the vaultsync CLI.
type Config struct {
	// Backend selects the remote store: "github", "s3" or "postgres".
	Backend string
	// CacheDSN is the sqlite file backing the offline cache.
	CacheDSN string
	// RequestTimeout bounds individual store requests.
	RequestTimeout time.Duration
	// CleanupBatchSize caps one expiry-cleanup pass.
	CleanupBatchSize int

	// GitHub backend.
	GitHubOwner  string
	GitHubRepo   string
	GitHubBranch string

	// S3 backend.
	S3Bucket   string
	S3Region   string
	S3Endpoint string
	S3Prefix   string

	// Postgres backend.
	PostgresDSN string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.Backend = BackendGitHub
	c.CacheDSN = "vaultsync.db"
	c.RequestTimeout = 10 * time.Second
	c.CleanupBatchSize = 50
	c.S3Region = "us-east-1"
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
