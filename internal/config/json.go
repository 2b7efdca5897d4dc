package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/vaultsync/internal/flagx"
	"github.com/dmitrijs2005/vaultsync/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. It relies on
// timex.Duration so JSON can specify the timeout either as a string like
// "10s" or as integer nanoseconds. Credentials are deliberately absent: the
// GitHub token and S3 keys come from the OS keyring or the environment.
type JsonConfig struct {
	Backend          string         `json:"backend"`
	CacheDSN         string         `json:"cache_dsn"`
	RequestTimeout   timex.Duration `json:"request_timeout"`
	CleanupBatchSize int            `json:"cleanup_batch_size"`

	GitHubOwner  string `json:"github_owner"`
	GitHubRepo   string `json:"github_repo"`
	GitHubBranch string `json:"github_branch"`

	S3Bucket   string `json:"s3_bucket"`
	S3Region   string `json:"s3_region"`
	S3Endpoint string `json:"s3_endpoint"`
	S3Prefix   string `json:"s3_prefix"`

	PostgresDSN string `json:"postgres_dsn"`
}

// parseJson overlays cfg with values from the JSON file named by the -c or
// -config flag. Absent flags mean no JSON is loaded; only fields present in
// the document override the current value. Read or unmarshal errors panic,
// matching the fail-fast startup behavior of parseFlags.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	var jc JsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.Backend != "" {
		cfg.Backend = jc.Backend
	}
	if jc.CacheDSN != "" {
		cfg.CacheDSN = jc.CacheDSN
	}
	if jc.RequestTimeout.Duration != 0 {
		cfg.RequestTimeout = time.Duration(jc.RequestTimeout.Duration)
	}
	if jc.CleanupBatchSize != 0 {
		cfg.CleanupBatchSize = jc.CleanupBatchSize
	}
	if jc.GitHubOwner != "" {
		cfg.GitHubOwner = jc.GitHubOwner
	}
	if jc.GitHubRepo != "" {
		cfg.GitHubRepo = jc.GitHubRepo
	}
	if jc.GitHubBranch != "" {
		cfg.GitHubBranch = jc.GitHubBranch
	}
	if jc.S3Bucket != "" {
		cfg.S3Bucket = jc.S3Bucket
	}
	if jc.S3Region != "" {
		cfg.S3Region = jc.S3Region
	}
	if jc.S3Endpoint != "" {
		cfg.S3Endpoint = jc.S3Endpoint
	}
	if jc.S3Prefix != "" {
		cfg.S3Prefix = jc.S3Prefix
	}
	if jc.PostgresDSN != "" {
		cfg.PostgresDSN = jc.PostgresDSN
	}
}
