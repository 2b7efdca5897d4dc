package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.Equal(t, BackendGitHub, c.Backend)
	assert.Equal(t, "vaultsync.db", c.CacheDSN)
	assert.Equal(t, 10*time.Second, c.RequestTimeout)
	assert.Equal(t, 50, c.CleanupBatchSize)
	assert.Equal(t, "us-east-1", c.S3Region)
}

func TestLoadConfig_UsesDefaultsBeforeParsing(t *testing.T) {
	orig := os.Args
	t.Cleanup(func() { os.Args = orig })
	os.Args = []string{"vaultsync"}

	cfg := LoadConfig()

	require.NotNil(t, cfg, "LoadConfig must not return nil")
	assert.Equal(t, BackendGitHub, cfg.Backend)
	assert.Equal(t, 10*time.Second, cfg.RequestTimeout)
}
