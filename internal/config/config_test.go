package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "127.0.0.1", cfg.Host)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 7, cfg.KeyLength)
	assert.Equal(t, 16, cfg.CorePoolSize)
	assert.Equal(t, 10, cfg.CacheExpiryMinutes)
	assert.Equal(t, 200, cfg.CacheMaxSizeMb)
	assert.Equal(t, 10, cfg.MaxContentLengthMb)
	assert.Equal(t, 1440, cfg.LifetimeMinutes)
	assert.Equal(t, 30, cfg.PostRateLimit)
	assert.Equal(t, 26, cfg.UpdateRateLimit)
	assert.Equal(t, 2.0, cfg.ReadFailedMultiplier)
	assert.True(t, cfg.MetricsEnabled)
	assert.Equal(t, "content", cfg.ContentPath)
	assert.Equal(t, "db/bytebin.db", cfg.IndexPath)
	require.NoError(t, cfg.Validate())
}

func TestLoadFromBytesJSON(t *testing.T) {
	// YAML is a superset of JSON, so the historical config.json still loads.
	data := []byte(`{
		"host": "0.0.0.0",
		"port": 3000,
		"keyLength": 10,
		"maxContentLengthMb": 50,
		"apiKeys": ["abcdefghijklmnopqrstuvwxyz012345"],
		"httpHostAliases": {"bytebin.example.com": "paste.example.com"}
	}`)

	cfg, err := LoadFromBytes(data)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0", cfg.Host)
	assert.Equal(t, 3000, cfg.Port)
	assert.Equal(t, 10, cfg.KeyLength)
	assert.Equal(t, 50, cfg.MaxContentLengthMb)
	assert.Equal(t, []string{"abcdefghijklmnopqrstuvwxyz012345"}, cfg.APIKeys)
	assert.Equal(t, "paste.example.com", cfg.HTTPHostAliases["bytebin.example.com"])
	// Untouched keys keep their defaults.
	assert.Equal(t, 16, cfg.CorePoolSize)
}

func TestLoadFromBytesYAML(t *testing.T) {
	data := []byte(`
host: 0.0.0.0
port: 9090
s3: true
s3Bucket: bytebin-content
s3SizeThresholdKb: 100
lifetimeMinutesByUserAgent:
  curl: 60
`)
	cfg, err := LoadFromBytes(data)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Port)
	assert.True(t, cfg.S3)
	assert.Equal(t, "bytebin-content", cfg.S3Bucket)
	assert.Equal(t, 60, cfg.LifetimeMinutesByUserAgent["curl"])
}

func TestEnvExpansion(t *testing.T) {
	t.Setenv("TEST_BYTEBIN_BUCKET", "from-env")

	data := []byte(`
s3: true
s3Bucket: ${TEST_BYTEBIN_BUCKET}
host: ${TEST_BYTEBIN_MISSING:-10.0.0.1}
`)
	cfg, err := LoadFromBytes(data)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.S3Bucket)
	assert.Equal(t, "10.0.0.1", cfg.Host)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("BYTEBIN_PORT", "4444")
	t.Setenv("BYTEBIN_METRICS_ENABLED", "false")
	t.Setenv("BYTEBIN_ADMIN_API_KEYS", "key1, key2")
	t.Setenv("BYTEBIN_READ_FAILED_MULTIPLIER", "3.5")

	cfg, err := LoadFromBytes([]byte(`{"port": 1234}`))
	require.NoError(t, err)
	assert.Equal(t, 4444, cfg.Port, "env beats file")
	assert.False(t, cfg.MetricsEnabled)
	assert.Equal(t, []string{"key1", "key2"}, cfg.AdminAPIKeys)
	assert.Equal(t, 3.5, cfg.ReadFailedMultiplier)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"port": 8888}`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8888, cfg.Port)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"bad port", func(c *Config) { c.Port = 0 }, "invalid port"},
		{"bad key length", func(c *Config) { c.KeyLength = 1 }, "invalid keyLength"},
		{"bad pool size", func(c *Config) { c.CorePoolSize = 0 }, "invalid corePoolSize"},
		{"s3 without bucket", func(c *Config) { c.S3 = true }, "s3Bucket is required"},
		{"empty content path", func(c *Config) { c.ContentPath = "" }, "contentPath is required"},
		{"bad multiplier", func(c *Config) { c.ReadFailedMultiplier = 0.5 }, "invalid readFailedMultiplier"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
