package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, yaml string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cargohold.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	return path
}

func TestLoad_FileValuesAndDefaults(t *testing.T) {
	path := writeConfig(t, `
source: /data/photos
staging: /var/tmp/cargohold
archive:
  ceiling: 1.5GB
  base_name: photos
transfer:
  retry_budget: 5
  chunked_limit: 1GB
s3:
  bucket: vault
  region: eu-west-1
log:
  level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/data/photos", cfg.Source)
	assert.Equal(t, "/var/tmp/cargohold", cfg.Staging)
	assert.Equal(t, int64(1_500_000_000), cfg.Archive.Ceiling)
	assert.Equal(t, "photos", cfg.Archive.BaseName)
	assert.Equal(t, 5, cfg.Transfer.RetryBudget)
	assert.Equal(t, int64(1_000_000_000), cfg.Transfer.ChunkedLimit)
	assert.Equal(t, "vault", cfg.S3.Bucket)
	assert.Equal(t, "eu-west-1", cfg.S3.Region)
	assert.Equal(t, "debug", cfg.Log.Level)

	// Everything not in the file keeps its default.
	assert.Equal(t, 3, cfg.Transfer.Workers)
	assert.Equal(t, 500*time.Millisecond, cfg.Transfer.RetryBase)
	assert.Equal(t, 5*time.Minute, cfg.Transfer.AttemptTimeout)
	assert.True(t, cfg.Transfer.SimpleEnabled)
	assert.True(t, cfg.Transfer.ChunkedEnabled)
	assert.False(t, cfg.Transfer.ForceSimple)
	assert.Zero(t, cfg.Transfer.SimpleLimit, "unset sizes resolve to zero for the constructor default")
	assert.Equal(t, "cargohold", cfg.S3.Prefix)
	assert.Equal(t, 1, cfg.S3.MaxRetries)
	assert.Equal(t, time.Second, cfg.Watch.Debounce)
	assert.Equal(t, 500*time.Millisecond, cfg.Watch.StabilityPoll)
	assert.Equal(t, 3, cfg.Watch.StabilityChecks)
	assert.NotEmpty(t, cfg.Catalog)
}

func TestLoad_PlainIntegerSizes(t *testing.T) {
	path := writeConfig(t, `
archive:
  ceiling: 1900000000
transfer:
  chunk_size: 33554432
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, int64(1_900_000_000), cfg.Archive.Ceiling)
	assert.Equal(t, int64(33_554_432), cfg.Transfer.ChunkSize)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	path := writeConfig(t, `
s3:
  bucket: from-file
`)
	t.Setenv("CARGOHOLD_S3_BUCKET", "from-env")
	t.Setenv("CARGOHOLD_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.S3.Bucket, "environment wins over the file")
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_BadSizeString(t *testing.T) {
	path := writeConfig(t, `
archive:
  ceiling: enormous
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "archive.ceiling")
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoad_ExplicitFileViaEnv(t *testing.T) {
	path := writeConfig(t, `
source: /from/env/config
`)
	t.Setenv("CARGOHOLD_CONFIG", path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/from/env/config", cfg.Source)
}
