package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Configuration {
	cfg := NewDefault()
	cfg.S3.AccKey = "AKIAEXAMPLE"
	cfg.S3.SecKey = "secret"
	cfg.Transfer.Bucket = "bucket"
	return cfg
}

func TestNewDefault(t *testing.T) {
	cfg := NewDefault()
	assert.Equal(t, "INFO", cfg.Global.Logging.Level)
	assert.Equal(t, "s3.amazonaws.com", cfg.S3.Host)
	assert.Equal(t, 8, cfg.Transfer.PoolSize)
	assert.Equal(t, "8MB", cfg.Transfer.PartSize)
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
}

func TestValidate(t *testing.T) {
	require.NoError(t, validConfig().Validate())

	cfg := validConfig()
	cfg.S3.AccKey = ""
	assert.Error(t, cfg.Validate(), "missing access key")

	cfg = validConfig()
	cfg.Transfer.PoolSize = 0
	assert.Error(t, cfg.Validate(), "zero pool size")

	cfg = validConfig()
	cfg.Transfer.Concurrency = 1000
	assert.Error(t, cfg.Validate(), "concurrency over the wait limit")

	cfg = validConfig()
	cfg.Transfer.PartSize = "1MB"
	assert.Error(t, cfg.Validate(), "part size below the multipart minimum")

	cfg = validConfig()
	cfg.Global.Logging.Level = "verbose"
	assert.Error(t, cfg.Validate(), "bad log level")
}

func TestLoadFromFile(t *testing.T) {
	content := `
global:
  logging:
    level: DEBUG
s3:
  access_key: AKIAFILE
  secret_key: filesecret
  host: s3-eu-west-1.amazonaws.com
transfer:
  bucket: from-file
  pool_size: 4
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg := NewDefault()
	require.NoError(t, cfg.LoadFromFile(path))

	assert.Equal(t, "DEBUG", cfg.Global.Logging.Level)
	assert.Equal(t, "AKIAFILE", cfg.S3.AccKey)
	assert.Equal(t, "s3-eu-west-1.amazonaws.com", cfg.S3.Host)
	assert.Equal(t, "from-file", cfg.Transfer.Bucket)
	assert.Equal(t, 4, cfg.Transfer.PoolSize)
	assert.Equal(t, 8, cfg.Transfer.Concurrency, "unset fields keep defaults")
}

func TestLoadFromFileMissing(t *testing.T) {
	cfg := NewDefault()
	assert.Error(t, cfg.LoadFromFile("/nonexistent/config.yaml"))
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY", "AKIAENV")
	t.Setenv("AWS_SECRET_KEY", "envsecret")
	t.Setenv("AWS_BUCKET_NAME", "env-bucket")
	t.Setenv("AWS_HOST", "walrus.internal")
	t.Setenv("AWS_PROXY", "proxy.internal:3128")
	t.Setenv("S3PIPE_WALRUS", "true")
	t.Setenv("S3PIPE_TIMEOUT", "45s")
	t.Setenv("S3PIPE_CONCURRENCY", "32")

	cfg := NewDefault()
	cfg.LoadFromEnv()

	assert.Equal(t, "AKIAENV", cfg.S3.AccKey)
	assert.Equal(t, "envsecret", cfg.S3.SecKey)
	assert.Equal(t, "env-bucket", cfg.Transfer.Bucket)
	assert.Equal(t, "walrus.internal", cfg.S3.Host)
	assert.Equal(t, "proxy.internal:3128", cfg.S3.Proxy)
	assert.True(t, cfg.S3.IsWalrus)
	assert.Equal(t, 45*time.Second, cfg.S3.Timeout)
	assert.Equal(t, 32, cfg.Transfer.Concurrency)
}

func TestSaveRoundTrip(t *testing.T) {
	cfg := validConfig()
	cfg.Transfer.Prefix = "bench/"
	path := filepath.Join(t.TempDir(), "out", "config.yaml")
	require.NoError(t, cfg.SaveToFile(path))

	loaded := NewDefault()
	require.NoError(t, loaded.LoadFromFile(path))
	assert.Equal(t, cfg.S3.AccKey, loaded.S3.AccKey)
	assert.Equal(t, cfg.Transfer.Prefix, loaded.Transfer.Prefix)
}

func TestPartSizeBytes(t *testing.T) {
	cfg := validConfig()
	n, err := cfg.PartSizeBytes()
	require.NoError(t, err)
	assert.Equal(t, int64(8*1024*1024), n)

	cfg.Transfer.PartSize = "bogus"
	_, err = cfg.PartSizeBytes()
	assert.Error(t, err)
}
