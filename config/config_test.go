package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "sensorstream.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	idle, err := cfg.Server.IdleTimeoutDuration()
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, idle)

	poll, err := cfg.Server.PollIntervalDuration()
	require.NoError(t, err)
	assert.Equal(t, time.Second, poll)

	ttl, err := cfg.HTTP.SnapshotTTLDuration()
	require.NoError(t, err)
	assert.Equal(t, time.Second, ttl)
}

func TestLoadFile(t *testing.T) {
	t.Run("empty path returns defaults", func(t *testing.T) {
		cfg, err := LoadFile("")
		require.NoError(t, err)
		assert.Equal(t, Default(), cfg)
	})

	t.Run("file overlays defaults", func(t *testing.T) {
		path := writeFile(t, `
server:
  port: 9999
  idle_timeout: "2s"
cache:
  backend: redis
`)
		cfg, err := LoadFile(path)
		require.NoError(t, err)
		assert.Equal(t, 9999, cfg.Server.Port)
		assert.Equal(t, "2s", cfg.Server.IdleTimeout)
		assert.Equal(t, "1s", cfg.Server.PollInterval)
		assert.Equal(t, "redis", cfg.Cache.Backend)
		assert.Equal(t, "127.0.0.1:6379", cfg.Cache.RedisAddress)
		assert.NoError(t, cfg.Validate())
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
		assert.Error(t, err)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		_, err := LoadFile(writeFile(t, "server: [unterminated"))
		assert.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Server.Port = 70000
	cfg.Server.IdleTimeout = "soon"
	cfg.Server.PollInterval = "0s"
	cfg.Server.HistorySize = 0
	cfg.HTTP.ListenAddress = ""
	cfg.Cache.Backend = "memcached"
	cfg.Logging.Level = "loud"
	cfg.Logging.Format = "xml"

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{
		"server.port",
		"server.idle_timeout",
		"server.poll_interval",
		"server.history_size",
		"http.listen_address",
		"cache.backend",
		"logging.level",
		"logging.format",
	} {
		assert.Contains(t, err.Error(), want)
	}

	t.Run("disabled http skips its checks", func(t *testing.T) {
		cfg := Default()
		cfg.HTTP.Enabled = false
		cfg.HTTP.ListenAddress = ""
		cfg.HTTP.SnapshotTTL = ""
		assert.NoError(t, cfg.Validate())
	})
}

func TestExampleYAML(t *testing.T) {
	var cfg Config
	require.NoError(t, yaml.Unmarshal([]byte(ExampleYAML()), &cfg))
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, Default(), cfg)
}
