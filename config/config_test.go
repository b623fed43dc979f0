package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
queue:
  name: calc
  prefix: jobs
  timeout: 10s
  codec: CBOR
redis:
  url: redis://cache:6380/2
  read_timeout: 1m
worker:
  concurrency: 8
  poll_timeout: 2s
  shutdown_timeout: 45s
  heartbeat_interval: 5s
  heartbeat_ttl: 15s
  publish_events: true
log:
  level: debug
  format: text
health:
  max_queue_depth: 500
  min_workers: 2
`

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	t.Run("file path", func(t *testing.T) {
		path := writeConfig(t, t.TempDir(), "rpcq.yaml", sampleConfig)

		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, "calc", cfg.Queue.GetName())
		assert.Equal(t, "jobs", cfg.Queue.GetPrefix())
		assert.Equal(t, 10*time.Second, cfg.Queue.GetTimeout())
		assert.Equal(t, "cbor", cfg.Queue.GetCodec())

		assert.Equal(t, "redis://cache:6380/2", cfg.Redis.GetURL())
		assert.Equal(t, time.Minute, cfg.Redis.GetReadTimeout())
		assert.Equal(t, 5*time.Second, cfg.Redis.GetConnectTimeout())

		assert.Equal(t, 8, cfg.Worker.GetConcurrency())
		assert.Equal(t, 2*time.Second, cfg.Worker.GetPollTimeout())
		assert.Equal(t, 45*time.Second, cfg.Worker.GetShutdownTimeout())
		assert.Equal(t, 5*time.Second, cfg.Worker.GetHeartbeatInterval())
		assert.Equal(t, 15*time.Second, cfg.Worker.GetHeartbeatTTL())
		assert.True(t, cfg.Worker.GetPublishEvents())

		assert.Equal(t, slog.LevelDebug, cfg.Log.GetLevel())

		assert.Equal(t, int64(500), cfg.Health.GetMaxQueueDepth())
		assert.Equal(t, 2, cfg.Health.GetMinWorkers())
	})

	t.Run("directory with yml extension", func(t *testing.T) {
		dir := t.TempDir()
		writeConfig(t, dir, "rpcq.yml", "queue:\n  name: other\n")

		cfg, err := Load(dir)
		require.NoError(t, err)
		assert.Equal(t, "other", cfg.Queue.GetName())
	})

	t.Run("directory without config", func(t *testing.T) {
		_, err := Load(t.TempDir())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no rpcq.yaml or rpcq.yml found")
	})

	t.Run("missing path", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to stat path")
	})

	t.Run("invalid yaml", func(t *testing.T) {
		path := writeConfig(t, t.TempDir(), "rpcq.yaml", "queue: [unclosed")

		_, err := Load(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to parse config file")
	})
}

func TestLoadFromDir(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "rpcq.yaml", "queue:\n  name: parent\n")

	child := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(child, 0o755))

	cfg, err := LoadFromDir(child)
	require.NoError(t, err)
	assert.Equal(t, "parent", cfg.Queue.GetName())
}

func TestDefaults(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "default", cfg.Queue.GetName())
	assert.Equal(t, "rpcq", cfg.Queue.GetPrefix())
	assert.Equal(t, time.Duration(0), cfg.Queue.GetTimeout())
	assert.Equal(t, "json", cfg.Queue.GetCodec())
	assert.Equal(t, "redis://localhost:6379", cfg.Redis.GetURL())
	assert.Equal(t, 30*time.Second, cfg.Redis.GetReadTimeout())
	assert.Equal(t, 5*time.Second, cfg.Redis.GetWriteTimeout())
	assert.Equal(t, 4, cfg.Worker.GetConcurrency())
	assert.Equal(t, time.Second, cfg.Worker.GetPollTimeout())
	assert.Equal(t, 30*time.Second, cfg.Worker.GetShutdownTimeout())
	assert.Equal(t, 10*time.Second, cfg.Worker.GetHeartbeatInterval())
	assert.Equal(t, 30*time.Second, cfg.Worker.GetHeartbeatTTL())
	assert.False(t, cfg.Worker.GetPublishEvents())
	assert.Equal(t, slog.LevelInfo, cfg.Log.GetLevel())
	assert.Equal(t, int64(0), cfg.Health.GetMaxQueueDepth())
	assert.Equal(t, 0, cfg.Health.GetMinWorkers())
	assert.Equal(t, 0, (&HealthConfig{MinWorkers: -3}).GetMinWorkers())
}

func TestInvalidDurationsFallBack(t *testing.T) {
	w := &WorkerConfig{PollTimeout: "soon", ShutdownTimeout: "-5s"}
	assert.Equal(t, time.Second, w.GetPollTimeout())
	assert.Equal(t, 30*time.Second, w.GetShutdownTimeout())

	q := &QueueConfig{Timeout: "forever"}
	assert.Equal(t, time.Duration(0), q.GetTimeout())
}

func TestApplyEnv(t *testing.T) {
	t.Setenv(EnvRedisURL, "redis://env:6379")
	t.Setenv(EnvQueue, "env-queue")
	t.Setenv(EnvPrefix, "env")
	t.Setenv(EnvLogLevel, "error")

	cfg := &Config{Queue: &QueueConfig{Name: "file-queue", Timeout: "3s"}}
	cfg.ApplyEnv()

	assert.Equal(t, "redis://env:6379", cfg.Redis.GetURL())
	assert.Equal(t, "env-queue", cfg.Queue.GetName())
	assert.Equal(t, "env", cfg.Queue.GetPrefix())
	assert.Equal(t, 3*time.Second, cfg.Queue.GetTimeout())
	assert.Equal(t, slog.LevelError, cfg.Log.GetLevel())
}

func TestLogConfig_NewLogger(t *testing.T) {
	t.Run("json by default", func(t *testing.T) {
		var buf bytes.Buffer
		var l *LogConfig
		l.NewLogger(&buf).Info("hello", "k", "v")
		assert.Contains(t, buf.String(), `"msg":"hello"`)
	})

	t.Run("text format honours level", func(t *testing.T) {
		var buf bytes.Buffer
		logger := (&LogConfig{Level: "warn", Format: "text"}).NewLogger(&buf)

		logger.Info("hidden")
		logger.Warn("shown")

		assert.NotContains(t, buf.String(), "hidden")
		assert.Contains(t, buf.String(), "msg=shown")
	})
}
