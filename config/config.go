// Package config provides loading and parsing of rpcq.yaml configuration files.
// A configuration describes the queue namespace, the Redis connection, worker
// runtime settings and logging.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// File names searched by Load when given a directory, in order.
var fileNames = []string{"rpcq.yaml", "rpcq.yml"}

// Environment variables that override file values.
const (
	EnvRedisURL = "RPCQ_REDIS_URL"
	EnvQueue    = "RPCQ_QUEUE"
	EnvPrefix   = "RPCQ_PREFIX"
	EnvLogLevel = "RPCQ_LOG_LEVEL"
)

// Config represents an rpcq.yaml configuration file.
type Config struct {
	Queue  *QueueConfig  `yaml:"queue,omitempty"`
	Redis  *RedisConfig  `yaml:"redis,omitempty"`
	Worker *WorkerConfig `yaml:"worker,omitempty"`
	Log    *LogConfig    `yaml:"log,omitempty"`
	Health *HealthConfig `yaml:"health,omitempty"`
}

// QueueConfig names the queue and how envelopes are written to it.
type QueueConfig struct {
	// Name is the queue name shared by clients and workers.
	// Default: "default"
	Name string `yaml:"name,omitempty"`

	// Prefix namespaces every key of the queue.
	// Default: "rpcq"
	Prefix string `yaml:"prefix,omitempty"`

	// Timeout bounds ExecuteTask waits. "0s" or empty waits without bound.
	Timeout string `yaml:"timeout,omitempty"`

	// Codec selects the envelope codec: json, cbor or protojson.
	// Default: json
	Codec string `yaml:"codec,omitempty"`
}

// GetName returns the queue name or the default value.
func (q *QueueConfig) GetName() string {
	if q == nil || q.Name == "" {
		return "default"
	}
	return q.Name
}

// GetPrefix returns the key prefix or the default value.
func (q *QueueConfig) GetPrefix() string {
	if q == nil || q.Prefix == "" {
		return "rpcq"
	}
	return q.Prefix
}

// GetTimeout parses the client wait timeout. Returns 0 if not set or invalid.
func (q *QueueConfig) GetTimeout() time.Duration {
	if q == nil {
		return 0
	}
	return parseDuration(q.Timeout, 0)
}

// GetCodec returns the codec name or "json".
func (q *QueueConfig) GetCodec() string {
	if q == nil || q.Codec == "" {
		return "json"
	}
	return strings.ToLower(q.Codec)
}

// RedisConfig defines the broker connection.
type RedisConfig struct {
	// URL is the Redis connection string.
	// Default: redis://localhost:6379
	URL string `yaml:"url,omitempty"`

	// ConnectTimeout, ReadTimeout and WriteTimeout are Go duration strings.
	ConnectTimeout string `yaml:"connect_timeout,omitempty"`
	ReadTimeout    string `yaml:"read_timeout,omitempty"`
	WriteTimeout   string `yaml:"write_timeout,omitempty"`
}

// GetURL returns the Redis URL or the default value.
func (r *RedisConfig) GetURL() string {
	if r == nil || r.URL == "" {
		return "redis://localhost:6379"
	}
	return r.URL
}

// GetConnectTimeout returns the dial timeout. Default: 5s
func (r *RedisConfig) GetConnectTimeout() time.Duration {
	if r == nil {
		return 5 * time.Second
	}
	return parseDuration(r.ConnectTimeout, 5*time.Second)
}

// GetReadTimeout returns the read timeout. Default: 30s
func (r *RedisConfig) GetReadTimeout() time.Duration {
	if r == nil {
		return 30 * time.Second
	}
	return parseDuration(r.ReadTimeout, 30*time.Second)
}

// GetWriteTimeout returns the write timeout. Default: 5s
func (r *RedisConfig) GetWriteTimeout() time.Duration {
	if r == nil {
		return 5 * time.Second
	}
	return parseDuration(r.WriteTimeout, 5*time.Second)
}

// WorkerConfig defines configuration for worker processes.
type WorkerConfig struct {
	// Concurrency is the number of consume loops per process.
	// Default: 4
	Concurrency int `yaml:"concurrency,omitempty"`

	// PollTimeout is how long one blocking pop waits before the loop checks
	// for shutdown.
	// Default: 1s
	PollTimeout string `yaml:"poll_timeout,omitempty"`

	// ShutdownTimeout is the time to wait for in-flight tasks on shutdown.
	// Default: 30s
	ShutdownTimeout string `yaml:"shutdown_timeout,omitempty"`

	// HeartbeatInterval is the interval between heartbeat refreshes.
	// Default: 10s
	HeartbeatInterval string `yaml:"heartbeat_interval,omitempty"`

	// HeartbeatTTL is how long a heartbeat stays visible without refresh.
	// Default: 30s
	HeartbeatTTL string `yaml:"heartbeat_ttl,omitempty"`

	// PublishEvents enables state change notifications on the events channel.
	PublishEvents bool `yaml:"publish_events,omitempty"`
}

// GetConcurrency returns the configured concurrency or the default value.
func (w *WorkerConfig) GetConcurrency() int {
	if w == nil || w.Concurrency <= 0 {
		return 4
	}
	return w.Concurrency
}

// GetPollTimeout parses the poll timeout. Default: 1s
func (w *WorkerConfig) GetPollTimeout() time.Duration {
	if w == nil {
		return time.Second
	}
	return parseDuration(w.PollTimeout, time.Second)
}

// GetShutdownTimeout parses the shutdown timeout. Default: 30s
func (w *WorkerConfig) GetShutdownTimeout() time.Duration {
	if w == nil {
		return 30 * time.Second
	}
	return parseDuration(w.ShutdownTimeout, 30*time.Second)
}

// GetHeartbeatInterval parses the heartbeat interval. Default: 10s
func (w *WorkerConfig) GetHeartbeatInterval() time.Duration {
	if w == nil {
		return 10 * time.Second
	}
	return parseDuration(w.HeartbeatInterval, 10*time.Second)
}

// GetHeartbeatTTL parses the heartbeat TTL. Default: 30s
func (w *WorkerConfig) GetHeartbeatTTL() time.Duration {
	if w == nil {
		return 30 * time.Second
	}
	return parseDuration(w.HeartbeatTTL, 30*time.Second)
}

// GetPublishEvents reports whether workers publish state changes.
func (w *WorkerConfig) GetPublishEvents() bool {
	return w != nil && w.PublishEvents
}

// HealthConfig sets the thresholds of deployment health checks.
type HealthConfig struct {
	// MaxQueueDepth marks the queue degraded above this many waiting tasks.
	// 0 disables the check.
	MaxQueueDepth int64 `yaml:"max_queue_depth,omitempty"`

	// MinWorkers marks the deployment unhealthy below this many live workers.
	MinWorkers int `yaml:"min_workers,omitempty"`
}

// GetMaxQueueDepth returns the depth threshold, 0 when unset.
func (h *HealthConfig) GetMaxQueueDepth() int64 {
	if h == nil || h.MaxQueueDepth < 0 {
		return 0
	}
	return h.MaxQueueDepth
}

// GetMinWorkers returns the worker minimum, 0 when unset.
func (h *HealthConfig) GetMinWorkers() int {
	if h == nil || h.MinWorkers < 0 {
		return 0
	}
	return h.MinWorkers
}

// LogConfig selects the slog handler.
type LogConfig struct {
	// Level is one of debug, info, warn, error. Default: info
	Level string `yaml:"level,omitempty"`

	// Format is json or text. Default: json
	Format string `yaml:"format,omitempty"`
}

// GetLevel maps the configured level to a slog.Level.
func (l *LogConfig) GetLevel() slog.Level {
	if l == nil {
		return slog.LevelInfo
	}
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger builds a logger writing to w. A nil w writes to stdout.
func (l *LogConfig) NewLogger(w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	opts := &slog.HandlerOptions{Level: l.GetLevel()}
	if l != nil && strings.EqualFold(l.Format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return def
	}
	return d
}

// Default returns an empty configuration; every getter yields its default.
func Default() *Config {
	return &Config{}
}

// ApplyEnv overrides file values with RPCQ_* environment variables.
func (c *Config) ApplyEnv() {
	if v, ok := os.LookupEnv(EnvRedisURL); ok && v != "" {
		if c.Redis == nil {
			c.Redis = &RedisConfig{}
		}
		c.Redis.URL = v
	}
	if v, ok := os.LookupEnv(EnvQueue); ok && v != "" {
		if c.Queue == nil {
			c.Queue = &QueueConfig{}
		}
		c.Queue.Name = v
	}
	if v, ok := os.LookupEnv(EnvPrefix); ok && v != "" {
		if c.Queue == nil {
			c.Queue = &QueueConfig{}
		}
		c.Queue.Prefix = v
	}
	if v, ok := os.LookupEnv(EnvLogLevel); ok && v != "" {
		if c.Log == nil {
			c.Log = &LogConfig{}
		}
		c.Log.Level = v
	}
}

// Load reads and parses an rpcq.yaml file from the given path.
// If the path is a directory, it looks for rpcq.yaml or rpcq.yml in that directory.
func Load(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat path: %w", err)
	}

	configPath := path
	if info.IsDir() {
		configPath = ""
		for _, name := range fileNames {
			candidate := filepath.Join(path, name)
			if _, err := os.Stat(candidate); err == nil {
				configPath = candidate
				break
			}
		}
		if configPath == "" {
			return nil, fmt.Errorf("no rpcq.yaml or rpcq.yml found in %s", path)
		}
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &config, nil
}

// LoadFromDir searches for rpcq.yaml starting from the given directory
// and walking up to parent directories until found or root is reached.
func LoadFromDir(dir string) (*Config, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	for {
		config, err := Load(absDir)
		if err == nil {
			return config, nil
		}

		parent := filepath.Dir(absDir)
		if parent == absDir {
			return nil, fmt.Errorf("no rpcq.yaml found in %s or parent directories", dir)
		}
		absDir = parent
	}
}

// LoadFromCurrentDir loads rpcq.yaml from the current working directory.
func LoadFromCurrentDir() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get current directory: %w", err)
	}
	return LoadFromDir(cwd)
}
