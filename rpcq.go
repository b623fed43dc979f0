package rpcq

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/zero-day-ai/rpcq/config"
	"github.com/zero-day-ai/rpcq/health"
	"github.com/zero-day-ai/rpcq/queue"
	"github.com/zero-day-ai/rpcq/worker"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Option configures clients and workers built from a config.Config.
type Option func(*settings)

type settings struct {
	logger         *slog.Logger
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// WithLogger sets the logger instead of the one described by the log section.
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) {
		s.logger = logger
	}
}

// WithTracerProvider sets the provider for worker spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *settings) {
		s.tracerProvider = tp
	}
}

// WithMeterProvider sets the provider for worker metrics.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *settings) {
		s.meterProvider = mp
	}
}

func newSettings(cfg *config.Config, opts []Option) *settings {
	s := &settings{}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = cfg.Log.NewLogger(os.Stdout)
	}
	return s
}

// LoadConfig reads rpcq.yaml from path, or searches the current directory
// and its parents when path is empty. A missing file yields the defaults.
// RPCQ_* environment variables are applied on top.
func LoadConfig(path string) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.Load(path)
		if err != nil {
			return nil, err
		}
	} else if cfg, err = config.LoadFromCurrentDir(); err != nil {
		cfg = config.Default()
	}
	cfg.ApplyEnv()
	return cfg, nil
}

// Dial connects to the Redis instance described by cfg.
func Dial(cfg *config.Config) (*queue.RedisBroker, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	return queue.NewRedisBroker(queue.RedisOptions{
		URL:            cfg.Redis.GetURL(),
		ConnectTimeout: cfg.Redis.GetConnectTimeout(),
		ReadTimeout:    cfg.Redis.GetReadTimeout(),
		WriteTimeout:   cfg.Redis.GetWriteTimeout(),
	})
}

// NewClient dials Redis and returns a client for the configured queue.
// Closing the client closes its connection.
func NewClient(cfg *config.Config, opts ...Option) (*queue.Client, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	codec, err := queue.CodecByName(cfg.Queue.GetCodec())
	if err != nil {
		return nil, err
	}
	broker, err := Dial(cfg)
	if err != nil {
		return nil, err
	}

	s := newSettings(cfg, opts)
	client, err := queue.NewClient(broker, queue.Options{
		Queue:   cfg.Queue.GetName(),
		Prefix:  cfg.Queue.GetPrefix(),
		Timeout: cfg.Queue.GetTimeout(),
		Codec:   codec,
		Logger:  s.logger,
	})
	if err != nil {
		_ = broker.Close()
		return nil, err
	}
	return client, nil
}

// NewWorker returns a worker for the configured queue on broker.
func NewWorker(broker queue.Broker, cfg *config.Config, opts ...Option) (*worker.Worker, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	codec, err := queue.CodecByName(cfg.Queue.GetCodec())
	if err != nil {
		return nil, err
	}

	s := newSettings(cfg, opts)
	return worker.New(broker, worker.Options{
		Queue:          cfg.Queue.GetName(),
		Prefix:         cfg.Queue.GetPrefix(),
		PollTimeout:    cfg.Worker.GetPollTimeout(),
		Codec:          codec,
		Logger:         s.logger,
		PublishEvents:  cfg.Worker.GetPublishEvents(),
		TracerProvider: s.tracerProvider,
		MeterProvider:  s.meterProvider,
	})
}

// Serve runs a worker process for backend until ctx is cancelled, with every
// setting taken from cfg.
func Serve(ctx context.Context, backend worker.Backend, cfg *config.Config, opts ...Option) error {
	if cfg == nil {
		cfg = config.Default()
	}
	if _, err := queue.CodecByName(cfg.Queue.GetCodec()); err != nil {
		return fmt.Errorf("invalid queue config: %w", err)
	}

	s := newSettings(cfg, opts)
	return worker.RunContext(ctx, backend, worker.Options{
		Config:         cfg,
		Logger:         s.logger,
		TracerProvider: s.tracerProvider,
		MeterProvider:  s.meterProvider,
	})
}

// Health checks the deployment client talks to: the Redis address and
// server, the queue depth against health.max_queue_depth and the number of
// live workers against health.min_workers.
func Health(ctx context.Context, client *queue.Client, cfg *config.Config) health.Status {
	if cfg == nil {
		cfg = config.Default()
	}
	return health.Combine(
		health.RedisAddressCheck(ctx, cfg.Redis.GetURL()),
		health.BrokerCheck(ctx, client),
		health.QueueDepthCheck(ctx, client, cfg.Health.GetMaxQueueDepth()),
		health.WorkersCheck(ctx, client, cfg.Health.GetMinWorkers()),
	)
}
