package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/zero-day-ai/rpcq/config"
	"github.com/zero-day-ai/rpcq/health"
	"github.com/zero-day-ai/rpcq/queue"
)

// Run starts a worker process for backend with the specified options.
// It connects to Redis, starts Concurrency consume loops, maintains a
// heartbeat, and shuts down gracefully on SIGTERM/SIGINT.
//
// Configuration priority (highest to lowest):
//  1. Explicit Options values (if non-zero)
//  2. rpcq.yaml, with RPCQ_* environment overrides
//  3. Default values
//
// Run blocks until a shutdown signal is received or a consume loop fails.
// On shutdown, it waits up to ShutdownTimeout for in-flight tasks to finish.
func Run(backend Backend, opts Options) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()
	return RunContext(ctx, backend, opts)
}

// RunContext is Run with an explicit lifetime: it returns when ctx is
// cancelled instead of on a signal.
func RunContext(ctx context.Context, backend Backend, opts Options) error {
	cfg := opts.Config
	if cfg == nil {
		var err error
		if opts.ConfigPath != "" {
			cfg, err = config.Load(opts.ConfigPath)
		} else {
			cfg, err = config.LoadFromCurrentDir()
		}
		if err != nil {
			// rpcq.yaml is optional - just use defaults
			cfg = config.Default()
		}
		cfg.ApplyEnv()
	}

	opts = applyConfig(opts, cfg)

	broker, err := queue.NewRedisBroker(queue.RedisOptions{
		URL:            opts.RedisURL,
		ConnectTimeout: cfg.Redis.GetConnectTimeout(),
		ReadTimeout:    cfg.Redis.GetReadTimeout(),
		WriteTimeout:   cfg.Redis.GetWriteTimeout(),
	})
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	defer broker.Close()

	w, err := New(broker, opts)
	if err != nil {
		return err
	}
	logger := w.logger

	status := health.BrokerCheck(ctx, broker)
	if !status.IsHealthy() {
		return fmt.Errorf("broker is %s: %s", status.Status, status.Message)
	}

	logger.Info("worker starting",
		"concurrency", opts.Concurrency,
		"redis_url", opts.RedisURL,
		"poll_timeout", opts.PollTimeout,
		"broker", status.Message,
	)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := w.Heartbeat(runCtx, opts.HeartbeatTTL); err != nil {
		logger.Error("initial heartbeat failed", "error", err)
	}
	hbDone := make(chan struct{})
	go func() {
		defer close(hbDone)
		runHeartbeat(runCtx, w, opts.HeartbeatInterval, opts.HeartbeatTTL)
	}()

	// Remove the heartbeat on exit so ListWorkers drops this worker at once.
	defer func() {
		cancel()
		<-hbDone
		cleanupCtx, cleanupCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cleanupCancel()
		if err := broker.Delete(cleanupCtx, w.keys.Worker(w.id)); err != nil {
			logger.Error("failed to remove heartbeat", "error", err)
		}
	}()

	var wg sync.WaitGroup
	errCh := make(chan error, opts.Concurrency)

	for i := 0; i < opts.Concurrency; i++ {
		wg.Add(1)
		go func(workerNum int) {
			defer wg.Done()
			if err := w.ConsumeLoop(runCtx, backend); err != nil {
				errCh <- fmt.Errorf("consume loop %d: %w", workerNum, err)
			}
		}(i)
	}

	logger.Info("worker started", "loops", opts.Concurrency)

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("received shutdown, initiating graceful shutdown")
	case runErr = <-errCh:
		logger.Error("consume loop failed, shutting down", "error", runErr)
	}

	cancel()

	doneChan := make(chan struct{})
	go func() {
		wg.Wait()
		close(doneChan)
	}()

	select {
	case <-doneChan:
		logger.Info("worker shutdown complete")
	case <-time.After(opts.ShutdownTimeout):
		logger.Warn("worker shutdown timeout exceeded", "timeout", opts.ShutdownTimeout)
		if runErr == nil {
			runErr = errors.New("worker shutdown timeout exceeded")
		}
	}

	return runErr
}

// runHeartbeat refreshes the worker's liveness key until ctx is cancelled.
func runHeartbeat(ctx context.Context, w *Worker, interval, ttl time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	w.logger.Debug("heartbeat goroutine started")

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("heartbeat goroutine stopped")
			return
		case <-ticker.C:
			if err := w.Heartbeat(ctx, ttl); err != nil {
				// Log at debug level to avoid noise - heartbeat failures are transient
				w.logger.Debug("heartbeat failed", "error", err)
			}
		}
	}
}

// applyConfig fills unset Options from cfg. Explicit Options values take
// priority over file values.
func applyConfig(opts Options, cfg *config.Config) Options {
	if cfg == nil {
		cfg = config.Default()
	}

	if opts.Queue == "" {
		opts.Queue = cfg.Queue.GetName()
	}
	if opts.Prefix == "" {
		opts.Prefix = cfg.Queue.GetPrefix()
	}
	if opts.Codec == nil {
		if c, err := queue.CodecByName(cfg.Queue.GetCodec()); err == nil {
			opts.Codec = c
		}
	}
	if opts.RedisURL == "" {
		opts.RedisURL = cfg.Redis.GetURL()
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = cfg.Worker.GetConcurrency()
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = cfg.Worker.GetPollTimeout()
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = cfg.Worker.GetShutdownTimeout()
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = cfg.Worker.GetHeartbeatInterval()
	}
	if opts.HeartbeatTTL <= 0 {
		opts.HeartbeatTTL = cfg.Worker.GetHeartbeatTTL()
	}
	if !opts.PublishEvents {
		opts.PublishEvents = cfg.Worker.GetPublishEvents()
	}
	if opts.Logger == nil {
		opts.Logger = cfg.Log.NewLogger(os.Stdout)
	}
	return opts
}
