package worker

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zero-day-ai/rpcq/config"
	"github.com/zero-day-ai/rpcq/queue"
)

func TestRunContext_Integration(t *testing.T) {
	mr := miniredis.RunT(t)
	redisURL := fmt.Sprintf("redis://%s", mr.Addr())

	cfg := &config.Config{
		Queue: &config.QueueConfig{Name: "calc"},
		Redis: &config.RedisConfig{URL: redisURL},
	}
	reg, _ := calculator()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runErr := make(chan error, 1)
	go func() {
		runErr <- RunContext(ctx, reg, Options{
			ID:                "run-worker",
			Config:            cfg,
			Concurrency:       2,
			PollTimeout:       200 * time.Millisecond,
			ShutdownTimeout:   5 * time.Second,
			HeartbeatInterval: 50 * time.Millisecond,
			Logger:            newTestLogger(),
		})
	}()

	broker, err := queue.NewRedisBroker(queue.RedisOptions{URL: redisURL})
	require.NoError(t, err)
	defer broker.Close()

	client, err := queue.NewClient(broker, queue.Options{Queue: "calc", Timeout: 5 * time.Second, Logger: newTestLogger()})
	require.NoError(t, err)

	v, err := client.ExecuteTask(context.Background(), queue.Op("add"), 20, 22)
	require.NoError(t, err)
	assert.Equal(t, 42.0, v)

	assert.Eventually(t, func() bool {
		workers, err := client.ListWorkers(context.Background())
		return err == nil && len(workers) == 1 && workers[0] == "run-worker"
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-runErr:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("RunContext did not return")
	}

	workers, err := client.ListWorkers(context.Background())
	require.NoError(t, err)
	assert.Empty(t, workers, "heartbeat should be removed on shutdown")
}

func TestRunContext_ConnectionFailure(t *testing.T) {
	err := RunContext(context.Background(), NewRegistry(), Options{
		Config: &config.Config{Redis: &config.RedisConfig{
			URL:            "redis://localhost:99999",
			ConnectTimeout: "100ms",
		}},
		Logger: newTestLogger(),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect to Redis")
}

func TestApplyConfig(t *testing.T) {
	t.Run("defaults without config", func(t *testing.T) {
		opts := applyConfig(Options{}, nil)

		assert.Equal(t, "default", opts.Queue)
		assert.Equal(t, "rpcq", opts.Prefix)
		assert.Equal(t, "redis://localhost:6379", opts.RedisURL)
		assert.Equal(t, 4, opts.Concurrency)
		assert.Equal(t, time.Second, opts.PollTimeout)
		assert.Equal(t, 30*time.Second, opts.ShutdownTimeout)
		assert.Equal(t, 10*time.Second, opts.HeartbeatInterval)
		assert.Equal(t, 30*time.Second, opts.HeartbeatTTL)
		assert.Equal(t, "application/json", opts.Codec.ContentType())
		assert.NotNil(t, opts.Logger)
		assert.False(t, opts.PublishEvents)
	})

	t.Run("config fills unset options", func(t *testing.T) {
		cfg := &config.Config{
			Queue:  &config.QueueConfig{Name: "calc", Codec: "cbor"},
			Worker: &config.WorkerConfig{Concurrency: 8, ShutdownTimeout: "1m", PublishEvents: true},
		}
		opts := applyConfig(Options{}, cfg)

		assert.Equal(t, "calc", opts.Queue)
		assert.Equal(t, 8, opts.Concurrency)
		assert.Equal(t, time.Minute, opts.ShutdownTimeout)
		assert.Equal(t, "application/cbor", opts.Codec.ContentType())
		assert.True(t, opts.PublishEvents)
	})

	t.Run("explicit options win", func(t *testing.T) {
		cfg := &config.Config{
			Queue:  &config.QueueConfig{Name: "calc"},
			Worker: &config.WorkerConfig{Concurrency: 8},
		}
		opts := applyConfig(Options{Queue: "other", Concurrency: 2, PollTimeout: 3 * time.Second}, cfg)

		assert.Equal(t, "other", opts.Queue)
		assert.Equal(t, 2, opts.Concurrency)
		assert.Equal(t, 3*time.Second, opts.PollTimeout)
	})
}

func TestGenerateWorkerID(t *testing.T) {
	id1 := generateWorkerID()
	id2 := generateWorkerID()

	assert.NotEmpty(t, id1)
	assert.NotEqual(t, id1, id2)
}
