package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/zero-day-ai/rpcq/config"
	"github.com/zero-day-ai/rpcq/queue"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/zero-day-ai/rpcq/worker"

// Options configures a Worker and, for Run, the worker process.
type Options struct {
	// Queue is the queue name to consume. Required for New.
	Queue string

	// Prefix namespaces every key of the queue. Defaults to queue.DefaultPrefix.
	Prefix string

	// PollTimeout bounds each blocking pop. Zero blocks until a task arrives.
	// Run defaults it to 1s so loops notice shutdown.
	PollTimeout time.Duration

	// Codec serializes envelopes. Defaults to JSON.
	Codec queue.Codec

	// Logger is the structured logger for worker operations.
	// If nil, a default JSON logger writing to stdout is created.
	Logger *slog.Logger

	// ID identifies this worker in logs and heartbeats. Generated if empty.
	ID string

	// PublishEvents publishes every state change on the namespace's events
	// channel.
	PublishEvents bool

	// TracerProvider and MeterProvider default to the global providers.
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider

	// RedisURL is the Redis connection string used by Run.
	RedisURL string

	// Concurrency is the number of consume loops Run starts.
	// If 0, uses value from rpcq.yaml or default (4).
	Concurrency int

	// ShutdownTimeout is the time Run waits for in-flight tasks.
	// If 0, uses value from rpcq.yaml or default (30s).
	ShutdownTimeout time.Duration

	// HeartbeatInterval and HeartbeatTTL control Run's liveness key.
	HeartbeatInterval time.Duration
	HeartbeatTTL      time.Duration

	// Config is the parsed rpcq.yaml configuration.
	// If nil, Run attempts to load it from ConfigPath or the current directory.
	Config *config.Config

	// ConfigPath is the path to rpcq.yaml.
	ConfigPath string
}

// Worker consumes tasks from one queue and executes them against a Backend.
// A Worker is safe for concurrent use; Run starts several ConsumeLoops on the
// same Worker.
type Worker struct {
	id            string
	broker        queue.Broker
	keys          queue.Keys
	codec         queue.Codec
	poll          time.Duration
	publishEvents bool
	logger        *slog.Logger
	tracer        trace.Tracer
	metrics       *workerMetrics
}

// New returns a worker consuming opts.Queue on broker.
func New(broker queue.Broker, opts Options) (*Worker, error) {
	if broker == nil {
		return nil, errors.New("broker is required")
	}
	if err := queue.ValidateNamespace(opts.Prefix, opts.Queue); err != nil {
		return nil, err
	}
	if opts.Codec == nil {
		opts.Codec = queue.JSON()
	}
	if opts.ID == "" {
		opts.ID = generateWorkerID()
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}
	if opts.TracerProvider == nil {
		opts.TracerProvider = otel.GetTracerProvider()
	}
	if opts.MeterProvider == nil {
		opts.MeterProvider = otel.GetMeterProvider()
	}

	metrics, err := newWorkerMetrics(opts.MeterProvider.Meter(instrumentationName))
	if err != nil {
		return nil, err
	}

	keys := queue.NewKeys(opts.Prefix, opts.Queue)
	return &Worker{
		id:            opts.ID,
		broker:        broker,
		keys:          keys,
		codec:         opts.Codec,
		poll:          opts.PollTimeout,
		publishEvents: opts.PublishEvents,
		logger:        opts.Logger.With("queue", keys.Queue(), "worker_id", opts.ID),
		tracer:        opts.TracerProvider.Tracer(instrumentationName),
		metrics:       metrics,
	}, nil
}

// ID returns the worker's identifier.
func (w *Worker) ID() string {
	return w.id
}

// ConsumeOne takes at most one task from the queue, executes it and delivers
// its result. It returns the id of the processed task, or "" when nothing
// arrived within the poll timeout, in which case nothing was modified.
//
// Handler failures, panics and unknown operations are recorded as error
// results and do not make ConsumeOne fail. Broker failures and undecodable
// envelopes are returned.
func (w *Worker) ConsumeOne(ctx context.Context, backend Backend) (string, error) {
	data, ok, err := w.broker.Pop(ctx, w.keys.Queue(), w.poll)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", nil
	}

	task, err := queue.DecodeTask(w.codec, data)
	if err != nil {
		w.metrics.recordMalformed(ctx)
		return "", err
	}

	// The task is ours now. Finish it even if ctx is cancelled meanwhile.
	ctx = context.WithoutCancel(ctx)
	ctx, span := w.tracer.Start(ctx, "rpcq.consume",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("rpcq.queue", w.keys.Queue()),
			attribute.String("rpcq.task_id", task.ID),
			attribute.String("rpcq.operation", task.Operation),
			attribute.String("rpcq.worker_id", w.id),
		),
	)
	defer span.End()

	logger := w.logger.With("task_id", task.ID, "operation", task.Operation)
	logger.Debug("received task", "args", len(task.Args), "kwargs", len(task.Kwargs))

	if err := w.broker.SetFields(ctx, w.keys.Task(task.ID), queue.MetadataFields(queue.StateRunning, time.Now())); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to mark task running")
		return task.ID, err
	}
	w.publishEvent(ctx, task.ID, queue.StateRunning)

	start := time.Now()
	value, taskErr := w.execute(ctx, backend, task)
	duration := time.Since(start)

	var payload []byte
	if taskErr != nil {
		payload, err = queue.EncodeError(w.codec, taskErr)
	} else {
		payload, err = queue.EncodeResult(w.codec, value)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to encode result")
		return task.ID, err
	}

	err = w.broker.Deliver(ctx, w.keys.Result(task.ID), payload, w.keys.Task(task.ID), queue.MetadataFields(queue.StateDone, time.Now()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to deliver result")
		return task.ID, err
	}
	w.publishEvent(ctx, task.ID, queue.StateDone)

	w.metrics.recordTask(ctx, task.Operation, taskErr, duration)
	if taskErr != nil {
		span.RecordError(taskErr)
		span.SetStatus(codes.Error, taskErr.Error())
		logger.Info("task failed", "error", taskErr, "duration_ms", duration.Milliseconds())
	} else {
		span.SetStatus(codes.Ok, "")
		logger.Info("task completed", "duration_ms", duration.Milliseconds())
	}

	return task.ID, nil
}

// execute resolves and runs the task's handler. The returned error is a
// dispatch or execution error destined for the task's Result.
func (w *Worker) execute(ctx context.Context, backend Backend, task *queue.Task) (value any, err error) {
	h, ok := backend.Lookup(task.Operation)
	if !ok {
		return nil, queue.DispatchError(task.ID, task.Operation)
	}

	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("handler panicked", "task_id", task.ID, "operation", task.Operation, "panic", r)
			value = nil
			err = queue.ExecutionError(task.ID, fmt.Errorf("panic: %v", r))
		}
	}()

	value, err = h(ctx, Args{Positional: task.Args, Named: task.Kwargs})
	if err != nil {
		return nil, queue.ExecutionError(task.ID, err)
	}
	return value, nil
}

// ConsumeLoop runs ConsumeOne until ctx is cancelled. Undecodable envelopes
// are logged and skipped; a broker failure stops the loop and is returned.
func (w *Worker) ConsumeLoop(ctx context.Context, backend Backend) error {
	w.logger.Debug("consume loop started")

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("consume loop stopped", "reason", "context_cancelled")
			return nil
		default:
		}

		_, err := w.ConsumeOne(ctx, backend)
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			w.logger.Debug("consume loop stopped", "reason", "context_error")
			return nil
		}
		if errors.Is(err, queue.ErrProtocol) {
			w.logger.Warn("skipping malformed task", "error", err)
			continue
		}

		w.logger.Error("consume loop failed", "error", err)
		return err
	}
}

// Heartbeat refreshes the worker's liveness key for ttl.
func (w *Worker) Heartbeat(ctx context.Context, ttl time.Duration) error {
	return w.broker.Touch(ctx, w.keys.Worker(w.id), time.Now().UTC().Format(time.RFC3339), ttl)
}

func (w *Worker) publishEvent(ctx context.Context, id string, state queue.State) {
	if !w.publishEvents {
		return
	}
	data, err := queue.EncodeEvent(w.codec, queue.Event{TaskID: id, State: state, Timestamp: time.Now()})
	if err == nil {
		err = w.broker.Publish(ctx, w.keys.Events(), data)
	}
	if err != nil {
		w.logger.Debug("failed to publish event", "task_id", id, "state", state, "error", err)
	}
}

// generateWorkerID creates a unique identifier for this worker instance.
// Uses hostname + PID + UUID for uniqueness.
func generateWorkerID() string {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return fmt.Sprintf("%s-%d-%s", hostname, os.Getpid(), uuid.New().String()[:8])
}
