package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zero-day-ai/rpcq/queue"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// workerMetrics holds the instruments recorded per consumed task.
type workerMetrics struct {
	// tasks counts processed tasks by operation and outcome
	tasks metric.Int64Counter

	// duration records handler time in milliseconds
	duration metric.Float64Histogram

	// malformed counts envelopes that could not be decoded
	malformed metric.Int64Counter
}

func newWorkerMetrics(meter metric.Meter) (*workerMetrics, error) {
	m := &workerMetrics{}
	var err error

	m.tasks, err = meter.Int64Counter(
		"rpcq.worker.tasks",
		metric.WithDescription("Number of tasks processed"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create tasks counter: %w", err)
	}

	m.duration, err = meter.Float64Histogram(
		"rpcq.worker.task.duration",
		metric.WithDescription("Handler execution time in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("create duration histogram: %w", err)
	}

	m.malformed, err = meter.Int64Counter(
		"rpcq.worker.malformed",
		metric.WithDescription("Number of task envelopes that failed to decode"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create malformed counter: %w", err)
	}

	return m, nil
}

// outcome classifies a task result for the status attribute.
func outcome(taskErr error) string {
	switch {
	case taskErr == nil:
		return "ok"
	case errors.Is(taskErr, queue.ErrDispatch):
		return "dispatch_error"
	default:
		return "execution_error"
	}
}

func (m *workerMetrics) recordTask(ctx context.Context, operation string, taskErr error, d time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("status", outcome(taskErr)),
	)
	m.tasks.Add(ctx, 1, attrs)
	m.duration.Record(ctx, float64(d.Microseconds())/1000, attrs)
}

func (m *workerMetrics) recordMalformed(ctx context.Context) {
	m.malformed.Add(ctx, 1)
}
