package health

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zero-day-ai/rpcq/queue"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

type fakeQueue struct {
	depth   int64
	workers []string
	err     error
}

func (f fakeQueue) GetQueueLength(context.Context) (int64, error) { return f.depth, f.err }
func (f fakeQueue) ListWorkers(context.Context) ([]string, error) { return f.workers, f.err }

func TestBrokerCheck(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		status := BrokerCheck(context.Background(), pingFunc(func(context.Context) error { return nil }))
		assert.True(t, status.IsHealthy(), status.Message)
	})

	t.Run("ping fails", func(t *testing.T) {
		status := BrokerCheck(nil, pingFunc(func(context.Context) error { return errors.New("connection refused") }))
		assert.True(t, status.IsUnhealthy())
		assert.Equal(t, "connection refused", status.Details["error"])
	})

	t.Run("not configured", func(t *testing.T) {
		assert.True(t, BrokerCheck(context.Background(), nil).IsUnhealthy())
	})

	t.Run("miniredis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		broker, err := queue.NewRedisBroker(queue.RedisOptions{URL: fmt.Sprintf("redis://%s", mr.Addr())})
		require.NoError(t, err)
		defer broker.Close()

		assert.True(t, BrokerCheck(context.Background(), broker).IsHealthy())

		mr.Close()
		assert.True(t, BrokerCheck(context.Background(), broker).IsUnhealthy())
	})
}

func TestQueueDepthCheck(t *testing.T) {
	tests := []struct {
		name      string
		queue     fakeQueue
		threshold int64
		want      string
	}{
		{name: "empty", queue: fakeQueue{}, threshold: 10, want: StatusHealthy},
		{name: "at threshold", queue: fakeQueue{depth: 10}, threshold: 10, want: StatusHealthy},
		{name: "above threshold", queue: fakeQueue{depth: 11}, threshold: 10, want: StatusDegraded},
		{name: "no threshold", queue: fakeQueue{depth: 1 << 20}, threshold: 0, want: StatusHealthy},
		{name: "broker error", queue: fakeQueue{err: errors.New("down")}, threshold: 10, want: StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status := QueueDepthCheck(context.Background(), tt.queue, tt.threshold)
			assert.Equal(t, tt.want, status.Status, status.Message)
			assert.NotEmpty(t, status.Message)
		})
	}

	t.Run("real client", func(t *testing.T) {
		mr := miniredis.RunT(t)
		broker, err := queue.NewRedisBroker(queue.RedisOptions{URL: fmt.Sprintf("redis://%s", mr.Addr())})
		require.NoError(t, err)
		defer broker.Close()

		client, err := queue.NewClient(broker, queue.Options{Queue: "calc"})
		require.NoError(t, err)

		for i := 0; i < 3; i++ {
			_, err := client.PushTask(context.Background(), queue.Op("add"), i, i)
			require.NoError(t, err)
		}

		status := QueueDepthCheck(context.Background(), client, 2)
		assert.True(t, status.IsDegraded())
		assert.Equal(t, int64(3), status.Details["depth"])
	})
}

func TestWorkersCheck(t *testing.T) {
	assert.True(t, WorkersCheck(context.Background(), fakeQueue{workers: []string{"a", "b"}}, 1).IsHealthy())
	assert.True(t, WorkersCheck(context.Background(), fakeQueue{}, 1).IsUnhealthy())
	assert.True(t, WorkersCheck(context.Background(), fakeQueue{}, 0).IsHealthy())
	assert.True(t, WorkersCheck(context.Background(), fakeQueue{err: errors.New("down")}, 0).IsUnhealthy())
	assert.True(t, WorkersCheck(context.Background(), nil, 0).IsUnhealthy())
}

func TestRedisAddressCheck(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	tests := []struct {
		name    string
		url     string
		healthy bool
	}{
		{name: "listening server", url: fmt.Sprintf("redis://%s/0", listener.Addr()), healthy: true},
		{name: "closed port", url: "redis://127.0.0.1:1"},
		{name: "not a redis url", url: "http://localhost:6379"},
		{name: "garbage", url: "::"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()

			status := RedisAddressCheck(ctx, tt.url)
			assert.Equal(t, tt.healthy, status.IsHealthy(), status.Message)
			assert.NotEmpty(t, status.Message)
		})
	}
}

func TestCombine(t *testing.T) {
	tests := []struct {
		name         string
		checks       []Status
		expectStatus string
	}{
		{
			name:         "all healthy",
			checks:       []Status{Healthy("check 1"), Healthy("check 2"), Healthy("check 3")},
			expectStatus: StatusHealthy,
		},
		{
			name:         "one unhealthy",
			checks:       []Status{Healthy("check 1"), Unhealthy("check 2 failed", nil), Healthy("check 3")},
			expectStatus: StatusUnhealthy,
		},
		{
			name:         "one degraded",
			checks:       []Status{Healthy("check 1"), Degraded("check 2 degraded", nil)},
			expectStatus: StatusDegraded,
		},
		{
			name:         "unhealthy and degraded",
			checks:       []Status{Degraded("check 1 degraded", nil), Unhealthy("check 2 failed", nil)},
			expectStatus: StatusUnhealthy,
		},
		{
			name:         "no checks",
			checks:       nil,
			expectStatus: StatusHealthy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status := Combine(tt.checks...)

			if status.Status != tt.expectStatus {
				t.Errorf("expected status %s, got %s: %s", tt.expectStatus, status.Status, status.Message)
			}
			if status.Message == "" {
				t.Error("expected non-empty message")
			}
			if status.Status != StatusHealthy && status.Details == nil {
				t.Error("expected details for non-healthy status")
			}
		})
	}
}

func TestCombine_UnnamedChecks(t *testing.T) {
	status := Combine(Status{Status: StatusUnhealthy})
	require.True(t, status.IsUnhealthy())
	assert.Equal(t, []string{"unnamed check"}, status.Details["failing"])
}

func TestCombine_Details(t *testing.T) {
	status := Combine(
		Healthy("broker"),
		Degraded("queue depth 12 exceeds 10", nil),
		Status{Status: "bogus", Message: "mystery"},
	)
	require.True(t, status.IsUnhealthy())
	assert.Equal(t, "1 of 3 check(s) failed", status.Message)
	assert.Equal(t, 1, status.Details[StatusHealthy])
	assert.Equal(t, 1, status.Details[StatusDegraded])
	assert.Equal(t, 1, status.Details[StatusUnhealthy])
	assert.Equal(t, []string{"queue depth 12 exceeds 10", "mystery"}, status.Details["failing"])

	status = Combine(Healthy("broker"), Degraded("slow", nil))
	require.True(t, status.IsDegraded())
	assert.Equal(t, "1 of 2 check(s) degraded", status.Message)
}
