package health

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/redis/go-redis/v9"
)

// defaultTimeout bounds checks called with a nil context.
const defaultTimeout = 5 * time.Second

// Pinger is implemented by queue.RedisBroker.
type Pinger interface {
	Ping(ctx context.Context) error
}

// QueueLengther is implemented by queue.Client.
type QueueLengther interface {
	GetQueueLength(ctx context.Context) (int64, error)
}

// WorkerLister is implemented by queue.Client.
type WorkerLister interface {
	ListWorkers(ctx context.Context) ([]string, error)
}

func withDefaultTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		return context.WithTimeout(context.Background(), defaultTimeout)
	}
	return ctx, func() {}
}

// BrokerCheck verifies the broker answers a ping.
//
// Example:
//
//	status := health.BrokerCheck(ctx, broker)
//	if status.IsUnhealthy() {
//	    log.Fatal("redis is unreachable")
//	}
func BrokerCheck(ctx context.Context, p Pinger) Status {
	if p == nil {
		return Unhealthy("broker is not configured", nil)
	}
	ctx, cancel := withDefaultTimeout(ctx)
	defer cancel()

	start := time.Now()
	if err := p.Ping(ctx); err != nil {
		return Unhealthy("broker ping failed", map[string]any{
			"error": err.Error(),
		})
	}
	return Healthy(fmt.Sprintf("broker answered in %s", time.Since(start).Round(time.Millisecond)))
}

// QueueDepthCheck reports degraded when more than threshold tasks are
// waiting. The depth is advisory; submission is never refused.
func QueueDepthCheck(ctx context.Context, q QueueLengther, threshold int64) Status {
	if q == nil {
		return Unhealthy("queue is not configured", nil)
	}
	ctx, cancel := withDefaultTimeout(ctx)
	defer cancel()

	depth, err := q.GetQueueLength(ctx)
	if err != nil {
		return Unhealthy("failed to read queue length", map[string]any{
			"error": err.Error(),
		})
	}

	details := map[string]any{"depth": depth, "threshold": threshold}
	if threshold > 0 && depth > threshold {
		return Degraded(fmt.Sprintf("queue depth %d exceeds %d", depth, threshold), details)
	}
	return Status{Status: StatusHealthy, Message: fmt.Sprintf("queue depth %d", depth), Details: details}
}

// WorkersCheck reports unhealthy when fewer than min workers have a live
// heartbeat.
func WorkersCheck(ctx context.Context, l WorkerLister, min int) Status {
	if l == nil {
		return Unhealthy("queue is not configured", nil)
	}
	ctx, cancel := withDefaultTimeout(ctx)
	defer cancel()

	workers, err := l.ListWorkers(ctx)
	if err != nil {
		return Unhealthy("failed to list workers", map[string]any{
			"error": err.Error(),
		})
	}
	if len(workers) < min {
		return Unhealthy(fmt.Sprintf("%d live worker(s), need %d", len(workers), min), map[string]any{
			"workers": workers,
		})
	}
	return Healthy(fmt.Sprintf("%d live worker(s)", len(workers)))
}

// RedisAddressCheck dials the server named by a Redis URL without speaking
// the protocol, telling an unreachable host apart from a server that refuses
// commands (see BrokerCheck).
func RedisAddressCheck(ctx context.Context, redisURL string) Status {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return Unhealthy("invalid redis url", map[string]any{
			"error": err.Error(),
		})
	}
	ctx, cancel := withDefaultTimeout(ctx)
	defer cancel()

	network := opts.Network
	if network == "" {
		network = "tcp"
	}

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, network, opts.Addr)
	if err != nil {
		return Unhealthy(fmt.Sprintf("cannot reach %s", opts.Addr), map[string]any{
			"network": network,
			"addr":    opts.Addr,
			"error":   err.Error(),
		})
	}
	_ = conn.Close()
	return Healthy(fmt.Sprintf("reached %s", opts.Addr))
}

func severity(status string) int {
	switch status {
	case StatusHealthy:
		return 0
	case StatusDegraded:
		return 1
	default:
		return 2
	}
}

// Combine reports the worst of checks. Unknown status values count as
// unhealthy. Details carry a count per status and, under "failing", the
// messages of every check that was not healthy.
func Combine(checks ...Status) Status {
	if len(checks) == 0 {
		return Healthy("no checks run")
	}

	worst := StatusHealthy
	counts := map[string]int{StatusHealthy: 0, StatusDegraded: 0, StatusUnhealthy: 0}
	var failing []string

	for _, c := range checks {
		status := c.Status
		if severity(status) == 2 {
			status = StatusUnhealthy
		}
		counts[status]++
		if severity(status) > severity(worst) {
			worst = status
		}
		if status != StatusHealthy {
			msg := c.Message
			if msg == "" {
				msg = "unnamed check"
			}
			failing = append(failing, msg)
		}
	}

	if worst == StatusHealthy {
		return Healthy(fmt.Sprintf("all %d check(s) passed", len(checks)))
	}

	details := map[string]any{
		"total":         len(checks),
		StatusHealthy:   counts[StatusHealthy],
		StatusDegraded:  counts[StatusDegraded],
		StatusUnhealthy: counts[StatusUnhealthy],
		"failing":       failing,
	}
	if worst == StatusUnhealthy {
		return Unhealthy(fmt.Sprintf("%d of %d check(s) failed", counts[StatusUnhealthy], len(checks)), details)
	}
	return Degraded(fmt.Sprintf("%d of %d check(s) degraded", counts[StatusDegraded], len(checks)), details)
}
