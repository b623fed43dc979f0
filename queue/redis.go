package queue

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisOptions configures the Redis connection.
type RedisOptions struct {
	// URL is the Redis connection string (e.g., "redis://localhost:6379/0")
	URL string

	// TLS configuration for secure connections
	TLS *tls.Config

	// ConnectTimeout is the maximum time to wait for connection establishment
	ConnectTimeout time.Duration

	// ReadTimeout is the maximum time to wait for non-blocking read operations.
	// Blocking pops extend it by their own timeout.
	ReadTimeout time.Duration

	// WriteTimeout is the maximum time to wait for write operations
	WriteTimeout time.Duration
}

// RedisBroker implements Broker using go-redis/v9.
type RedisBroker struct {
	client *redis.Client
}

// claimScript pops the head of a result list and deletes the task's metadata
// in one server-side step. An empty list returns nil rather than LPOP's
// false, which RESP3 clients would receive as a boolean.
var claimScript = redis.NewScript(`
local v = redis.call('LPOP', KEYS[1])
if not v then
	return nil
end
redis.call('DEL', KEYS[2])
return v
`)

// popSlice bounds each BLPOP so that cancellation is noticed between calls.
// go-redis only maps context deadlines onto the socket, not cancellation.
const popSlice = time.Second

// NewRedisBroker connects to Redis with the given options and verifies the
// connection with PING.
func NewRedisBroker(opts RedisOptions) (*RedisBroker, error) {
	if opts.URL == "" {
		opts.URL = "redis://localhost:6379"
	}

	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = 5 * time.Second
	}

	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = 30 * time.Second
	}

	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = 5 * time.Second
	}

	redisOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, brokerError("redis.Connect", fmt.Errorf("failed to parse Redis URL: %w", err))
	}

	if opts.TLS != nil {
		redisOpts.TLSConfig = opts.TLS
	}
	redisOpts.DialTimeout = opts.ConnectTimeout
	redisOpts.ReadTimeout = opts.ReadTimeout
	redisOpts.WriteTimeout = opts.WriteTimeout
	// Let context deadlines bound blocking pops.
	redisOpts.ContextTimeoutEnabled = true

	client := redis.NewClient(redisOpts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), opts.ConnectTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, brokerError("redis.Connect", fmt.Errorf("failed to connect to Redis: %w", err))
	}

	return &RedisBroker{client: client}, nil
}

// NewRedisBrokerFromClient wraps an existing go-redis client.
func NewRedisBrokerFromClient(client *redis.Client) *RedisBroker {
	return &RedisBroker{client: client}
}

// Enqueue appends payload to list and sets fields on hash inside MULTI/EXEC.
func (b *RedisBroker) Enqueue(ctx context.Context, list string, payload []byte, hash string, fields map[string]any) error {
	_, err := b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, list, payload)
		pipe.HSet(ctx, hash, fields)
		return nil
	})
	if err != nil {
		return brokerError("redis.Enqueue", fmt.Errorf("failed to push to queue %s: %w", list, err))
	}
	return nil
}

// Deliver pushes payload to the front of list and sets fields on hash inside
// MULTI/EXEC.
func (b *RedisBroker) Deliver(ctx context.Context, list string, payload []byte, hash string, fields map[string]any) error {
	_, err := b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, list, payload)
		pipe.HSet(ctx, hash, fields)
		return nil
	})
	if err != nil {
		return brokerError("redis.Deliver", fmt.Errorf("failed to deliver to %s: %w", list, err))
	}
	return nil
}

// Pop removes the head of list with BLPOP, waiting up to timeout or without
// bound when timeout is zero. The wait is split into BLPOP calls of at most
// popSlice and ends with ctx's error once ctx is done. Timeouts are rounded
// up to whole seconds.
func (b *RedisBroker) Pop(ctx context.Context, list string, timeout time.Duration) ([]byte, bool, error) {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, false, err
		}

		wait := popSlice
		if !deadline.IsZero() {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return nil, false, nil
			}
			if remaining < wait {
				wait = remaining
			}
		}

		data, ok, err := b.blpop(ctx, list, wait)
		if err != nil || ok {
			return data, ok, err
		}
	}
}

func (b *RedisBroker) blpop(ctx context.Context, list string, timeout time.Duration) ([]byte, bool, error) {
	// BLPOP returns [list, value] or redis.Nil on timeout
	result, err := b.client.BLPop(ctx, timeout, list).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, false, ctxErr
		}
		// The socket deadline can fire just before the context records it.
		if deadline, ok := ctx.Deadline(); ok && !time.Now().Before(deadline) {
			return nil, false, context.DeadlineExceeded
		}
		return nil, false, brokerError("redis.Pop", fmt.Errorf("failed to pop from %s: %w", list, err))
	}

	if len(result) != 2 {
		return nil, false, brokerError("redis.Pop", fmt.Errorf("unexpected BLPOP result length: %d", len(result)))
	}

	return []byte(result[1]), true, nil
}

// Claim pops the head of list and deletes hash atomically.
func (b *RedisBroker) Claim(ctx context.Context, list, hash string) ([]byte, bool, error) {
	data, ok, err := claimReply(claimScript.Run(ctx, b.client, []string{list, hash}).Result())
	if err != nil {
		return nil, false, brokerError("redis.Claim", fmt.Errorf("failed to claim %s: %w", list, err))
	}
	return data, ok, nil
}

// claimReply interprets the claim script's reply. Null and false both mean
// the list was empty.
func claimReply(v any, err error) ([]byte, bool, error) {
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	switch v := v.(type) {
	case nil:
		return nil, false, nil
	case bool:
		if !v {
			return nil, false, nil
		}
	case string:
		return []byte(v), true, nil
	case []byte:
		return v, true, nil
	}
	return nil, false, fmt.Errorf("unexpected claim reply type %T", v)
}

// SetFields sets fields on hash with HSET.
func (b *RedisBroker) SetFields(ctx context.Context, hash string, fields map[string]any) error {
	if err := b.client.HSet(ctx, hash, fields).Err(); err != nil {
		return brokerError("redis.SetFields", fmt.Errorf("failed to set fields on %s: %w", hash, err))
	}
	return nil
}

// GetFields returns all fields of hash with HGETALL.
func (b *RedisBroker) GetFields(ctx context.Context, hash string) (map[string]string, error) {
	fields, err := b.client.HGetAll(ctx, hash).Result()
	if err != nil {
		return nil, brokerError("redis.GetFields", fmt.Errorf("failed to read %s: %w", hash, err))
	}
	return fields, nil
}

// Len returns LLEN of list.
func (b *RedisBroker) Len(ctx context.Context, list string) (int64, error) {
	n, err := b.client.LLen(ctx, list).Result()
	if err != nil {
		return 0, brokerError("redis.Len", fmt.Errorf("failed to get length of %s: %w", list, err))
	}
	return n, nil
}

// Exists reports whether key exists.
func (b *RedisBroker) Exists(ctx context.Context, key string) (bool, error) {
	n, err := b.client.Exists(ctx, key).Result()
	if err != nil {
		return false, brokerError("redis.Exists", fmt.Errorf("failed to check %s: %w", key, err))
	}
	return n > 0, nil
}

// Keys enumerates matching keys with SCAN, which unlike KEYS does not block
// the server on large keyspaces.
func (b *RedisBroker) Keys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	iter := b.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, brokerError("redis.Keys", fmt.Errorf("failed to scan %s: %w", pattern, err))
	}
	return keys, nil
}

// Delete removes keys with DEL.
func (b *RedisBroker) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := b.client.Del(ctx, keys...).Err(); err != nil {
		return brokerError("redis.Delete", fmt.Errorf("failed to delete %d keys: %w", len(keys), err))
	}
	return nil
}

// Touch sets key with a TTL.
func (b *RedisBroker) Touch(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := b.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return brokerError("redis.Touch", fmt.Errorf("failed to set %s: %w", key, err))
	}
	return nil
}

// Publish sends payload to a pub/sub channel.
func (b *RedisBroker) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := b.client.Publish(ctx, channel, payload).Err(); err != nil {
		return brokerError("redis.Publish", fmt.Errorf("failed to publish to channel %s: %w", channel, err))
	}
	return nil
}

// Subscribe creates a subscription to a pub/sub channel. The returned channel
// is closed when ctx is cancelled.
func (b *RedisBroker) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	pubsub := b.client.Subscribe(ctx, channel)

	// Wait for subscription confirmation
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, brokerError("redis.Subscribe", fmt.Errorf("failed to subscribe to channel %s: %w", channel, err))
	}

	out := make(chan []byte)

	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// Ping checks connectivity with PING.
func (b *RedisBroker) Ping(ctx context.Context) error {
	if err := b.client.Ping(ctx).Err(); err != nil {
		return brokerError("redis.Ping", err)
	}
	return nil
}

// Close closes the Redis connection.
func (b *RedisBroker) Close() error {
	return b.client.Close()
}
