package queue

import (
	"context"
	"time"
)

// Broker is the shared store the protocol runs on. Every cross-actor
// guarantee comes from it: Enqueue and Deliver are indivisible, and Pop hands
// each list entry to exactly one caller.
//
// Methods returning ([]byte, bool, error) report "nothing there" as
// (nil, false, nil); err is reserved for transport failures.
type Broker interface {
	// Enqueue appends payload to the tail of list and sets fields on hash as
	// one atomic batch.
	Enqueue(ctx context.Context, list string, payload []byte, hash string, fields map[string]any) error

	// Deliver pushes payload to the front of list and sets fields on hash as
	// one atomic batch.
	Deliver(ctx context.Context, list string, payload []byte, hash string, fields map[string]any) error

	// Pop removes the head of list, blocking up to timeout. A zero timeout
	// blocks without bound. Cancelling ctx ends the wait with ctx's error and
	// removes nothing.
	Pop(ctx context.Context, list string, timeout time.Duration) ([]byte, bool, error)

	// Claim removes the head of list without blocking and, only when an
	// entry was removed, deletes hash in the same atomic step.
	Claim(ctx context.Context, list, hash string) ([]byte, bool, error)

	// SetFields sets fields on hash.
	SetFields(ctx context.Context, hash string, fields map[string]any) error

	// GetFields returns all fields of hash; empty when it does not exist.
	GetFields(ctx context.Context, hash string) (map[string]string, error)

	// Len returns the number of entries in list.
	Len(ctx context.Context, list string) (int64, error)

	// Exists reports whether key exists.
	Exists(ctx context.Context, key string) (bool, error)

	// Keys enumerates the keys matching a glob pattern.
	Keys(ctx context.Context, pattern string) ([]string, error)

	// Delete removes keys. Missing keys are ignored.
	Delete(ctx context.Context, keys ...string) error

	// Touch sets key to value with a time to live.
	Touch(ctx context.Context, key, value string, ttl time.Duration) error

	// Publish sends payload to a pub/sub channel.
	Publish(ctx context.Context, channel string, payload []byte) error

	// Subscribe delivers channel payloads until ctx is cancelled.
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)

	// Ping checks connectivity.
	Ping(ctx context.Context) error

	// Close releases the connection.
	Close() error
}
