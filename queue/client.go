package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Options configures a Client.
type Options struct {
	// Queue is the queue name. Required.
	Queue string

	// Prefix namespaces every key of the queue. Defaults to DefaultPrefix.
	Prefix string

	// Timeout bounds WaitTaskResult inside ExecuteTask. Zero waits without
	// bound.
	Timeout time.Duration

	// Codec serializes envelopes. Defaults to JSON.
	Codec Codec

	// Logger is the structured logger for client operations.
	// If nil, a default JSON logger writing to stdout is created.
	Logger *slog.Logger
}

// Client submits tasks to a queue and collects their results. It holds no
// locks; all coordination happens in the broker. Client is safe for
// concurrent use if its Broker is.
type Client struct {
	broker  Broker
	keys    Keys
	codec   Codec
	timeout time.Duration
	logger  *slog.Logger
}

// NewClient returns a client for opts.Queue on broker.
func NewClient(broker Broker, opts Options) (*Client, error) {
	if broker == nil {
		return nil, errors.New("broker is required")
	}
	if err := ValidateNamespace(opts.Prefix, opts.Queue); err != nil {
		return nil, err
	}
	if opts.Codec == nil {
		opts.Codec = JSON()
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}

	keys := NewKeys(opts.Prefix, opts.Queue)
	return &Client{
		broker:  broker,
		keys:    keys,
		codec:   opts.Codec,
		timeout: opts.Timeout,
		logger:  opts.Logger.With("queue", keys.Queue()),
	}, nil
}

// Keys returns the key names of the client's namespace.
func (c *Client) Keys() Keys {
	return c.keys
}

// Timeout returns the default wait used by ExecuteTask.
func (c *Client) Timeout() time.Duration {
	return c.timeout
}

// splitKwargs separates a trailing Kwargs value from positional args.
func splitKwargs(args []any) ([]any, map[string]any) {
	if n := len(args); n > 0 {
		if kw, ok := args[n-1].(Kwargs); ok {
			return args[:n-1], map[string]any(kw)
		}
	}
	return args, nil
}

// PushTask submits op with args and returns the new task id without waiting
// for execution. A trailing Kwargs value in args is sent as named arguments.
func (c *Client) PushTask(ctx context.Context, op OperationRef, args ...any) (string, error) {
	positional, kwargs := splitKwargs(args)
	return c.Submit(ctx, Request{Operation: op, Args: positional, Kwargs: kwargs})
}

// Submit encodes req and, in one atomic batch, appends it to the queue and
// creates its metadata with state NEW. It never waits on queue depth.
func (c *Client) Submit(ctx context.Context, req Request) (string, error) {
	id, payload, err := EncodeTask(c.codec, req.Operation, req.Args, req.Kwargs)
	if err != nil {
		return "", err
	}

	c.logger.Debug("pushing task", "task_id", id, "operation", req.Operation.OperationName())

	fields := MetadataFields(StateNew, time.Now())
	if err := c.broker.Enqueue(ctx, c.keys.Queue(), payload, c.keys.Task(id), fields); err != nil {
		return "", err
	}
	return id, nil
}

// GetTaskState returns the task's metadata, or nil when no record exists.
func (c *Client) GetTaskState(ctx context.Context, id string) (*Metadata, error) {
	fields, err := c.broker.GetFields(ctx, c.keys.Task(id))
	if err != nil {
		return nil, err
	}
	meta, err := parseMetadata(fields)
	if err != nil {
		return nil, &Error{Op: "GetTaskState", Kind: KindProtocol, TaskID: id, Err: err}
	}
	if meta != nil {
		c.logger.Debug("task state", "task_id", id, "state", meta.State, "timestamp", meta.Timestamp)
	}
	return meta, nil
}

// GetQueueLength returns the number of tasks not yet dequeued. In-flight and
// completed tasks are not counted.
func (c *Client) GetQueueLength(ctx context.Context) (int64, error) {
	return c.broker.Len(ctx, c.keys.Queue())
}

// Flush deletes every key of the namespace: the queue, metadata, results and
// heartbeats. It is not atomic; a concurrent PushTask may survive or be
// partially removed. Meant for administrative use, not under live traffic.
func (c *Client) Flush(ctx context.Context) error {
	keys, err := c.broker.Keys(ctx, c.keys.NamespacePattern())
	if err != nil {
		return err
	}
	keys = append(keys, c.keys.Queue())

	c.logger.Info("flushing queue", "keys", len(keys))
	return c.broker.Delete(ctx, keys...)
}

// ReadTaskResult makes one non-blocking attempt to consume the task's result.
// On success the result and the metadata are removed together, so a second
// read returns ErrTaskNotFound. Without a result it returns ErrNotReady while
// the task's metadata exists, and ErrTaskNotFound otherwise. An error result
// is returned as *TaskError.
func (c *Client) ReadTaskResult(ctx context.Context, id string) (any, error) {
	data, ok, err := c.broker.Claim(ctx, c.keys.Result(id), c.keys.Task(id))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, c.absentResult(ctx, id)
	}
	return c.decodeResult(id, data)
}

// WaitTaskResult blocks until the task's result is available, timeout elapses
// or ctx is done. A zero timeout waits without bound. On expiry nothing is
// mutated and ErrNotReady (or ErrTaskNotFound for an unknown id) is returned.
func (c *Client) WaitTaskResult(ctx context.Context, id string, timeout time.Duration) (any, error) {
	data, ok, err := c.broker.Pop(ctx, c.keys.Result(id), timeout)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, c.absentResult(ctx, id)
	}

	// The pop already made this client the only consumer; deleting the
	// metadata afterwards is a separate step.
	if err := c.broker.Delete(ctx, c.keys.Result(id), c.keys.Task(id)); err != nil {
		c.logger.Error("failed to delete task metadata", "task_id", id, "error", err)
	}
	return c.decodeResult(id, data)
}

// ExecuteTask pushes op and waits for its result with the client's default
// timeout.
func (c *Client) ExecuteTask(ctx context.Context, op OperationRef, args ...any) (any, error) {
	id, err := c.PushTask(ctx, op, args...)
	if err != nil {
		return nil, err
	}
	return c.WaitTaskResult(ctx, id, c.timeout)
}

func (c *Client) absentResult(ctx context.Context, id string) error {
	exists, err := c.broker.Exists(ctx, c.keys.Task(id))
	if err != nil {
		return err
	}
	if exists {
		return ErrNotReady
	}
	return ErrTaskNotFound
}

func (c *Client) decodeResult(id string, data []byte) (any, error) {
	res, err := DecodeResult(c.codec, data)
	if err != nil {
		return nil, err
	}
	if res.HasError() {
		c.logger.Debug("task failed", "task_id", id, "error", res.Error)
		return nil, res.Err(id)
	}
	return res.Value, nil
}

// PublishMessage sends message on a namespace channel.
func (c *Client) PublishMessage(ctx context.Context, channel string, message any) error {
	data, err := c.codec.Marshal(message)
	if err != nil {
		return protocolError("PublishMessage", fmt.Errorf("failed to marshal message: %w", err))
	}
	return c.broker.Publish(ctx, c.keys.Channel(channel), data)
}

// Subscribe returns the messages published on a namespace channel until ctx
// is cancelled. Payloads that fail to decode are dropped.
func (c *Client) Subscribe(ctx context.Context, channel string) (<-chan Message, error) {
	raw, err := c.broker.Subscribe(ctx, c.keys.Channel(channel))
	if err != nil {
		return nil, err
	}

	out := make(chan Message)
	go func() {
		defer close(out)
		for data := range raw {
			var payload any
			if err := c.codec.Unmarshal(data, &payload); err != nil {
				c.logger.Debug("dropping undecodable message", "channel", channel, "error", err)
				continue
			}
			select {
			case out <- Message{Channel: channel, Payload: payload}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// SubscribeEvents returns the task state changes published by workers that
// run with event publication enabled.
func (c *Client) SubscribeEvents(ctx context.Context) (<-chan Event, error) {
	raw, err := c.broker.Subscribe(ctx, c.keys.Events())
	if err != nil {
		return nil, err
	}

	out := make(chan Event)
	go func() {
		defer close(out)
		for data := range raw {
			ev, err := DecodeEvent(c.codec, data)
			if err != nil {
				c.logger.Debug("dropping malformed event", "error", err)
				continue
			}
			select {
			case out <- *ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// ListWorkers returns the ids of workers whose heartbeat has not expired.
func (c *Client) ListWorkers(ctx context.Context) ([]string, error) {
	keys, err := c.broker.Keys(ctx, c.keys.WorkerPattern())
	if err != nil {
		return nil, err
	}
	prefix := c.keys.Worker("")
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		ids = append(ids, strings.TrimPrefix(k, prefix))
	}
	return ids, nil
}

// Close closes the underlying broker.
func (c *Client) Close() error {
	return c.broker.Close()
}

// Ping checks that the broker is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.broker.Ping(ctx)
}
