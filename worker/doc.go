// Package worker executes tasks submitted through package queue.
//
// # Overview
//
// A worker pops task envelopes from a queue, resolves each operation name
// against a Backend, runs the handler and delivers the result under the
// task's id. Any number of workers may consume the same queue; the broker
// hands every task to exactly one of them.
//
// # Registering Operations
//
// A Registry is the capability table of a worker. Only registered names can
// be dispatched:
//
//	reg := worker.NewRegistry()
//	add := reg.Register("add", func(ctx context.Context, args worker.Args) (any, error) {
//	    a, err := args.Float(0)
//	    if err != nil {
//	        return nil, err
//	    }
//	    b, err := args.Float(1)
//	    if err != nil {
//	        return nil, err
//	    }
//	    return a + b, nil
//	})
//
// The returned Operation can be passed to queue.Client.ExecuteTask in place
// of queue.Op("add"); both produce the same task.
//
// # Running
//
// Run loads rpcq.yaml, connects to Redis and starts the consume loops. It
// blocks until SIGTERM or SIGINT:
//
//	if err := worker.Run(reg, worker.Options{Concurrency: 4}); err != nil {
//	    log.Fatalf("worker failed: %v", err)
//	}
//
// For finer control create a Worker with New and drive ConsumeOne or
// ConsumeLoop directly.
//
// # Failure Handling
//
// A handler error, a handler panic and an unknown operation all become an
// error result carrying only the error text; the worker keeps running. An
// envelope that cannot be decoded is skipped by ConsumeLoop. A broker failure
// ends ConsumeLoop with an error matching queue.ErrBroker. Nothing is retried.
//
// # Observability
//
// Each consumed task produces an "rpcq.consume" span and updates the
// rpcq.worker.tasks counter and rpcq.worker.task.duration histogram through
// the configured OpenTelemetry providers. With PublishEvents set, RUNNING and
// DONE transitions are also published on the queue's events channel.
package worker
