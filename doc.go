// Package rpcq provides remote procedure calls over a Redis-backed task queue.
//
// Clients submit named operations with arguments into a shared queue.
// Independent worker processes pop them, execute the matching handler and
// deposit each result under the task's id, where the client polls or blocks
// for it.
//
// # Packages
//
//   - queue: the client, the Redis broker adapter, envelopes and codecs
//   - worker: the handler registry, the consume loop and the process runner
//   - config: rpcq.yaml loading with RPCQ_* environment overrides
//   - health: broker, queue depth and worker liveness checks
//
// This package wires them together from a config.Config.
//
// # Getting Started
//
// A worker process exposing two operations:
//
//	reg := worker.NewRegistry()
//	reg.Register("add", add)
//	reg.Register("concat", concat)
//
//	cfg, err := rpcq.LoadConfig("")
//	if err != nil {
//		log.Fatal(err)
//	}
//	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer stop()
//	if err := rpcq.Serve(ctx, reg, cfg); err != nil {
//		log.Fatal(err)
//	}
//
// A client calling them:
//
//	client, err := rpcq.NewClient(cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Close()
//
//	sum, err := client.ExecuteTask(ctx, queue.Op("add"), 1, 2)
//
// # Delivery Guarantees
//
// Every task is delivered to at most one worker, in FIFO order. There are no
// retries and no acknowledgements: a worker that dies mid-task leaves the task
// in state RUNNING forever, and a client that stops waiting leaves the result
// behind until Flush.
package rpcq
