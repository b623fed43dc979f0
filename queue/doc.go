// Package queue provides the client side of an RPC-over-queue protocol on
// top of Redis.
//
// Clients submit named operations with arguments into a shared queue,
// independent workers (see package worker) execute them against a table of
// named handlers, and each result is deposited under the task's id for the
// client to poll or block on.
//
// # Core Components
//
// Broker: the shared store. Submission (append + metadata) is one atomic
// batch and a blocking pop hands each entry to exactly one consumer.
// RedisBroker implements it with go-redis.
//
// Client: PushTask, ReadTaskResult, WaitTaskResult, ExecuteTask,
// GetTaskState, GetQueueLength and Flush, plus namespace pub/sub.
//
// Codec: the envelope serialization. JSON by default; CBOR and ProtoJSON are
// available through CodecByName.
//
// # Redis Key Schema
//
// Every key of a queue lives under <prefix>:<queue>:
//   - <prefix>:<queue> - List of task envelopes (RPUSH/BLPOP)
//   - <prefix>:<queue>:<id> - Hash {state, timestamp}
//   - <prefix>:<queue>:<id>:result - List holding the result envelope
//   - <prefix>:<queue>:worker:<workerID> - Heartbeat string with TTL
//   - <prefix>:<queue>:channel:<name> - Pub/Sub channel
//
// # Task Lifecycle
//
// NEW is written together with the queue entry. The worker that pops the
// task writes RUNNING, then writes DONE in the same batch that delivers the
// result. Reading the result removes it together with the metadata, so
// after a successful read GetTaskState returns nil.
//
// # Usage
//
//	broker, err := queue.NewRedisBroker(queue.RedisOptions{URL: "redis://localhost:6379"})
//	if err != nil {
//		log.Fatal(err)
//	}
//	client, err := queue.NewClient(broker, queue.Options{
//		Queue:   "calc",
//		Timeout: 10 * time.Second,
//	})
//
//	sum, err := client.ExecuteTask(ctx, queue.Op("add"), 1, 2)
//
//	id, err := client.PushTask(ctx, queue.Op("concat"), "a", "b", queue.Kwargs{"sep": "-"})
//	v, err := client.ReadTaskResult(ctx, id)
//	if errors.Is(err, queue.ErrNotReady) {
//		// try again later
//	}
//
// # Error Handling
//
// Transport failures match queue.ErrBroker and envelope failures match
// queue.ErrProtocol. A task that failed on the worker surfaces as
// *queue.TaskError whose message is the worker's description. No method
// retries.
package queue
