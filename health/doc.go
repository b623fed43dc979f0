// Package health provides health checks for rpcq deployments.
//
// # Health Check Functions
//
//   - BrokerCheck: the broker answers a ping
//   - QueueDepthCheck: the number of waiting tasks stays under a threshold
//   - WorkersCheck: enough workers have a live heartbeat
//   - RedisAddressCheck: the host named by a Redis URL accepts connections
//   - Combine: aggregate several checks into one status
//
// # Usage Example
//
//	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
//	defer cancel()
//
//	overall := health.Combine(
//	    health.RedisAddressCheck(ctx, cfg.Redis.GetURL()),
//	    health.BrokerCheck(ctx, client),
//	    health.QueueDepthCheck(ctx, client, 1000),
//	    health.WorkersCheck(ctx, client, 1),
//	)
//	if overall.IsUnhealthy() {
//	    log.Printf("health check failed: %s %+v", overall.Message, overall.Details)
//	}
//
// Combine reports the worst status among its inputs, with counts and the
// messages of failing checks in Details. A nil context gets a 5s timeout.
package health
