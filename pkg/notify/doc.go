// Package notify propagates entitlement changes to interested listeners.
//
// Every write to an entitlement publishes a Change on the user's topic.
// Clients hold a Subscription (usually through the SSE endpoint) and drop
// their cached entitlement when a Change arrives, so a purchase becomes
// visible without waiting for the cache TTL.
//
// Two hubs are provided. MemoryHub serves a single process and tests.
// RedisHub fans changes out through Redis pub/sub so every API instance sees
// changes written by any worker.
//
// Delivery is best effort: slow subscribers drop messages rather than block
// publishers, and a missed Change only delays freshness until the cache TTL.
package notify
