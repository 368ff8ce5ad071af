// Package ratelimiter implements token bucket rate limiting for the HTTP API.
//
// A Bucket holds the policy (capacity and refill rate) and delegates state to
// a Store. MemoryStore serves a single process and tests; RedisStore runs the
// refill-and-consume step as a Lua script so every API instance draws from
// the same counter.
//
// Denied requests do not consume tokens, so a client hammering the endpoint
// regains access as soon as the bucket refills.
//
// Usage:
//
//	bucket, err := ratelimiter.NewBucket(ratelimiter.NewRedisStore(client), cfg)
//	if err != nil {
//		return err
//	}
//	r.Use(ratelimiter.Middleware(bucket, ratelimiter.UserOrIP(identity.UserIDFromContext)))
//
// Middleware fails open: if the store errors, the request is served and a
// warning is logged.
package ratelimiter
