// Package redis connects to the Redis server shared by every API replica.
//
// Two components use it: notify.RedisHub fans entitlement changes out to
// the replicas holding a user's event streams, and ratelimiter.RedisStore
// keeps one token bucket per caller across replicas.
//
//	var cfg redis.Config
//	if err := config.Load(&cfg); err != nil {
//		return err
//	}
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
//	hub := notify.NewRedisHub(client, notify.WithChannelPrefix(cfg.ChannelPrefix))
//
// Healthcheck plugs the connection into /healthz.
package redis
