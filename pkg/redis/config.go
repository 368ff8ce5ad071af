package redis

import "time"

// Config is shared by the change hub and the rate limit store.
type Config struct {
	ConnectionURL  string        `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"` // ConnectionURL has the form redis://:password@host:6379/0.
	RetryAttempts  int           `env:"REDIS_RETRY_ATTEMPTS" envDefault:"3"`
	RetryInterval  time.Duration `env:"REDIS_RETRY_INTERVAL" envDefault:"2s"`
	ConnectTimeout time.Duration `env:"REDIS_CONNECT_TIMEOUT" envDefault:"30s"`
	// ChannelPrefix namespaces entitlement change channels.
	ChannelPrefix string `env:"REDIS_CHANGES_PREFIX" envDefault:"entitlements:changes:"`
	// RateLimitPrefix namespaces token bucket keys.
	RateLimitPrefix string `env:"REDIS_RATELIMIT_PREFIX" envDefault:"entitlements:ratelimit:"`
}
