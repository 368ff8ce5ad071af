package notify

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultChannelPrefix namespaces pub/sub channels.
const DefaultChannelPrefix = "entitlements:changes:"

// RedisHub is a Hub backed by Redis pub/sub.
type RedisHub struct {
	client     redis.UniversalClient
	prefix     string
	bufferSize int
	logger     *slog.Logger
}

// RedisOption configures a RedisHub.
type RedisOption func(*RedisHub)

// WithChannelPrefix overrides DefaultChannelPrefix.
func WithChannelPrefix(prefix string) RedisOption {
	return func(h *RedisHub) {
		if prefix != "" {
			h.prefix = prefix
		}
	}
}

// WithBufferSize sets the per-subscription buffer.
func WithBufferSize(n int) RedisOption {
	return func(h *RedisHub) {
		if n > 0 {
			h.bufferSize = n
		}
	}
}

// WithLogger sets the logger used for undecodable messages.
func WithLogger(l *slog.Logger) RedisOption {
	return func(h *RedisHub) {
		if l != nil {
			h.logger = l
		}
	}
}

// NewRedisHub creates a hub on top of client.
func NewRedisHub(client redis.UniversalClient, opts ...RedisOption) *RedisHub {
	if client == nil {
		panic("notify: redis client is required")
	}
	h := &RedisHub{
		client:     client,
		prefix:     DefaultChannelPrefix,
		bufferSize: DefaultBufferSize,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Publish sends change to the user's channel.
func (h *RedisHub) Publish(ctx context.Context, change Change) error {
	if change.UserID == uuid.Nil {
		return ErrInvalidUserID
	}
	payload, err := json.Marshal(change)
	if err != nil {
		return errors.Join(ErrFailedToPublish, err)
	}
	if err := h.client.Publish(ctx, h.channel(change.UserID), payload).Err(); err != nil {
		return errors.Join(ErrFailedToPublish, err)
	}
	return nil
}

// Subscribe listens on the user's channel until ctx ends or Close is called.
func (h *RedisHub) Subscribe(ctx context.Context, userID uuid.UUID) (Subscription, error) {
	if userID == uuid.Nil {
		return nil, ErrInvalidUserID
	}

	ps := h.client.Subscribe(ctx, h.channel(userID))
	// Wait for the subscription confirmation so no change published right
	// after Subscribe returns is missed.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, errors.Join(ErrFailedToSubscribe, err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := newSubscription(h.bufferSize, cancel)

	go func() {
		defer ps.Close()
		defer sub.Close()

		msgs := ps.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var change Change
				if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
					h.logger.WarnContext(subCtx, "dropping undecodable change",
						slog.String("channel", msg.Channel),
						slog.Any("error", errors.Join(ErrFailedToDecode, err)))
					continue
				}
				sub.send(change)
			}
		}
	}()

	return sub, nil
}

func (h *RedisHub) channel(userID uuid.UUID) string {
	return h.prefix + userID.String()
}
