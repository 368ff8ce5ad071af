package audit_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/entitlements/pkg/audit"
)

type ctxKey struct{}

func TestLogger(t *testing.T) {
	t.Parallel()

	fixed := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	t.Run("stores entry with request id and metadata", func(t *testing.T) {
		t.Parallel()
		storage := audit.NewMemoryStorage()
		log := audit.NewLogger(storage,
			audit.WithClock(func() time.Time { return fixed }),
			audit.WithRequestIDExtractor(func(ctx context.Context) string {
				v, _ := ctx.Value(ctxKey{}).(string)
				return v
			}),
		)

		user := uuid.New()
		ctx := context.WithValue(context.Background(), ctxKey{}, "req-1")
		err := log.Log(ctx, "subscription.cancel",
			audit.WithUser(user),
			audit.WithResource("card_subscription", "sub_1"),
			audit.WithMetadata("immediate", false))
		require.NoError(t, err)

		entries := storage.ForUser(user)
		require.Len(t, entries, 1)
		assert.Equal(t, "req-1", entries[0].RequestID)
		assert.Equal(t, audit.ResultSuccess, entries[0].Result)
		assert.Equal(t, fixed, entries[0].CreatedAt)
		assert.Equal(t, false, entries[0].Metadata["immediate"])
	})

	t.Run("log error records failure", func(t *testing.T) {
		t.Parallel()
		storage := audit.NewMemoryStorage()
		log := audit.NewLogger(storage)

		user := uuid.New()
		require.NoError(t, log.LogError(context.Background(), "checkout.create", errors.New("boom"), audit.WithUser(user)))

		entries := storage.ForUser(user)
		require.Len(t, entries, 1)
		assert.Equal(t, audit.ResultFailure, entries[0].Result)
		assert.Equal(t, "boom", entries[0].Error)
	})

	t.Run("rejects entry without user", func(t *testing.T) {
		t.Parallel()
		log := audit.NewLogger(audit.NewMemoryStorage())
		err := log.Log(context.Background(), "x")
		require.ErrorIs(t, err, audit.ErrInvalidEntry)
	})

	t.Run("delete user removes only that user's rows", func(t *testing.T) {
		t.Parallel()
		storage := audit.NewMemoryStorage()
		log := audit.NewLogger(storage)
		a, b := uuid.New(), uuid.New()
		require.NoError(t, log.Log(context.Background(), "a", audit.WithUser(a)))
		require.NoError(t, log.Log(context.Background(), "b", audit.WithUser(b)))

		n, err := storage.DeleteUser(context.Background(), a)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
		assert.Empty(t, storage.ForUser(a))
		assert.Len(t, storage.ForUser(b), 1)
	})
}
