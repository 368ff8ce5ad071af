package notify_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/entitlements/pkg/notify"
)

func TestMemoryHub(t *testing.T) {
	t.Parallel()

	t.Run("delivers only to the user's subscribers", func(t *testing.T) {
		t.Parallel()
		hub := notify.NewMemoryHub(4)
		defer hub.Close()

		alice, bob := uuid.New(), uuid.New()
		subA, err := hub.Subscribe(context.Background(), alice)
		require.NoError(t, err)
		subB, err := hub.Subscribe(context.Background(), bob)
		require.NoError(t, err)

		require.NoError(t, hub.Publish(context.Background(), notify.Change{UserID: alice, Status: "premium"}))

		select {
		case c := <-subA.C():
			assert.Equal(t, alice, c.UserID)
			assert.Equal(t, "premium", c.Status)
		case <-time.After(time.Second):
			t.Fatal("expected change for alice")
		}

		select {
		case c := <-subB.C():
			t.Fatalf("unexpected change for bob: %+v", c)
		default:
		}
	})

	t.Run("context cancellation closes subscription", func(t *testing.T) {
		t.Parallel()
		hub := notify.NewMemoryHub(1)
		defer hub.Close()

		user := uuid.New()
		ctx, cancel := context.WithCancel(context.Background())
		sub, err := hub.Subscribe(ctx, user)
		require.NoError(t, err)
		assert.Equal(t, 1, hub.Subscribers(user))

		cancel()
		assert.Eventually(t, func() bool { return hub.Subscribers(user) == 0 }, time.Second, 10*time.Millisecond)

		_, ok := <-sub.C()
		assert.False(t, ok)
	})

	t.Run("slow subscriber drops instead of blocking", func(t *testing.T) {
		t.Parallel()
		hub := notify.NewMemoryHub(1)
		defer hub.Close()

		user := uuid.New()
		sub, err := hub.Subscribe(context.Background(), user)
		require.NoError(t, err)

		for range 5 {
			require.NoError(t, hub.Publish(context.Background(), notify.Change{UserID: user}))
		}
		assert.Len(t, sub.C(), 1)
	})

	t.Run("rejects nil user and closed hub", func(t *testing.T) {
		t.Parallel()
		hub := notify.NewMemoryHub(1)

		_, err := hub.Subscribe(context.Background(), uuid.Nil)
		require.ErrorIs(t, err, notify.ErrInvalidUserID)

		require.NoError(t, hub.Close())
		err = hub.Publish(context.Background(), notify.Change{UserID: uuid.New()})
		require.ErrorIs(t, err, notify.ErrHubClosed)
	})
}
