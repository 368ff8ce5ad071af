package billing_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/entitlements/pkg/billing"
	"github.com/dmitrymomot/entitlements/pkg/entitlement"
	"github.com/dmitrymomot/entitlements/pkg/fault"
)

type processorFixture struct {
	repo      *billing.MemoryRepository
	store     *entitlement.MemoryStore
	processor *billing.WebhookProcessor
}

func newProcessorFixture() processorFixture {
	f := processorFixture{
		repo:  billing.NewMemoryRepository(),
		store: entitlement.NewMemoryStore(),
	}
	f.processor = billing.NewWebhookProcessor(f.repo, entitlement.NewService(f.store), nil)
	return f
}

var created = time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)

func TestWebhookProcessor_SubscriptionLifecycle(t *testing.T) {
	t.Parallel()

	f := newProcessorFixture()
	ctx := context.Background()
	user := uuid.New()
	periodEnd := created.Add(30 * 24 * time.Hour)

	_, _, err := f.repo.InsertMapping(ctx, user, "cus_1", "test")
	require.NoError(t, err)

	require.NoError(t, f.processor.Process(ctx, billing.CardEvent{
		ID:             "evt_1",
		Type:           billing.EventCheckoutCompleted,
		Created:        created,
		CustomerID:     "cus_1",
		SubscriptionID: "sub_1",
		Mode:           billing.ModeSubscription,
		PriceID:        "price_monthly",
	}))

	e, err := f.store.Get(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, entitlement.StatusPremium, e.Status)
	assert.Equal(t, entitlement.CardPayment{CustomerID: "cus_1", SubscriptionID: "sub_1"}, e.PaymentMethod)

	require.NoError(t, f.processor.Process(ctx, billing.CardEvent{
		ID:               "evt_2",
		Type:             billing.EventInvoicePaid,
		Created:          created.Add(time.Second),
		CustomerID:       "cus_1",
		SubscriptionID:   "sub_1",
		CurrentPeriodEnd: &periodEnd,
	}))
	e, err = f.store.Get(ctx, user)
	require.NoError(t, err)
	require.NotNil(t, e.CurrentPeriodEnd)
	assert.True(t, periodEnd.Equal(*e.CurrentPeriodEnd))

	rec, err := f.repo.SubscriptionRecord(ctx, "cus_1")
	require.NoError(t, err)
	assert.Equal(t, billing.StatusActive, rec.Status)
	assert.Equal(t, "price_monthly", rec.PriceID, "kept from the earlier event")

	require.NoError(t, f.processor.Process(ctx, billing.CardEvent{
		ID:                "evt_3",
		Type:              billing.EventSubscriptionUpdated,
		Created:           created.Add(time.Hour),
		CustomerID:        "cus_1",
		SubscriptionID:    "sub_1",
		Status:            billing.StatusActive,
		CancelAtPeriodEnd: true,
	}))
	e, err = f.store.Get(ctx, user)
	require.NoError(t, err)
	assert.True(t, e.CancelAtPeriodEnd)
	assert.True(t, e.IsPremium())

	require.NoError(t, f.processor.Process(ctx, billing.CardEvent{
		ID:             "evt_4",
		Type:           billing.EventSubscriptionUpdated,
		Created:        created.Add(2 * time.Hour),
		CustomerID:     "cus_1",
		SubscriptionID: "sub_1",
		Status:         billing.StatusActive,
	}))
	e, err = f.store.Get(ctx, user)
	require.NoError(t, err)
	assert.False(t, e.CancelAtPeriodEnd, "resumed")

	require.NoError(t, f.processor.Process(ctx, billing.CardEvent{
		ID:             "evt_5",
		Type:           billing.EventSubscriptionDeleted,
		Created:        created.Add(3 * time.Hour),
		CustomerID:     "cus_1",
		SubscriptionID: "sub_1",
		Status:         billing.StatusCanceled,
	}))
	e, err = f.store.Get(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, entitlement.StatusFree, e.Status)

	rec, err = f.repo.SubscriptionRecord(ctx, "cus_1")
	require.NoError(t, err)
	assert.Equal(t, billing.StatusCanceled, rec.Status)
}

func TestWebhookProcessor_OneTimePayment(t *testing.T) {
	t.Parallel()

	f := newProcessorFixture()
	ctx := context.Background()
	user := uuid.New()
	_, _, err := f.repo.InsertMapping(ctx, user, "cus_9", "test")
	require.NoError(t, err)

	ev := billing.CardEvent{
		ID:          "evt_1",
		Type:        billing.EventCheckoutCompleted,
		Created:     created,
		UserID:      user,
		CustomerID:  "cus_9",
		Mode:        billing.ModePayment,
		SessionID:   "cs_1",
		AmountTotal: 4999,
		Currency:    "usd",
	}
	require.NoError(t, f.processor.Process(ctx, ev))
	require.NoError(t, f.processor.Process(ctx, ev), "redelivery")

	e, err := f.store.Get(ctx, user)
	require.NoError(t, err)
	assert.True(t, e.IsPremium())
	assert.Nil(t, e.CurrentPeriodEnd)
	assert.Len(t, f.repo.Orders("cus_9"), 1)
}

func TestWebhookProcessor_UnmappedCustomer(t *testing.T) {
	t.Parallel()

	t.Run("unknown customer is ignored", func(t *testing.T) {
		t.Parallel()

		f := newProcessorFixture()
		ctx := context.Background()
		user := uuid.New()
		err := f.processor.Process(ctx, billing.CardEvent{
			ID:         "evt_1",
			Type:       billing.EventInvoicePaid,
			Created:    created,
			UserID:     user,
			CustomerID: "cus_unknown",
		})
		require.NoError(t, err)

		_, err = f.repo.SubscriptionRecord(ctx, "cus_unknown")
		assert.ErrorIs(t, err, billing.ErrRecordNotFound)
		_, err = f.store.Get(ctx, user)
		assert.ErrorIs(t, err, entitlement.ErrNotFound)
	})

	t.Run("missing customer id", func(t *testing.T) {
		t.Parallel()

		f := newProcessorFixture()
		err := f.processor.Process(context.Background(), billing.CardEvent{
			ID:      "evt_1",
			Type:    billing.EventInvoicePaid,
			Created: created,
			UserID:  uuid.New(),
		})
		assert.ErrorIs(t, err, billing.ErrUnresolvedUser)
		assert.ErrorIs(t, err, fault.ErrValidation)
	})

	t.Run("metadata cannot name another user", func(t *testing.T) {
		t.Parallel()

		f := newProcessorFixture()
		ctx := context.Background()
		owner, other := uuid.New(), uuid.New()
		_, _, err := f.repo.InsertMapping(ctx, owner, "cus_1", "test")
		require.NoError(t, err)

		require.NoError(t, f.processor.Process(ctx, billing.CardEvent{
			ID:             "evt_1",
			Type:           billing.EventCheckoutCompleted,
			Created:        created,
			UserID:         other,
			CustomerID:     "cus_1",
			SubscriptionID: "sub_1",
			Mode:           billing.ModeSubscription,
		}))

		e, err := f.store.Get(ctx, owner)
		require.NoError(t, err)
		assert.True(t, e.IsPremium())
		_, err = f.store.Get(ctx, other)
		assert.ErrorIs(t, err, entitlement.ErrNotFound)
	})
}

// Late provider events for a deleted account must not write anything back.
func TestWebhookProcessor_AfterAccountDeletion(t *testing.T) {
	t.Parallel()

	f := newProcessorFixture()
	ctx := context.Background()
	user := uuid.New()

	_, _, err := f.repo.InsertMapping(ctx, user, "cus_1", "test")
	require.NoError(t, err)
	require.NoError(t, f.processor.Process(ctx, billing.CardEvent{
		ID:             "evt_1",
		Type:           billing.EventCheckoutCompleted,
		Created:        created,
		UserID:         user,
		CustomerID:     "cus_1",
		SubscriptionID: "sub_1",
		Mode:           billing.ModeSubscription,
	}))

	require.NoError(t, f.repo.DeleteSubscriptionRecord(ctx, "cus_1"))
	require.NoError(t, f.repo.DeleteMappings(ctx, user))
	require.NoError(t, f.store.Delete(ctx, user))

	for _, typ := range []string{billing.EventSubscriptionDeleted, billing.EventInvoicePaymentFailed} {
		require.NoError(t, f.processor.Process(ctx, billing.CardEvent{
			ID:             "evt_" + typ,
			Type:           typ,
			Created:        created.Add(time.Hour),
			UserID:         user,
			CustomerID:     "cus_1",
			SubscriptionID: "sub_1",
			Status:         billing.StatusCanceled,
		}))
	}

	_, err = f.repo.SubscriptionRecord(ctx, "cus_1")
	assert.ErrorIs(t, err, billing.ErrRecordNotFound)
	_, err = f.store.Get(ctx, user)
	assert.ErrorIs(t, err, entitlement.ErrNotFound)
}

func TestWebhookProcessor_IgnoresOtherEvents(t *testing.T) {
	t.Parallel()

	f := newProcessorFixture()
	err := f.processor.Process(context.Background(), billing.CardEvent{
		ID:      "evt_1",
		Type:    "customer.created",
		Created: created,
		UserID:  uuid.New(),
	})
	assert.NoError(t, err)
}
