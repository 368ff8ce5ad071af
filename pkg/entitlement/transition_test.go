package entitlement_test

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/entitlements/pkg/entitlement"
	"github.com/dmitrymomot/entitlements/pkg/fault"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func cardEvent(id string, typ entitlement.EventType, user uuid.UUID, at time.Time) entitlement.Event {
	expires := at.Add(30 * 24 * time.Hour)
	return entitlement.Event{
		ID:         id,
		Type:       typ,
		UserID:     user,
		OccurredAt: at,
		ProductID:  "price_monthly",
		ExpiresAt:  &expires,
		Payment:    entitlement.CardPayment{CustomerID: "cus_1", SubscriptionID: "sub_1"},
	}
}

func platformEvent(id string, typ entitlement.EventType, user uuid.UUID, at time.Time) entitlement.Event {
	expires := at.Add(7 * 24 * time.Hour)
	return entitlement.Event{
		ID:         id,
		Type:       typ,
		UserID:     user,
		OccurredAt: at,
		ProductID:  "com.example.weekly",
		ExpiresAt:  &expires,
		Payment: entitlement.PlatformPayment{
			OriginalTransactionID: "1000",
			TransactionID:         id,
			CustomerID:            user.String(),
		},
	}
}

func TestTransition_Lifecycle(t *testing.T) {
	t.Parallel()

	user := uuid.New()
	e := entitlement.New(user)

	e, err := entitlement.Transition(e, cardEvent("evt_1", entitlement.EventInitialPurchase, user, t0))
	require.NoError(t, err)
	assert.Equal(t, entitlement.StatusPremium, e.Status)
	assert.Equal(t, entitlement.KindCard, entitlement.KindOf(e.PaymentMethod))
	require.NotNil(t, e.CurrentPeriodEnd)
	assert.False(t, e.CancelAtPeriodEnd)

	e, err = entitlement.Transition(e, cardEvent("evt_2", entitlement.EventCancellation, user, t0.Add(time.Hour)))
	require.NoError(t, err)
	assert.Equal(t, entitlement.StatusPremium, e.Status, "cancellation keeps access until the period ends")
	assert.True(t, e.CancelAtPeriodEnd)

	e, err = entitlement.Transition(e, cardEvent("evt_3", entitlement.EventUncancellation, user, t0.Add(2*time.Hour)))
	require.NoError(t, err)
	assert.False(t, e.CancelAtPeriodEnd)

	e, err = entitlement.Transition(e, cardEvent("evt_4", entitlement.EventBillingIssue, user, t0.Add(3*time.Hour)))
	require.NoError(t, err)
	require.NotNil(t, e.BillingIssueAt)
	assert.Equal(t, entitlement.StatusPremium, e.Status)

	e, err = entitlement.Transition(e, cardEvent("evt_5", entitlement.EventRenewal, user, t0.Add(4*time.Hour)))
	require.NoError(t, err)
	assert.Nil(t, e.BillingIssueAt)

	e, err = entitlement.Transition(e, cardEvent("evt_6", entitlement.EventExpiration, user, t0.Add(5*time.Hour)))
	require.NoError(t, err)
	assert.Equal(t, entitlement.StatusFree, e.Status)
	assert.Equal(t, entitlement.CardPayment{CustomerID: "cus_1", SubscriptionID: "sub_1"}, e.PaymentMethod,
		"identifiers are retained after expiration")
	assert.Equal(t, "evt_6", e.LastEventID)
	assert.Equal(t, t0.Add(5*time.Hour), e.LastEventAt)
}

func TestTransition_Idempotent(t *testing.T) {
	t.Parallel()

	user := uuid.New()
	ev := cardEvent("evt_1", entitlement.EventInitialPurchase, user, t0)

	once, err := entitlement.Transition(entitlement.New(user), ev)
	require.NoError(t, err)

	twice, err := entitlement.Transition(once, ev)
	assert.ErrorIs(t, err, entitlement.ErrDuplicateEvent)
	assert.True(t, entitlement.IsIgnorable(err))
	assert.Equal(t, once, twice)
}

func TestTransition_StaleEvent(t *testing.T) {
	t.Parallel()

	user := uuid.New()
	e, err := entitlement.Transition(entitlement.New(user),
		cardEvent("evt_2", entitlement.EventInitialPurchase, user, t0.Add(time.Hour)))
	require.NoError(t, err)

	got, err := entitlement.Transition(e, cardEvent("evt_1", entitlement.EventExpiration, user, t0))
	assert.ErrorIs(t, err, entitlement.ErrStaleEvent)
	assert.Equal(t, e, got)

	// Same timestamp is still applied.
	got, err = entitlement.Transition(e, cardEvent("evt_3", entitlement.EventCancellation, user, t0.Add(time.Hour)))
	require.NoError(t, err)
	assert.True(t, got.CancelAtPeriodEnd)
}

func TestTransition_LateRenewalKeepsCancellation(t *testing.T) {
	t.Parallel()

	user := uuid.New()
	t1 := t0.Add(time.Hour)
	withTx := func(ev entitlement.Event, tx string) entitlement.Event {
		ev.Payment = entitlement.PlatformPayment{OriginalTransactionID: "1000", TransactionID: tx}
		return ev
	}

	e, err := entitlement.Transition(entitlement.New(user),
		withTx(platformEvent("evt_1", entitlement.EventInitialPurchase, user, t0), "tx-1"))
	require.NoError(t, err)
	e, err = entitlement.Transition(e,
		withTx(platformEvent("evt_2", entitlement.EventCancellation, user, t1), "tx-2"))
	require.NoError(t, err)
	require.True(t, e.CancelAtPeriodEnd)

	t.Run("same instant and transaction", func(t *testing.T) {
		t.Parallel()
		got, err := entitlement.Transition(e,
			withTx(platformEvent("evt_3", entitlement.EventRenewal, user, t1), "tx-2"))
		require.NoError(t, err)
		assert.True(t, got.CancelAtPeriodEnd)
		assert.True(t, got.IsPremium())
	})

	t.Run("same instant with a new transaction", func(t *testing.T) {
		t.Parallel()
		got, err := entitlement.Transition(e,
			withTx(platformEvent("evt_3", entitlement.EventRenewal, user, t1), "tx-3"))
		require.NoError(t, err)
		assert.False(t, got.CancelAtPeriodEnd)
	})

	t.Run("later renewal", func(t *testing.T) {
		t.Parallel()
		got, err := entitlement.Transition(e,
			withTx(platformEvent("evt_3", entitlement.EventRenewal, user, t1.Add(time.Second)), "tx-2"))
		require.NoError(t, err)
		assert.False(t, got.CancelAtPeriodEnd)
	})

	t.Run("card renewal at the cancellation instant", func(t *testing.T) {
		t.Parallel()
		c, err := entitlement.Transition(entitlement.New(user), cardEvent("evt_1", entitlement.EventInitialPurchase, user, t0))
		require.NoError(t, err)
		c, err = entitlement.Transition(c, cardEvent("evt_2", entitlement.EventCancellation, user, t1))
		require.NoError(t, err)

		got, err := entitlement.Transition(c, cardEvent("evt_3", entitlement.EventRenewal, user, t1))
		require.NoError(t, err)
		assert.True(t, got.CancelAtPeriodEnd)
	})
}

func TestTransition_ForeignRail(t *testing.T) {
	t.Parallel()

	user := uuid.New()

	t.Run("cancellation before purchase", func(t *testing.T) {
		t.Parallel()
		_, err := entitlement.Transition(entitlement.New(user),
			cardEvent("evt_1", entitlement.EventCancellation, user, t0))
		assert.ErrorIs(t, err, entitlement.ErrForeignRail)
	})

	t.Run("platform expiration on card subscriber", func(t *testing.T) {
		t.Parallel()
		e, err := entitlement.Transition(entitlement.New(user),
			cardEvent("evt_1", entitlement.EventInitialPurchase, user, t0))
		require.NoError(t, err)

		got, err := entitlement.Transition(e, platformEvent("tx_1", entitlement.EventExpiration, user, t0.Add(time.Hour)))
		assert.ErrorIs(t, err, entitlement.ErrForeignRail)
		assert.Equal(t, entitlement.StatusPremium, got.Status)
	})

	t.Run("cancellation of another card subscription", func(t *testing.T) {
		t.Parallel()
		e, err := entitlement.Transition(entitlement.New(user),
			cardEvent("evt_1", entitlement.EventInitialPurchase, user, t0))
		require.NoError(t, err)

		ev := cardEvent("evt_2", entitlement.EventCancellation, user, t0.Add(time.Hour))
		ev.Payment = entitlement.CardPayment{CustomerID: "cus_1", SubscriptionID: "sub_old"}
		_, err = entitlement.Transition(e, ev)
		assert.ErrorIs(t, err, entitlement.ErrForeignRail)
	})
}

func TestTransition_RailConflict(t *testing.T) {
	t.Parallel()

	user := uuid.New()
	e, err := entitlement.Transition(entitlement.New(user),
		cardEvent("evt_1", entitlement.EventInitialPurchase, user, t0))
	require.NoError(t, err)

	_, err = entitlement.Transition(e, platformEvent("tx_1", entitlement.EventInitialPurchase, user, t0.Add(time.Hour)))
	assert.ErrorIs(t, err, entitlement.ErrRailConflict)
	assert.ErrorIs(t, err, fault.ErrConflict)
	assert.False(t, entitlement.IsIgnorable(err))

	t.Run("switch allowed once the old rail is scheduled to cancel", func(t *testing.T) {
		cancelled, err := entitlement.Transition(e, cardEvent("evt_2", entitlement.EventCancellation, user, t0.Add(time.Hour)))
		require.NoError(t, err)

		switched, err := entitlement.Transition(cancelled,
			platformEvent("tx_2", entitlement.EventInitialPurchase, user, t0.Add(2*time.Hour)))
		require.NoError(t, err)
		assert.Equal(t, entitlement.KindPlatform, entitlement.KindOf(switched.PaymentMethod))
		assert.False(t, switched.CancelAtPeriodEnd)
	})
}

func TestTransition_LifetimePurchase(t *testing.T) {
	t.Parallel()

	user := uuid.New()
	ev := cardEvent("cs_1", entitlement.EventInitialPurchase, user, t0)
	ev.ExpiresAt = nil
	ev.Payment = entitlement.CardPayment{CustomerID: "cus_1"}

	e, err := entitlement.Transition(entitlement.New(user), ev)
	require.NoError(t, err)
	assert.True(t, e.IsPremium())
	assert.Nil(t, e.CurrentPeriodEnd)
	assert.Nil(t, e.View().RenewalDate)
}

func TestTransition_InvalidEvents(t *testing.T) {
	t.Parallel()

	user := uuid.New()
	tests := []struct {
		name   string
		mutate func(*entitlement.Event)
		want   error
	}{
		{"unknown type", func(e *entitlement.Event) { e.Type = "PRODUCT_CHANGE" }, entitlement.ErrUnsupportedType},
		{"missing id", func(e *entitlement.Event) { e.ID = "" }, entitlement.ErrInvalidEvent},
		{"missing timestamp", func(e *entitlement.Event) { e.OccurredAt = time.Time{} }, entitlement.ErrInvalidEvent},
		{"missing rail", func(e *entitlement.Event) { e.Payment = entitlement.NoPayment{} }, entitlement.ErrInvalidEvent},
		{"missing customer", func(e *entitlement.Event) { e.Payment = entitlement.CardPayment{} }, entitlement.ErrMissingRailIdentifier},
		{"other user", func(e *entitlement.Event) { e.UserID = uuid.New() }, entitlement.ErrUserMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ev := cardEvent("evt_1", entitlement.EventInitialPurchase, user, t0)
			tt.mutate(&ev)

			current := entitlement.New(user)
			got, err := entitlement.Transition(current, ev)
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, fault.ErrValidation)
			assert.Equal(t, current, got)
		})
	}
}

// Any sequence of events, in any order, leaves a record that satisfies
// premium ⇒ payment method ≠ none.
func TestTransition_RandomSequencesKeepInvariant(t *testing.T) {
	t.Parallel()

	types := []entitlement.EventType{
		entitlement.EventInitialPurchase,
		entitlement.EventRenewal,
		entitlement.EventCancellation,
		entitlement.EventUncancellation,
		entitlement.EventExpiration,
		entitlement.EventBillingIssue,
	}
	rng := rand.New(rand.NewSource(42))
	user := uuid.New()

	for run := 0; run < 200; run++ {
		e := entitlement.New(user)
		for step := 0; step < 25; step++ {
			typ := types[rng.Intn(len(types))]
			at := t0.Add(time.Duration(rng.Intn(100)) * time.Minute)
			id := fmt.Sprintf("evt_%d_%d", run, rng.Intn(10))

			var ev entitlement.Event
			if rng.Intn(2) == 0 {
				ev = cardEvent(id, typ, user, at)
			} else {
				ev = platformEvent(id, typ, user, at)
			}

			next, err := entitlement.Transition(e, ev)
			if err != nil {
				require.Equal(t, e, next, "failed transition must not change the record")
				continue
			}
			e = next
			require.NoError(t, e.Validate())
			if e.IsPremium() {
				require.NotEqual(t, entitlement.KindNone, entitlement.KindOf(e.PaymentMethod))
			}
		}
	}
}
