package iap_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/entitlements/pkg/entitlement"
	"github.com/dmitrymomot/entitlements/pkg/fault"
	"github.com/dmitrymomot/entitlements/pkg/iap"
)

func TestDecode(t *testing.T) {
	t.Parallel()

	user := uuid.New()
	body, err := iap.Decode([]byte(`{"event":{
		"type":"INITIAL_PURCHASE",
		"app_user_id":"` + user.String() + `",
		"original_app_user_id":"$RCAnonymousID:abc",
		"product_id":"premium_monthly",
		"period_type":"NORMAL",
		"purchased_at_ms":1746093600000,
		"expiration_at_ms":1748772000000,
		"store":"APP_STORE",
		"environment":"SANDBOX",
		"transaction_id":"2000001",
		"original_transaction_id":"1000001"
	}}`))
	require.NoError(t, err)
	assert.Equal(t, iap.TypeInitialPurchase, body.Event.Type)
	require.NotNil(t, body.Event.ExpirationAtMs)
	assert.Equal(t, int64(1748772000000), *body.Event.ExpirationAtMs)

	_, err = iap.Decode([]byte(`{"event":{}}`))
	assert.ErrorIs(t, err, iap.ErrInvalidPayload)
	assert.ErrorIs(t, err, fault.ErrValidation)

	_, err = iap.Decode([]byte(`not json`))
	assert.ErrorIs(t, err, iap.ErrInvalidPayload)
}

func TestEventPayload_ToEvent(t *testing.T) {
	t.Parallel()

	user := uuid.New()
	expires := int64(1748772000000)
	base := iap.EventPayload{
		Type:                  iap.TypeInitialPurchase,
		AppUserID:             user.String(),
		ProductID:             "premium_monthly",
		PurchasedAtMs:         1746093600000,
		ExpirationAtMs:        &expires,
		TransactionID:         "2000001",
		OriginalTransactionID: "1000001",
	}

	t.Run("initial purchase", func(t *testing.T) {
		t.Parallel()

		ev, err := base.ToEvent()
		require.NoError(t, err)
		assert.Equal(t, entitlement.EventInitialPurchase, ev.Type)
		assert.Equal(t, user, ev.UserID)
		assert.Equal(t, "INITIAL_PURCHASE:2000001:1746093600000", ev.ID)
		assert.Equal(t, time.UnixMilli(1746093600000).UTC(), ev.OccurredAt)
		require.NotNil(t, ev.ExpiresAt)
		assert.Equal(t, time.UnixMilli(expires).UTC(), *ev.ExpiresAt)
		assert.Equal(t, entitlement.PlatformPayment{
			OriginalTransactionID: "1000001",
			TransactionID:         "2000001",
			CustomerID:            user.String(),
		}, ev.Payment)
	})

	t.Run("explicit id and timestamp win", func(t *testing.T) {
		t.Parallel()

		p := base
		p.ID = "evt-42"
		p.EventTimestampMs = 1746093700000
		ev, err := p.ToEvent()
		require.NoError(t, err)
		assert.Equal(t, "evt-42", ev.ID)
		assert.Equal(t, time.UnixMilli(1746093700000).UTC(), ev.OccurredAt)
	})

	t.Run("falls back to original app user id", func(t *testing.T) {
		t.Parallel()

		p := base
		p.AppUserID = "$RCAnonymousID:abc"
		p.OriginalAppUserID = user.String()
		ev, err := p.ToEvent()
		require.NoError(t, err)
		assert.Equal(t, user, ev.UserID)
	})

	t.Run("anonymous user", func(t *testing.T) {
		t.Parallel()

		p := base
		p.AppUserID = "$RCAnonymousID:abc"
		_, err := p.ToEvent()
		assert.ErrorIs(t, err, iap.ErrInvalidUserID)
	})

	t.Run("original transaction defaults to transaction", func(t *testing.T) {
		t.Parallel()

		p := base
		p.OriginalTransactionID = ""
		ev, err := p.ToEvent()
		require.NoError(t, err)
		assert.Equal(t, "2000001", ev.Payment.(entitlement.PlatformPayment).OriginalTransactionID)
	})

	t.Run("type mapping", func(t *testing.T) {
		t.Parallel()

		cases := map[string]entitlement.EventType{
			iap.TypeNonRenewingPurchase: entitlement.EventInitialPurchase,
			iap.TypeRenewal:             entitlement.EventRenewal,
			iap.TypeProductChange:       entitlement.EventRenewal,
			iap.TypeCancellation:        entitlement.EventCancellation,
			iap.TypeUncancellation:      entitlement.EventUncancellation,
			iap.TypeExpiration:          entitlement.EventExpiration,
			iap.TypeBillingIssue:        entitlement.EventBillingIssue,
		}
		for in, want := range cases {
			p := base
			p.Type = in
			ev, err := p.ToEvent()
			require.NoError(t, err, in)
			assert.Equal(t, want, ev.Type, in)
		}
	})

	t.Run("unsupported type", func(t *testing.T) {
		t.Parallel()

		p := base
		p.Type = iap.TypeTest
		_, err := p.ToEvent()
		assert.ErrorIs(t, err, iap.ErrUnsupportedEvent)
	})
}

func TestPlatformEventsDriveEntitlement(t *testing.T) {
	t.Parallel()

	user := uuid.New()
	current := entitlement.New(user)

	purchase := iap.EventPayload{
		Type:                  iap.TypeInitialPurchase,
		AppUserID:             user.String(),
		ProductID:             "premium_yearly",
		PurchasedAtMs:         1746093600000,
		TransactionID:         "t1",
		OriginalTransactionID: "o1",
	}
	cancel := purchase
	cancel.Type = iap.TypeCancellation
	cancel.EventTimestampMs = 1746093700000

	for _, p := range []iap.EventPayload{purchase, cancel, cancel} {
		ev, err := p.ToEvent()
		require.NoError(t, err)
		next, err := entitlement.Transition(current, ev)
		if entitlement.IsIgnorable(err) {
			continue
		}
		require.NoError(t, err)
		current = next
	}

	assert.Equal(t, entitlement.StatusPremium, current.Status)
	assert.True(t, current.CancelAtPeriodEnd)
	assert.Equal(t, entitlement.KindPlatform, entitlement.KindOf(current.PaymentMethod))
}
