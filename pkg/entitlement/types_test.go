package entitlement_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/entitlements/pkg/entitlement"
	"github.com/dmitrymomot/entitlements/pkg/fault"
)

func TestEntitlement_Validate(t *testing.T) {
	t.Parallel()

	user := uuid.New()

	t.Run("premium without payment method", func(t *testing.T) {
		t.Parallel()
		e := entitlement.New(user)
		e.Status = entitlement.StatusPremium
		err := e.Validate()
		assert.ErrorIs(t, err, entitlement.ErrPremiumWithoutPayment)
		assert.ErrorIs(t, err, fault.ErrDataIntegrity)
	})

	t.Run("nil payment method counts as none", func(t *testing.T) {
		t.Parallel()
		e := entitlement.Entitlement{UserID: user, Status: entitlement.StatusPremium}
		assert.ErrorIs(t, e.Validate(), entitlement.ErrPremiumWithoutPayment)
	})

	t.Run("free with retained card identifiers", func(t *testing.T) {
		t.Parallel()
		e := entitlement.New(user)
		e.PaymentMethod = entitlement.CardPayment{CustomerID: "cus_1"}
		assert.NoError(t, e.Validate())
	})

	t.Run("platform without original transaction", func(t *testing.T) {
		t.Parallel()
		e := entitlement.New(user)
		e.Status = entitlement.StatusPremium
		e.PaymentMethod = &entitlement.PlatformPayment{TransactionID: "1"}
		assert.ErrorIs(t, e.Validate(), entitlement.ErrMissingRailIdentifier)
	})
}

func TestEntitlement_View(t *testing.T) {
	t.Parallel()

	end := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	e := entitlement.New(uuid.New())
	e.Status = entitlement.StatusPremium
	e.PaymentMethod = entitlement.CardPayment{CustomerID: "cus_1", SubscriptionID: "sub_1"}
	e.CurrentPeriodEnd = &end
	e.CancelAtPeriodEnd = true

	v := e.View()
	assert.Equal(t, entitlement.StatusPremium, v.Status)
	assert.Equal(t, entitlement.KindCard, v.PaymentMethod)
	assert.Equal(t, &end, v.RenewalDate)
	assert.True(t, v.CancelsAtPeriodEnd)

	e.Status = entitlement.StatusFree
	assert.Nil(t, e.View().RenewalDate, "free users have no renewal date")

	assert.Equal(t, entitlement.View{Status: entitlement.StatusFree, PaymentMethod: entitlement.KindNone}, entitlement.FreeView())
}

func TestMatchPaymentMethod(t *testing.T) {
	t.Parallel()

	name := func(pm entitlement.PaymentMethod) string {
		return entitlement.MatchPaymentMethod(pm,
			func() string { return "none" },
			func(c entitlement.CardPayment) string { return "card:" + c.CustomerID },
			func(p entitlement.PlatformPayment) string { return "platform:" + p.OriginalTransactionID },
		)
	}

	assert.Equal(t, "none", name(nil))
	assert.Equal(t, "none", name(entitlement.NoPayment{}))
	assert.Equal(t, "card:cus_1", name(entitlement.CardPayment{CustomerID: "cus_1"}))
	assert.Equal(t, "card:cus_2", name(&entitlement.CardPayment{CustomerID: "cus_2"}))
	assert.Equal(t, "platform:1000", name(entitlement.PlatformPayment{OriginalTransactionID: "1000"}))
	assert.Equal(t, "none", name((*entitlement.PlatformPayment)(nil)))
}
