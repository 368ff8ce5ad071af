package entitlement

// PaymentMethodKind names the rail that pays for premium access.
type PaymentMethodKind string

const (
	KindNone     PaymentMethodKind = "none"
	KindCard     PaymentMethodKind = "cardProvider"
	KindPlatform PaymentMethodKind = "platformIAP"
)

// Valid reports whether k is one of the known kinds.
func (k PaymentMethodKind) Valid() bool {
	switch k {
	case KindNone, KindCard, KindPlatform:
		return true
	}
	return false
}

// PaymentMethod is a closed union of NoPayment, CardPayment and PlatformPayment.
// Branch on it with MatchPaymentMethod so every caller handles all three rails.
type PaymentMethod interface {
	Kind() PaymentMethodKind
	paymentMethod()
}

// NoPayment means the user never paid through any rail.
type NoPayment struct{}

// CardPayment is the card-processor rail. SubscriptionID is empty for
// one-time (lifetime) purchases.
type CardPayment struct {
	CustomerID     string `json:"customer_id"`
	SubscriptionID string `json:"subscription_id,omitempty"`
}

// PlatformPayment is the app-store in-app purchase rail.
type PlatformPayment struct {
	OriginalTransactionID string `json:"original_transaction_id"`
	TransactionID         string `json:"transaction_id,omitempty"`
	CustomerID            string `json:"customer_id,omitempty"`
}

func (NoPayment) Kind() PaymentMethodKind       { return KindNone }
func (CardPayment) Kind() PaymentMethodKind     { return KindCard }
func (PlatformPayment) Kind() PaymentMethodKind { return KindPlatform }

func (NoPayment) paymentMethod()       {}
func (CardPayment) paymentMethod()     {}
func (PlatformPayment) paymentMethod() {}

// MatchPaymentMethod calls exactly one of the arms depending on the variant of pm.
// A nil pm is treated as NoPayment.
func MatchPaymentMethod[T any](
	pm PaymentMethod,
	onNone func() T,
	onCard func(CardPayment) T,
	onPlatform func(PlatformPayment) T,
) T {
	switch v := pm.(type) {
	case CardPayment:
		return onCard(v)
	case *CardPayment:
		if v != nil {
			return onCard(*v)
		}
	case PlatformPayment:
		return onPlatform(v)
	case *PlatformPayment:
		if v != nil {
			return onPlatform(*v)
		}
	}
	return onNone()
}

// KindOf returns the kind of pm. Nil values are KindNone.
func KindOf(pm PaymentMethod) PaymentMethodKind {
	return MatchPaymentMethod(pm,
		func() PaymentMethodKind { return KindNone },
		func(CardPayment) PaymentMethodKind { return KindCard },
		func(PlatformPayment) PaymentMethodKind { return KindPlatform },
	)
}

func validatePaymentMethod(pm PaymentMethod) error {
	return MatchPaymentMethod(pm,
		func() error { return nil },
		func(c CardPayment) error {
			if c.CustomerID == "" {
				return ErrMissingRailIdentifier
			}
			return nil
		},
		func(p PlatformPayment) error {
			if p.OriginalTransactionID == "" {
				return ErrMissingRailIdentifier
			}
			return nil
		},
	)
}

// mergePayment fills identifiers missing from next with the ones already
// known for the same rail.
func mergePayment(current, next PaymentMethod) PaymentMethod {
	current = normalize(current)
	return MatchPaymentMethod(next,
		func() PaymentMethod { return NoPayment{} },
		func(c CardPayment) PaymentMethod {
			if prev, ok := current.(CardPayment); ok {
				if c.CustomerID == "" {
					c.CustomerID = prev.CustomerID
				}
				if c.SubscriptionID == "" {
					c.SubscriptionID = prev.SubscriptionID
				}
			}
			return c
		},
		func(p PlatformPayment) PaymentMethod {
			if prev, ok := current.(PlatformPayment); ok {
				if p.OriginalTransactionID == "" {
					p.OriginalTransactionID = prev.OriginalTransactionID
				}
				if p.TransactionID == "" {
					p.TransactionID = prev.TransactionID
				}
				if p.CustomerID == "" {
					p.CustomerID = prev.CustomerID
				}
			}
			return p
		},
	)
}

// sameSubscription reports whether an event's identifiers point at the
// subscription currently stored. Empty identifiers on either side match.
func sameSubscription(current, incoming PaymentMethod) bool {
	current = normalize(current)
	if KindOf(current) != KindOf(incoming) {
		return false
	}
	return MatchPaymentMethod(incoming,
		func() bool { return true },
		func(c CardPayment) bool {
			prev := current.(CardPayment)
			return c.SubscriptionID == "" || prev.SubscriptionID == "" || c.SubscriptionID == prev.SubscriptionID
		},
		func(p PlatformPayment) bool {
			prev := current.(PlatformPayment)
			return p.OriginalTransactionID == "" || prev.OriginalTransactionID == "" ||
				p.OriginalTransactionID == prev.OriginalTransactionID
		},
	)
}

// normalize turns nil and pointer variants into value variants.
func normalize(pm PaymentMethod) PaymentMethod {
	return MatchPaymentMethod(pm,
		func() PaymentMethod { return NoPayment{} },
		func(c CardPayment) PaymentMethod { return c },
		func(p PlatformPayment) PaymentMethod { return p },
	)
}
