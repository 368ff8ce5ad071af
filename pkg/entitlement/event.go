package entitlement

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/entitlements/pkg/fault"
)

// EventType is a normalized provider lifecycle event.
type EventType string

const (
	EventInitialPurchase EventType = "INITIAL_PURCHASE"
	EventRenewal         EventType = "RENEWAL"
	EventCancellation    EventType = "CANCELLATION"
	EventUncancellation  EventType = "UNCANCELLATION"
	EventExpiration      EventType = "EXPIRATION"
	EventBillingIssue    EventType = "BILLING_ISSUE"
)

// Valid reports whether t is handled by Transition.
func (t EventType) Valid() bool {
	switch t {
	case EventInitialPurchase, EventRenewal, EventCancellation,
		EventUncancellation, EventExpiration, EventBillingIssue:
		return true
	}
	return false
}

// Event is a provider event translated into the engine's vocabulary.
type Event struct {
	ID         string        `json:"id"`
	Type       EventType     `json:"type"`
	UserID     uuid.UUID     `json:"user_id"`
	OccurredAt time.Time     `json:"occurred_at"`
	ProductID  string        `json:"product_id,omitempty"`
	ExpiresAt  *time.Time    `json:"expires_at,omitempty"`
	Payment    PaymentMethod `json:"-"`
}

// Validate checks that the event carries everything Transition needs.
func (ev Event) Validate() error {
	switch {
	case !ev.Type.Valid():
		return errors.Join(fault.ErrValidation, ErrUnsupportedType, fmt.Errorf("type %q", ev.Type))
	case ev.ID == "":
		return errors.Join(fault.ErrValidation, ErrInvalidEvent, errors.New("missing event id"))
	case ev.UserID == uuid.Nil:
		return errors.Join(fault.ErrValidation, ErrInvalidEvent, ErrMissingUserID)
	case ev.OccurredAt.IsZero():
		return errors.Join(fault.ErrValidation, ErrInvalidEvent, errors.New("missing event timestamp"))
	case KindOf(ev.Payment) == KindNone:
		return errors.Join(fault.ErrValidation, ErrInvalidEvent, errors.New("missing payment rail"))
	}
	if err := validatePaymentMethod(ev.Payment); err != nil {
		return errors.Join(fault.ErrValidation, ErrInvalidEvent, err)
	}
	return nil
}

// Transition applies ev to current and returns the resulting record.
// It has no side effects: on any error the returned value is current.
//
// Replays of the last applied event return ErrDuplicateEvent and events older
// than the last applied one return ErrStaleEvent. Lifecycle events for a
// subscription that is not the active one return ErrForeignRail. A purchase
// on a second rail while the first still renews returns ErrRailConflict.
func Transition(current Entitlement, ev Event) (Entitlement, error) {
	if err := ev.Validate(); err != nil {
		return current, err
	}
	if current.UserID != ev.UserID {
		return current, errors.Join(fault.ErrValidation, ErrUserMismatch)
	}
	if current.LastEventID != "" && ev.ID == current.LastEventID {
		return current, ErrDuplicateEvent
	}
	if !current.LastEventAt.IsZero() && ev.OccurredAt.Before(current.LastEventAt) {
		return current, ErrStaleEvent
	}

	next := current
	next.PaymentMethod = normalize(current.PaymentMethod)
	incoming := normalize(ev.Payment)
	active := KindOf(next.PaymentMethod)

	switch ev.Type {
	case EventInitialPurchase, EventRenewal:
		if current.IsPremium() && active != incoming.Kind() && !current.CancelAtPeriodEnd {
			return current, errors.Join(fault.ErrConflict, ErrRailConflict)
		}
		if revives(current, next.PaymentMethod, incoming, ev.OccurredAt) {
			next.CancelAtPeriodEnd = false
		}
		next.Status = StatusPremium
		next.PaymentMethod = mergePayment(next.PaymentMethod, incoming)
		next.BillingIssueAt = nil
		switch {
		case ev.ExpiresAt != nil:
			next.CurrentPeriodEnd = copyTime(ev.ExpiresAt)
		case ev.Type == EventInitialPurchase && !renews(incoming):
			// One-time purchases never expire.
			next.CurrentPeriodEnd = nil
		}
		if ev.ProductID != "" {
			next.ProductID = ev.ProductID
		}

	case EventCancellation, EventUncancellation, EventExpiration, EventBillingIssue:
		if !sameSubscription(next.PaymentMethod, incoming) {
			return current, ErrForeignRail
		}
		next.PaymentMethod = mergePayment(next.PaymentMethod, incoming)
		switch ev.Type {
		case EventCancellation:
			next.CancelAtPeriodEnd = true
			if ev.ExpiresAt != nil {
				next.CurrentPeriodEnd = copyTime(ev.ExpiresAt)
			}
		case EventUncancellation:
			next.CancelAtPeriodEnd = false
		case EventExpiration:
			// Identifiers stay for history; only access is revoked.
			next.Status = StatusFree
			next.CancelAtPeriodEnd = false
			next.BillingIssueAt = nil
		case EventBillingIssue:
			next.BillingIssueAt = copyTime(&ev.OccurredAt)
		}
	}

	next.LastEventID = ev.ID
	if ev.OccurredAt.After(current.LastEventAt) {
		next.LastEventAt = ev.OccurredAt
	}

	if err := next.Validate(); err != nil {
		return current, err
	}
	return next, nil
}

// revives reports whether a purchase or renewal undoes a scheduled
// cancellation. A renewal sharing the timestamp of the last applied event and
// carrying the transaction already on record is a late copy and does not.
func revives(current Entitlement, stored, incoming PaymentMethod, at time.Time) bool {
	if current.LastEventAt.IsZero() || at.After(current.LastEventAt) {
		return true
	}
	if stored.Kind() != incoming.Kind() {
		return true
	}
	s, _ := stored.(PlatformPayment)
	in, ok := incoming.(PlatformPayment)
	return ok && in.TransactionID != "" && in.TransactionID != s.TransactionID
}

// renews reports whether pm names a recurring card subscription whose period
// end arrives with a later invoice.
func renews(pm PaymentMethod) bool {
	c, ok := pm.(CardPayment)
	return ok && c.SubscriptionID != ""
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
