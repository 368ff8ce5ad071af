package entitlement

import "errors"

var (
	ErrNotFound              = errors.New("entitlement not found")
	ErrMissingUserID         = errors.New("user id is required")
	ErrUnknownStatus         = errors.New("unknown subscription status")
	ErrPremiumWithoutPayment = errors.New("premium entitlement requires a payment method")
	ErrMissingRailIdentifier = errors.New("payment method is missing its provider identifier")

	ErrInvalidEvent    = errors.New("invalid entitlement event")
	ErrUnsupportedType = errors.New("unsupported event type")
	ErrUserMismatch    = errors.New("event belongs to a different user")

	// Ignorable outcomes of Transition. The caller acknowledges the event
	// and leaves the stored entitlement untouched.
	ErrDuplicateEvent = errors.New("event already applied")
	ErrStaleEvent     = errors.New("event is older than the last applied event")
	ErrForeignRail    = errors.New("event targets a payment rail that is not active")

	// ErrRailConflict is returned when a purchase would make a second rail
	// active while the first one still renews.
	ErrRailConflict = errors.New("user already has an active subscription on another payment rail")

	ErrFailedToLoad    = errors.New("failed to load entitlement")
	ErrFailedToPersist = errors.New("failed to persist entitlement")
	ErrFailedToDelete  = errors.New("failed to delete entitlement")
)

// IsIgnorable reports whether err means the event was intentionally skipped.
func IsIgnorable(err error) bool {
	return errors.Is(err, ErrDuplicateEvent) ||
		errors.Is(err, ErrStaleEvent) ||
		errors.Is(err, ErrForeignRail)
}
