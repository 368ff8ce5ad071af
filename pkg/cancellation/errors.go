package cancellation

import "errors"

var (
	ErrNoActiveSubscription = errors.New("no active subscription to cancel")
	ErrInvalidState         = errors.New("premium entitlement without a payment method")
	ErrRailChanged          = errors.New("payment rail changed during cancellation")
)
