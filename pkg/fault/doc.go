// Package fault defines the error taxonomy shared by the entitlement engine.
//
// Every package keeps its own sentinel errors in errors.go and joins them with
// one of the kinds declared here using errors.Join. Callers classify a failure
// with errors.Is against the kind, without knowing the concrete sentinel:
//
//	err := errors.Join(fault.ErrValidation, billing.ErrPriceNotAllowed)
//	errors.Is(err, fault.ErrValidation)       // true
//	errors.Is(err, billing.ErrPriceNotAllowed) // true
//
// The HTTP layer maps kinds to status codes. RetryOnce implements the
// single retry applied to transient provider failures.
package fault
