package fault

import "errors"

var (
	// ErrAuthentication marks requests with missing or invalid credentials.
	ErrAuthentication = errors.New("authentication failed")

	// ErrConfiguration marks missing secrets or an empty price allow-list.
	// Operators must be alerted; callers cannot recover.
	ErrConfiguration = errors.New("service misconfigured")

	// ErrValidation marks malformed input or a disallowed price.
	ErrValidation = errors.New("validation failed")

	// ErrProviderStateMismatch marks a stored provider id that does not exist
	// in the current provider environment.
	ErrProviderStateMismatch = errors.New("provider state mismatch")

	// ErrDataIntegrity marks a broken invariant, e.g. premium without a payment method.
	ErrDataIntegrity = errors.New("data integrity violation")

	// ErrNotFound marks a missing resource.
	ErrNotFound = errors.New("not found")

	// ErrConflict marks a request that contradicts current state,
	// e.g. a second active payment rail.
	ErrConflict = errors.New("conflict")

	// ErrPartialFailure marks a multi-step operation that stopped midway.
	ErrPartialFailure = errors.New("partial failure")

	// ErrTransient marks a failure worth retrying: network errors,
	// provider 5xx and rate limiting.
	ErrTransient = errors.New("transient failure")
)

// Transient wraps err with ErrTransient. Nil stays nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return errors.Join(ErrTransient, err)
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}
