package identity

import "errors"

var (
	ErrNotFound             = errors.New("identity: not found")
	ErrMissingSigningKey    = errors.New("identity: missing signing key")
	ErrInvalidToken         = errors.New("identity: invalid token")
	ErrUnexpectedSigningAlg = errors.New("identity: unexpected signing method")
	ErrInvalidSubject       = errors.New("identity: token subject is not a user id")
	ErrUnknownIdentity      = errors.New("identity: token subject no longer exists")
	ErrFailedToStore        = errors.New("identity: failed to store identity")
	ErrFailedToDelete       = errors.New("identity: failed to delete identity")
)
