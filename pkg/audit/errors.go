package audit

import "errors"

var (
	ErrInvalidEntry   = errors.New("audit: invalid entry")
	ErrFailedToStore  = errors.New("audit: failed to store entries")
	ErrFailedToDelete = errors.New("audit: failed to delete entries")
)
