package webhook

import "errors"

var (
	ErrBodyTooLarge  = errors.New("webhook body exceeds size limit")
	ErrEmptyBody     = errors.New("webhook body is empty")
	ErrFailedToRead  = errors.New("failed to read webhook body")
	ErrEnqueueFailed = errors.New("failed to enqueue webhook event")
)
