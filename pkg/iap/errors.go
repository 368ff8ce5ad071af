package iap

import "errors"

var (
	ErrSecretNotConfigured = errors.New("platform webhook secret is not configured")
	ErrUnauthorized        = errors.New("invalid or missing platform webhook token")
	ErrInvalidPayload      = errors.New("invalid platform webhook payload")
	ErrUnsupportedEvent    = errors.New("platform event type is not handled")
	ErrInvalidUserID       = errors.New("platform event has no valid app user id")
)
