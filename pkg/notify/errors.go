package notify

import "errors"

var (
	ErrHubClosed         = errors.New("notify: hub is closed")
	ErrInvalidUserID     = errors.New("notify: user id is required")
	ErrFailedToPublish   = errors.New("notify: failed to publish change")
	ErrFailedToDecode    = errors.New("notify: failed to decode change")
	ErrFailedToSubscribe = errors.New("notify: failed to subscribe")
)
