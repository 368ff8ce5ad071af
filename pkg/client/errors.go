package client

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/dmitrymomot/entitlements/pkg/api"
	"github.com/dmitrymomot/entitlements/pkg/fault"
)

var (
	ErrInvalidConfig    = errors.New("client: invalid configuration")
	ErrPurchaseCanceled = errors.New("client: purchase canceled by user")
	ErrPurchasePending  = errors.New("client: purchase pending approval")
	ErrStreamClosed     = errors.New("client: event stream closed")
)

// APIError is a non-2xx answer from the API. It unwraps to the fault
// sentinel matching its code, so callers can use errors.Is with the same
// taxonomy as the server.
type APIError struct {
	Status  int
	Code    string
	Message string
	Step    string
}

func (e *APIError) Error() string {
	if e.Step != "" {
		return fmt.Sprintf("api error %d (%s at %s): %s", e.Status, e.Code, e.Step, e.Message)
	}
	return fmt.Sprintf("api error %d (%s): %s", e.Status, e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	switch e.Code {
	case api.CodeInvalidRequest:
		return fault.ErrValidation
	case api.CodeUnauthorized:
		return fault.ErrAuthentication
	case api.CodeNotFound:
		return fault.ErrNotFound
	case api.CodeConflict:
		return fault.ErrConflict
	case api.CodeContactSupport:
		return fault.ErrDataIntegrity
	case api.CodeDeletionFailed:
		return fault.ErrPartialFailure
	}
	if e.Status >= http.StatusInternalServerError || e.Status == http.StatusTooManyRequests {
		return fault.ErrTransient
	}
	return nil
}
