package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/dmitrymomot/entitlements/pkg/accountdeletion"
	"github.com/dmitrymomot/entitlements/pkg/fault"
	"github.com/dmitrymomot/entitlements/pkg/logger"
)

var (
	ErrMissingDependency = errors.New("api: missing dependency")
	ErrInvalidJSON       = errors.New("api: invalid json body")
	ErrNoCaller          = errors.New("api: no authenticated caller")
)

// Error codes clients branch on.
const (
	CodeInvalidRequest = "invalid_request"
	CodeUnauthorized   = "unauthorized"
	CodeNotFound       = "not_found"
	CodeConflict       = "conflict"
	CodeContactSupport = "contact_support"
	CodeDeletionFailed = "deletion_failed"
	CodeInternal       = "internal_error"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	// Success is false on routes whose success body carries the flag.
	Success *bool             `json:"success,omitempty"`
	Error   string            `json:"error"`
	Code    string            `json:"code"`
	Step    string            `json:"step,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// classify maps an error to a status and a client-safe body. Causes are
// never echoed; they are logged instead.
func classify(err error) (int, ErrorResponse) {
	var stepErr *accountdeletion.StepError
	var fieldErr *validationError

	switch {
	case errors.As(err, &stepErr):
		return http.StatusInternalServerError, ErrorResponse{
			Error: "account deletion did not complete, please retry",
			Code:  CodeDeletionFailed,
			Step:  string(stepErr.Step),
		}
	case errors.As(err, &fieldErr):
		return http.StatusBadRequest, ErrorResponse{
			Error:  "request validation failed",
			Code:   CodeInvalidRequest,
			Fields: fieldErr.fields,
		}
	case errors.Is(err, fault.ErrValidation):
		return http.StatusBadRequest, ErrorResponse{Error: "invalid request", Code: CodeInvalidRequest}
	case errors.Is(err, fault.ErrAuthentication):
		return http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Code: CodeUnauthorized}
	case errors.Is(err, fault.ErrDataIntegrity):
		return http.StatusConflict, ErrorResponse{
			Error: "your subscription needs attention, please contact support",
			Code:  CodeContactSupport,
		}
	case errors.Is(err, fault.ErrNotFound):
		return http.StatusNotFound, ErrorResponse{Error: "no active subscription", Code: CodeNotFound}
	case errors.Is(err, fault.ErrConflict):
		return http.StatusConflict, ErrorResponse{
			Error: "you already have an active subscription on another platform",
			Code:  CodeConflict,
		}
	default:
		return http.StatusInternalServerError, ErrorResponse{
			Error: "something went wrong, please try again",
			Code:  CodeInternal,
		}
	}
}

func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := classify(err)
	a.respondError(w, r, err, status, body)
}

// writeFailure is writeError for routes that answer with a success flag.
func (a *API) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	status, body := classify(err)
	body.Success = new(bool)
	a.respondError(w, r, err, status, body)
}

func (a *API) respondError(w http.ResponseWriter, r *http.Request, err error, status int, body ErrorResponse) {
	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	a.logger.Log(r.Context(), level, "request failed",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Int("status", status),
		logger.Error(err),
	)
	writeJSON(w, status, body)
}

// WriteError writes the client-safe body for err without logging. It fits
// identity.ErrorHandler so authentication failures share the error format.
func WriteError(w http.ResponseWriter, _ *http.Request, err error) {
	status, body := classify(err)
	writeJSON(w, status, body)
}
