package api_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/entitlements/pkg/accountdeletion"
	"github.com/dmitrymomot/entitlements/pkg/api"
	"github.com/dmitrymomot/entitlements/pkg/fault"
)

func TestWriteError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", errors.Join(fault.ErrValidation, errors.New("bad price")), http.StatusBadRequest, api.CodeInvalidRequest},
		{"authentication", fault.ErrAuthentication, http.StatusUnauthorized, api.CodeUnauthorized},
		{"data integrity", fmt.Errorf("wrap: %w", fault.ErrDataIntegrity), http.StatusConflict, api.CodeContactSupport},
		{"not found", fault.ErrNotFound, http.StatusNotFound, api.CodeNotFound},
		{"conflict", fault.ErrConflict, http.StatusConflict, api.CodeConflict},
		{"step error", &accountdeletion.StepError{Step: accountdeletion.StepDeleteEntitlement, Err: errors.New("db down")},
			http.StatusInternalServerError, api.CodeDeletionFailed},
		{"unknown", errors.New("secret internal detail"), http.StatusInternalServerError, api.CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := httptest.NewRecorder()
			api.WriteError(rec, httptest.NewRequest(http.MethodGet, "/", nil), tt.err)

			assert.Equal(t, tt.status, rec.Code)
			var body api.ErrorResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, tt.code, body.Code)
			assert.NotContains(t, body.Error, "secret")
			assert.NotContains(t, body.Error, "db down")
		})
	}
}

func TestWriteError_StepIsReported(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	api.WriteError(rec, httptest.NewRequest(http.MethodDelete, "/v1/account", nil),
		&accountdeletion.StepError{Step: accountdeletion.StepDeleteIdentity, Err: errors.New("timeout")})

	var body api.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, string(accountdeletion.StepDeleteIdentity), body.Step)
}
