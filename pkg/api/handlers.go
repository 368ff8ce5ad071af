package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/dmitrymomot/entitlements/pkg/billing"
	"github.com/dmitrymomot/entitlements/pkg/cancellation"
	"github.com/dmitrymomot/entitlements/pkg/logger"
)

type cancelRequest struct {
	Immediate bool `json:"immediate"`
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func (a *API) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := healthResponse{Status: "ok"}
	status := http.StatusOK
	for name, check := range a.deps.HealthChecks {
		if resp.Checks == nil {
			resp.Checks = make(map[string]string, len(a.deps.HealthChecks))
		}
		if err := check(ctx); err != nil {
			a.logger.WarnContext(ctx, "health check failed", slog.String("check", name), logger.Error(err))
			resp.Checks[name] = "unavailable"
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}
	writeJSON(w, status, resp)
}

func (a *API) createCheckout(w http.ResponseWriter, r *http.Request) {
	userID, err := a.caller(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	var req billing.CheckoutRequest
	if err := a.decode(r, &req, false); err != nil {
		a.writeError(w, r, err)
		return
	}
	if a.deps.Identities != nil {
		if id, err := a.deps.Identities.Get(r.Context(), userID); err == nil {
			req.Email = id.Email
		}
	}

	session, err := a.deps.Checkout.CreateSession(r.Context(), userID, req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (a *API) getEntitlement(w http.ResponseWriter, r *http.Request) {
	userID, err := a.caller(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	view, err := a.deps.Entitlements.Query(r.Context(), userID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, view)
}

func (a *API) subscriptionActions(w http.ResponseWriter, r *http.Request) {
	userID, err := a.caller(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	view, err := a.deps.Entitlements.Query(r.Context(), userID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cancellation.Actions(view))
}

func (a *API) cancelSubscription(w http.ResponseWriter, r *http.Request) {
	userID, err := a.caller(r)
	if err != nil {
		a.writeFailure(w, r, err)
		return
	}

	var req cancelRequest
	if err := a.decode(r, &req, true); err != nil {
		a.writeFailure(w, r, err)
		return
	}

	res, err := a.deps.Cancellation.Cancel(r.Context(), cancellation.Request{
		UserID:    userID,
		Immediate: req.Immediate,
	})
	if err != nil {
		a.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) deleteAccount(w http.ResponseWriter, r *http.Request) {
	userID, err := a.caller(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	// The client may hang up; deletion still has to reach a consistent point.
	ctx := context.WithoutCancel(r.Context())
	report, err := a.deps.Deletion.Delete(ctx, userID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
