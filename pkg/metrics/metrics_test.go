package metrics_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/entitlements/pkg/metrics"
)

func TestMetricsHandler(t *testing.T) {
	t.Parallel()

	m := metrics.New()
	m.WebhookReceived("card", "accepted")
	m.EventApplied("RENEWAL", "applied")
	m.CheckoutCreated("")
	m.InboxTask("webhook.CardTask", "success")

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	out := string(body)
	assert.Contains(t, out, `entitlements_webhook_requests_total{provider="card",result="accepted"} 1`)
	assert.Contains(t, out, `entitlements_entitlement_events_total{result="applied",type="RENEWAL"} 1`)
	assert.Contains(t, out, `entitlements_checkout_sessions_total{result="unknown"} 1`)
	assert.Contains(t, out, `entitlements_inbox_tasks_total{name="webhook.CardTask",result="success"} 1`)
}

func TestNilMetricsIsNoop(t *testing.T) {
	t.Parallel()

	var m *metrics.Metrics
	assert.NotPanics(t, func() {
		m.WebhookReceived("card", "accepted")
		m.Cancellation("card", "scheduled")
		m.DeletionStep("delete_identity", "failure")
	})
}
