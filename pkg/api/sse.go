package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/dmitrymomot/entitlements/pkg/logger"
)

// SSE event names on /v1/entitlement/events.
const (
	EventSnapshot = "snapshot"
	EventChange   = "entitlement"
)

// streamChanges sends the current view, then every change for the caller
// until the client disconnects.
func (a *API) streamChanges(w http.ResponseWriter, r *http.Request) {
	userID, err := a.caller(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	ctx := r.Context()

	rc := http.NewResponseController(w)
	// The server write timeout would otherwise cut the stream.
	_ = rc.SetWriteDeadline(time.Time{})

	sub, err := a.deps.Changes.Subscribe(ctx, userID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	defer sub.Close()

	view, err := a.deps.Entitlements.Query(ctx, userID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	log := a.logger.With(logger.UserID(userID))
	if err := writeEvent(w, EventSnapshot, view); err != nil {
		log.WarnContext(ctx, "failed to write snapshot", logger.Error(err))
		return
	}
	if err := rc.Flush(); err != nil {
		log.WarnContext(ctx, "streaming unsupported", logger.Error(err))
		return
	}

	ticker := time.NewTicker(a.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case change, ok := <-sub.C():
			if !ok {
				return
			}
			if err := writeEvent(w, EventChange, change); err != nil {
				return
			}
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

func writeEvent(w http.ResponseWriter, name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
	return err
}
