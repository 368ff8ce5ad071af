package client

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/dmitrymomot/entitlements/pkg/api"
	"github.com/dmitrymomot/entitlements/pkg/entitlement"
	"github.com/dmitrymomot/entitlements/pkg/fault"
	"github.com/dmitrymomot/entitlements/pkg/logger"
	"github.com/dmitrymomot/entitlements/pkg/notify"
)

const maxEventSize = 1 << 20

// Watch subscribes to the caller's entitlement changes. The snapshot sent on
// connect seeds the cache; every later change invalidates it and is passed
// to onChange when set. Watch blocks until ctx is done or the stream ends.
// It returns nil on context cancellation and ErrStreamClosed when the
// server hangs up, so callers can reconnect.
func (c *Client) Watch(ctx context.Context, userID uuid.UUID, onChange func(notify.Change)) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/v1/entitlement/events", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fault.Transient(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}

	log := c.logger.With(logger.UserID(userID))
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 4096), maxEventSize)

	var name string
	var data strings.Builder
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if data.Len() > 0 {
				c.dispatch(ctx, log, userID, name, data.String(), onChange)
			}
			name = ""
			data.Reset()
		case strings.HasPrefix(line, ":"):
			// heartbeat
		case strings.HasPrefix(line, "event:"):
			name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}

	if ctx.Err() != nil {
		return nil
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return fault.Transient(err)
	}
	return ErrStreamClosed
}

func (c *Client) dispatch(ctx context.Context, log *slog.Logger, userID uuid.UUID, name, data string, onChange func(notify.Change)) {
	switch name {
	case api.EventSnapshot:
		var view entitlement.View
		if err := json.Unmarshal([]byte(data), &view); err != nil {
			log.WarnContext(ctx, "invalid snapshot event", logger.Error(err))
			return
		}
		c.cache.Add(userID, view)
	case api.EventChange:
		var change notify.Change
		if err := json.Unmarshal([]byte(data), &change); err != nil {
			log.WarnContext(ctx, "invalid change event", logger.Error(err))
			c.Invalidate(userID)
			return
		}
		c.Invalidate(userID)
		if onChange != nil {
			onChange(change)
		}
	}
}
