package client

import (
	"context"

	"github.com/dmitrymomot/entitlements/pkg/cancellation"
	"github.com/dmitrymomot/entitlements/pkg/iap"
	"github.com/dmitrymomot/entitlements/pkg/logger"
)

// URLOpener opens an OS-level URL such as the subscription settings deep link.
type URLOpener interface {
	Open(ctx context.Context, url string) error
}

type URLOpenerFunc func(ctx context.Context, url string) error

func (f URLOpenerFunc) Open(ctx context.Context, url string) error { return f(ctx, url) }

// ManageOutcome tells the UI what happened when leaving for subscription settings.
type ManageOutcome struct {
	Opened       bool
	Instructions []string
}

// OpenManageSubscriptions follows the deep link of a platform cancellation
// result. When the link is missing or cannot be opened it returns the manual
// steps to show instead.
func (c *Client) OpenManageSubscriptions(ctx context.Context, opener URLOpener, res *cancellation.Result) ManageOutcome {
	url := iap.ManageSubscriptionsURL
	instructions := iap.ManualInstructions
	if res != nil {
		if res.ManageURL != "" {
			url = res.ManageURL
		}
		if len(res.Instructions) > 0 {
			instructions = res.Instructions
		}
	}

	if opener != nil {
		err := opener.Open(ctx, url)
		if err == nil {
			return ManageOutcome{Opened: true}
		}
		c.logger.WarnContext(ctx, "failed to open subscription settings",
			logger.Error(err),
		)
	}
	return ManageOutcome{Instructions: append([]string(nil), instructions...)}
}
