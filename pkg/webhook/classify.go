package webhook

import (
	"errors"

	"github.com/dmitrymomot/entitlements/pkg/fault"
	"github.com/dmitrymomot/entitlements/pkg/inbox"
)

// classify marks errors that no retry can fix so the inbox dead-letters
// them immediately. Everything else is retried with backoff.
func classify(err error) error {
	if errors.Is(err, fault.ErrValidation) ||
		errors.Is(err, fault.ErrConflict) ||
		errors.Is(err, fault.ErrDataIntegrity) {
		return inbox.Permanent(err)
	}
	return err
}
