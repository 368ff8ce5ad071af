package cancellation

import (
	"github.com/dmitrymomot/entitlements/pkg/entitlement"
	"github.com/dmitrymomot/entitlements/pkg/iap"
)

// ActionSet is what the subscription screen offers for a given view.
type ActionSet struct {
	CanCancel            bool   `json:"canCancel"`
	ShowScheduledWarning bool   `json:"showScheduledWarning"`
	SettingsDeepLink     string `json:"settingsDeepLink,omitempty"`
	ContactSupport       bool   `json:"contactSupport"`
}

// Actions derives the available subscription actions from a view.
func Actions(v entitlement.View) ActionSet {
	if v.Status != entitlement.StatusPremium {
		return ActionSet{}
	}
	switch v.PaymentMethod {
	case entitlement.KindCard:
		if v.CancelsAtPeriodEnd {
			return ActionSet{ShowScheduledWarning: true}
		}
		return ActionSet{CanCancel: true}
	case entitlement.KindPlatform:
		return ActionSet{SettingsDeepLink: iap.ManageSubscriptionsURL}
	default:
		// Premium without a rail: nothing safe to offer.
		return ActionSet{ContactSupport: true}
	}
}
