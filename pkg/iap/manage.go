package iap

// ManageSubscriptionsURL opens the platform's subscription settings (iOS 13+).
const ManageSubscriptionsURL = "app-settings:root=SUBSCRIPTIONS_AND_BILLING"

// ManualInstructions are shown when the deep link cannot be opened.
var ManualInstructions = []string{
	"Open the Settings app.",
	"Tap your name at the top.",
	"Tap Subscriptions.",
	"Select this app's subscription.",
	"Tap Cancel Subscription and confirm.",
}
