package billing

import "errors"

var (
	ErrEmptyCatalog        = errors.New("price allow-list is empty")
	ErrPriceNotAllowed     = errors.New("price is not allowed")
	ErrModeMismatch        = errors.New("checkout mode does not match the price")
	ErrInvalidMode         = errors.New("invalid checkout mode")
	ErrInvalidCheckout     = errors.New("invalid checkout request")
	ErrAlreadySubscribed   = errors.New("user already has an active subscription")
	ErrMappingNotFound     = errors.New("customer mapping not found")
	ErrRecordNotFound      = errors.New("subscription record not found")
	ErrCustomerNotFound    = errors.New("customer not found")
	ErrSubscriptionMissing = errors.New("subscription not found")
	ErrInvalidSignature    = errors.New("invalid webhook signature")
	ErrInvalidPayload      = errors.New("invalid webhook payload")
	ErrUnresolvedUser      = errors.New("cannot resolve user for card event")
	ErrUnknownProvider     = errors.New("unknown card provider")
	ErrMissingAPIKey       = errors.New("card provider api key is required")
	ErrMissingWebhookKey   = errors.New("card provider webhook secret is required")

	ErrFailedToCreateCustomer = errors.New("failed to create customer")
	ErrFailedToCreateSession  = errors.New("failed to create checkout session")
	ErrFailedToPersistMapping = errors.New("failed to persist customer mapping")
	ErrFailedToLoadMapping    = errors.New("failed to load customer mapping")
	ErrFailedToPersistRecord  = errors.New("failed to persist subscription record")
	ErrFailedToDeleteRecords  = errors.New("failed to delete billing records")
)
