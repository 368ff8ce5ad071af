package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrymomot/entitlements/pkg/fault"
)

// MemoryProvider is an in-process Provider for local development and tests.
// Webhooks are CardEvent JSON signed with the shared secret verbatim.
type MemoryProvider struct {
	mu            sync.Mutex
	environment   string
	webhookSecret string
	customers     map[string]bool
	subscriptions map[string]*Subscription
	failures      map[string]error
	calls         map[string]int
	seq           int
}

func NewMemoryProvider(environment, webhookSecret string) *MemoryProvider {
	return &MemoryProvider{
		environment:   environment,
		webhookSecret: webhookSecret,
		customers:     make(map[string]bool),
		subscriptions: make(map[string]*Subscription),
		failures:      make(map[string]error),
		calls:         make(map[string]int),
	}
}

// FailOn makes every call to method return err until cleared with a nil err.
func (p *MemoryProvider) FailOn(method string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err == nil {
		delete(p.failures, method)
		return
	}
	p.failures[method] = err
}

// Calls returns how many times method was called.
func (p *MemoryProvider) Calls(method string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[method]
}

// TotalCalls returns the number of calls across all methods.
func (p *MemoryProvider) TotalCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, c := range p.calls {
		n += c
	}
	return n
}

// HasCustomer reports whether the customer exists and was not deleted.
func (p *MemoryProvider) HasCustomer(customerID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.customers[customerID]
}

// AddSubscription seeds a subscription.
func (p *MemoryProvider) AddSubscription(s Subscription) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.customers[s.CustomerID] = true
	p.subscriptions[s.ID] = &s
}

func (p *MemoryProvider) Name() string        { return "memory" }
func (p *MemoryProvider) Environment() string { return p.environment }

func (p *MemoryProvider) SignatureHeader() string { return "X-Webhook-Signature" }

func (p *MemoryProvider) CreateCustomer(_ context.Context, _ CustomerParams) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.call("CreateCustomer"); err != nil {
		return "", err
	}
	p.seq++
	id := fmt.Sprintf("cus_%s_%d", p.environment, p.seq)
	p.customers[id] = true
	return id, nil
}

func (p *MemoryProvider) CustomerExists(_ context.Context, customerID string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.call("CustomerExists"); err != nil {
		return false, err
	}
	return p.customers[customerID], nil
}

func (p *MemoryProvider) DeleteCustomer(_ context.Context, customerID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.call("DeleteCustomer"); err != nil {
		return err
	}
	delete(p.customers, customerID)
	return nil
}

func (p *MemoryProvider) CreateCheckoutSession(_ context.Context, params SessionParams) (*Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.call("CreateCheckoutSession"); err != nil {
		return nil, err
	}
	if !p.customers[params.CustomerID] {
		return nil, errors.Join(fault.ErrProviderStateMismatch, ErrCustomerNotFound)
	}
	p.seq++
	id := fmt.Sprintf("cs_%s_%d", p.environment, p.seq)
	return &Session{ID: id, URL: "https://checkout.invalid/" + id}, nil
}

func (p *MemoryProvider) GetSubscription(_ context.Context, subscriptionID string) (*Subscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.call("GetSubscription"); err != nil {
		return nil, err
	}
	s, ok := p.subscriptions[subscriptionID]
	if !ok {
		return nil, errors.Join(fault.ErrNotFound, ErrSubscriptionMissing)
	}
	out := *s
	return &out, nil
}

func (p *MemoryProvider) ListActiveSubscriptions(_ context.Context, customerID string) ([]Subscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.call("ListActiveSubscriptions"); err != nil {
		return nil, err
	}
	var out []Subscription
	for _, s := range p.subscriptions {
		if s.CustomerID == customerID && !s.Status.IsCanceled() {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (p *MemoryProvider) CancelSubscription(_ context.Context, subscriptionID string) (*Subscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.call("CancelSubscription"); err != nil {
		return nil, err
	}
	s, ok := p.subscriptions[subscriptionID]
	if !ok {
		return nil, errors.Join(fault.ErrNotFound, ErrSubscriptionMissing)
	}
	s.Status = StatusCanceled
	s.CancelAtPeriodEnd = false
	out := *s
	return &out, nil
}

func (p *MemoryProvider) ScheduleCancellation(_ context.Context, subscriptionID string) (*Subscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.call("ScheduleCancellation"); err != nil {
		return nil, err
	}
	s, ok := p.subscriptions[subscriptionID]
	if !ok {
		return nil, errors.Join(fault.ErrNotFound, ErrSubscriptionMissing)
	}
	s.CancelAtPeriodEnd = true
	out := *s
	return &out, nil
}

func (p *MemoryProvider) ParseWebhook(_ context.Context, payload []byte, signature string) (*CardEvent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.call("ParseWebhook"); err != nil {
		return nil, err
	}
	if p.webhookSecret == "" || signature != p.webhookSecret {
		return nil, errors.Join(fault.ErrAuthentication, ErrInvalidSignature)
	}
	var ev CardEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, errors.Join(fault.ErrValidation, ErrInvalidPayload, err)
	}
	if ev.ID == "" || ev.Type == "" {
		return nil, errors.Join(fault.ErrValidation, ErrInvalidPayload)
	}
	if ev.Created.IsZero() {
		ev.Created = time.Now().UTC()
	}
	if ev.ProviderType == "" {
		ev.ProviderType = ev.Type
	}
	return &ev, nil
}

// call must be called with mu held.
func (p *MemoryProvider) call(method string) error {
	p.calls[method]++
	return p.failures[method]
}

var _ Provider = (*MemoryProvider)(nil)
