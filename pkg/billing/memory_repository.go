package billing

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository is an in-memory Repository. Safe for concurrent use.
type MemoryRepository struct {
	mu       sync.Mutex
	mappings []CustomerMapping
	records  map[string]SubscriptionRecord
	orders   []Order
	now      func() time.Time

	// FailInsertMapping makes the next InsertMapping/ReplaceMapping calls fail.
	FailInsertMapping error
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		records: make(map[string]SubscriptionRecord),
		now:     time.Now,
	}
}

func (r *MemoryRepository) ActiveMapping(_ context.Context, userID uuid.UUID) (*CustomerMapping, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.active(userID); ok {
		return &m, nil
	}
	return nil, ErrMappingNotFound
}

func (r *MemoryRepository) MappingByCustomer(_ context.Context, customerID string) (*CustomerMapping, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Prefer the active mapping, fall back to the newest deleted one.
	var found *CustomerMapping
	for i := len(r.mappings) - 1; i >= 0; i-- {
		m := r.mappings[i]
		if m.CustomerID != customerID {
			continue
		}
		if m.DeletedAt == nil {
			return &m, nil
		}
		if found == nil {
			found = &m
		}
	}
	if found == nil {
		return nil, ErrMappingNotFound
	}
	return found, nil
}

func (r *MemoryRepository) MappingsForUser(_ context.Context, userID uuid.UUID) ([]CustomerMapping, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []CustomerMapping
	for _, m := range r.mappings {
		if m.UserID == userID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *MemoryRepository) InsertMapping(_ context.Context, userID uuid.UUID, customerID, environment string) (*CustomerMapping, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.FailInsertMapping != nil {
		return nil, false, r.FailInsertMapping
	}
	if m, ok := r.active(userID); ok {
		return &m, false, nil
	}
	m := CustomerMapping{
		ID:          uuid.New(),
		UserID:      userID,
		CustomerID:  customerID,
		Environment: environment,
		CreatedAt:   r.now().UTC(),
	}
	r.mappings = append(r.mappings, m)
	return &m, true, nil
}

func (r *MemoryRepository) ReplaceMapping(_ context.Context, userID uuid.UUID, oldCustomerID, newCustomerID, environment string) (*CustomerMapping, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.FailInsertMapping != nil {
		return nil, r.FailInsertMapping
	}
	now := r.now().UTC()
	for i := range r.mappings {
		m := &r.mappings[i]
		if m.UserID == userID && m.DeletedAt == nil && m.CustomerID == oldCustomerID {
			m.DeletedAt = &now
		}
	}
	if m, ok := r.active(userID); ok {
		// Someone else already replaced it.
		return &m, nil
	}
	m := CustomerMapping{
		ID:          uuid.New(),
		UserID:      userID,
		CustomerID:  newCustomerID,
		Environment: environment,
		CreatedAt:   now,
	}
	r.mappings = append(r.mappings, m)
	return &m, nil
}

func (r *MemoryRepository) DeleteMappings(_ context.Context, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mappings = slices.DeleteFunc(r.mappings, func(m CustomerMapping) bool { return m.UserID == userID })
	return nil
}

func (r *MemoryRepository) SubscriptionRecord(_ context.Context, customerID string) (*SubscriptionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[customerID]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return &rec, nil
}

func (r *MemoryRepository) UpsertSubscriptionRecord(_ context.Context, rec SubscriptionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec.UpdatedAt = r.now().UTC()
	r.records[rec.CustomerID] = rec
	return nil
}

func (r *MemoryRepository) DeleteSubscriptionRecord(_ context.Context, customerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.records, customerID)
	return nil
}

func (r *MemoryRepository) RecordOrder(_ context.Context, order Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.orders {
		if o.SessionID == order.SessionID {
			return nil
		}
	}
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	order.CreatedAt = r.now().UTC()
	r.orders = append(r.orders, order)
	return nil
}

func (r *MemoryRepository) DeleteOrders(_ context.Context, customerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders = slices.DeleteFunc(r.orders, func(o Order) bool { return o.CustomerID == customerID })
	return nil
}

// Orders returns the orders of customerID.
func (r *MemoryRepository) Orders(customerID string) []Order {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Order
	for _, o := range r.orders {
		if o.CustomerID == customerID {
			out = append(out, o)
		}
	}
	return out
}

func (r *MemoryRepository) active(userID uuid.UUID) (CustomerMapping, bool) {
	for _, m := range r.mappings {
		if m.UserID == userID && m.DeletedAt == nil {
			return m, true
		}
	}
	return CustomerMapping{}, false
}
