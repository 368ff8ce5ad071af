package entitlement

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps entitlements in memory. Safe for concurrent use.
type MemoryStore struct {
	mu      sync.Mutex
	records map[uuid.UUID]Entitlement
	now     func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[uuid.UUID]Entitlement),
		now:     time.Now,
	}
}

func (s *MemoryStore) Get(_ context.Context, userID uuid.UUID) (*Entitlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.records[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return &e, nil
}

func (s *MemoryStore) Mutate(_ context.Context, userID uuid.UUID, fn MutateFunc) (*Entitlement, error) {
	if userID == uuid.Nil {
		return nil, ErrMissingUserID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.records[userID]
	if !exists {
		current = New(userID)
	}

	next, err := fn(current, exists)
	if err != nil {
		return nil, err
	}
	if err := next.Validate(); err != nil {
		return nil, errors.Join(ErrFailedToPersist, err)
	}

	now := s.now().UTC()
	if !exists {
		next.CreatedAt = now
	}
	next.UpdatedAt = now
	next.PaymentMethod = normalize(next.PaymentMethod)
	s.records[userID] = next

	return &next, nil
}

func (s *MemoryStore) Delete(_ context.Context, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, userID)
	return nil
}

// Put stores e as is, bypassing validation. Intended for seeding broken
// records in tests.
func (s *MemoryStore) Put(e Entitlement) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[e.UserID] = e
}
