package audit

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"
)

// MemoryStorage keeps entries in memory. Safe for concurrent use.
type MemoryStorage struct {
	mu      sync.RWMutex
	entries []Entry
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

func (s *MemoryStorage) Store(_ context.Context, entries ...Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entries...)
	return nil
}

// ForUser returns a copy of the entries recorded for userID.
func (s *MemoryStorage) ForUser(userID uuid.UUID) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Entry
	for _, e := range s.entries {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out
}

// DeleteUser removes all entries of userID and returns how many were removed.
func (s *MemoryStorage) DeleteUser(_ context.Context, userID uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := len(s.entries)
	s.entries = slices.DeleteFunc(s.entries, func(e Entry) bool { return e.UserID == userID })
	return int64(before - len(s.entries)), nil
}
