package notify

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryHub is an in-process Hub. Safe for concurrent use.
type MemoryHub struct {
	mu         sync.RWMutex
	topics     map[uuid.UUID]map[*subscription]struct{}
	bufferSize int
	closed     bool
}

// NewMemoryHub creates a hub whose subscriptions buffer bufferSize changes.
func NewMemoryHub(bufferSize int) *MemoryHub {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &MemoryHub{
		topics:     make(map[uuid.UUID]map[*subscription]struct{}),
		bufferSize: bufferSize,
	}
}

// Publish delivers change to every current subscriber of change.UserID.
func (h *MemoryHub) Publish(_ context.Context, change Change) error {
	if change.UserID == uuid.Nil {
		return ErrInvalidUserID
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return ErrHubClosed
	}
	for sub := range h.topics[change.UserID] {
		sub.send(change)
	}
	return nil
}

// Subscribe registers a subscription for userID until ctx ends or Close is called.
func (h *MemoryHub) Subscribe(ctx context.Context, userID uuid.UUID) (Subscription, error) {
	if userID == uuid.Nil {
		return nil, ErrInvalidUserID
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrHubClosed
	}

	var sub *subscription
	sub = newSubscription(h.bufferSize, func() { h.remove(userID, sub) })
	if h.topics[userID] == nil {
		h.topics[userID] = make(map[*subscription]struct{})
	}
	h.topics[userID][sub] = struct{}{}

	go func() {
		<-ctx.Done()
		_ = sub.Close()
	}()

	return sub, nil
}

// Subscribers returns the number of live subscriptions for userID.
func (h *MemoryHub) Subscribers(userID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[userID])
}

// Close ends every subscription. Further calls return ErrHubClosed.
func (h *MemoryHub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	var subs []*subscription
	for _, topic := range h.topics {
		for sub := range topic {
			subs = append(subs, sub)
		}
	}
	clear(h.topics)
	h.mu.Unlock()

	for _, sub := range subs {
		_ = sub.Close()
	}
	return nil
}

func (h *MemoryHub) remove(userID uuid.UUID, sub *subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	topic := h.topics[userID]
	delete(topic, sub)
	if len(topic) == 0 {
		delete(h.topics, userID)
	}
}
