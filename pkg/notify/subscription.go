package notify

import "sync"

type subscription struct {
	ch      chan Change
	once    sync.Once
	mu      sync.RWMutex
	closed  bool
	onClose func()
}

func newSubscription(bufferSize int, onClose func()) *subscription {
	return &subscription{
		ch:      make(chan Change, max(bufferSize, 1)),
		onClose: onClose,
	}
}

func (s *subscription) C() <-chan Change { return s.ch }

func (s *subscription) Close() error {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.ch)
		s.mu.Unlock()
		if s.onClose != nil {
			s.onClose()
		}
	})
	return nil
}

// send never blocks; a full buffer drops the change.
func (s *subscription) send(c Change) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return false
	}
	select {
	case s.ch <- c:
		return true
	default:
		return false
	}
}
