package whatsapp

import (
	"sync"
	"time"
)

// seenMessages remembers recently handled inbound message ids so that webhook
// redeliveries from Meta are answered only once.
type seenMessages struct {
	ttl   time.Duration
	now   func() time.Time
	mu    sync.Mutex
	items map[string]time.Time
}

func newSeenMessages(ttl time.Duration) *seenMessages {
	return &seenMessages{
		ttl:   ttl,
		now:   time.Now,
		items: make(map[string]time.Time),
	}
}

// markNew records id and reports whether it had not been seen within the ttl.
// Empty ids are always treated as new.
func (s *seenMessages) markNew(id string) bool {
	if id == "" {
		return true
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for key, at := range s.items {
		if now.Sub(at) > s.ttl {
			delete(s.items, key)
		}
	}

	if _, exists := s.items[id]; exists {
		return false
	}
	s.items[id] = now
	return true
}

// forget removes id so a failed message can be retried on redelivery.
func (s *seenMessages) forget(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, id)
}
