package session

import (
	"sync"
	"time"
)

// MemoryStore keeps results in process memory.
type MemoryStore struct {
	mutex   sync.Mutex
	results map[string]*Result
	ttl     time.Duration
	now     func() time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		results: make(map[string]*Result),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (s *MemoryStore) Get(sessionID string) (*Result, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	result, ok := s.results[sessionID]
	if !ok {
		return nil, nil
	}
	if expired(result.CreatedAt, s.ttl, s.now()) {
		delete(s.results, sessionID)
		return nil, nil
	}
	copied := *result
	return &copied, nil
}

func (s *MemoryStore) Put(sessionID string, result *Result) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	copied := *result
	if copied.CreatedAt.IsZero() {
		copied.CreatedAt = s.now()
	}
	s.results[sessionID] = &copied
	s.purge()
	return nil
}

func (s *MemoryStore) Clear(sessionID string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	delete(s.results, sessionID)
	return nil
}

func (s *MemoryStore) Ping() error {
	return nil
}

func (s *MemoryStore) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.results = make(map[string]*Result)
	return nil
}

// purge drops expired results; callers hold the mutex.
func (s *MemoryStore) purge() {
	now := s.now()
	for id, result := range s.results {
		if expired(result.CreatedAt, s.ttl, now) {
			delete(s.results, id)
		}
	}
}
