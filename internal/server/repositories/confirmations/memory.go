package confirmations

import (
	"context"
	"sync"
	"time"

	"github.com/QKhanh04/innerg-api/internal/timex"
)

type memoryRecord struct {
	digest  string
	expires time.Time
}

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu      sync.Mutex
	now     timex.Clock
	records map[string]memoryRecord
}

func NewMemoryStore(now timex.Clock) *MemoryStore {
	if now == nil {
		now = timex.SystemClock
	}
	return &MemoryStore{now: now, records: make(map[string]memoryRecord)}
}

func memoryKey(userID, purpose string) string {
	return purpose + "\x00" + userID
}

func (s *MemoryStore) Set(_ context.Context, userID, purpose, digest string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[memoryKey(userID, purpose)] = memoryRecord{digest: digest, expires: s.now().Add(ttl)}
	return nil
}

func (s *MemoryStore) Consume(_ context.Context, userID, purpose, digest string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := memoryKey(userID, purpose)
	rec, ok := s.records[k]
	if !ok || rec.digest != digest || !s.now().Before(rec.expires) {
		return false, nil
	}
	delete(s.records, k)
	return true, nil
}

func (s *MemoryStore) Invalidate(_ context.Context, userID, purpose string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, memoryKey(userID, purpose))
	return nil
}
