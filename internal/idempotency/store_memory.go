package idempotency

import (
	"context"
	"sync"
	"time"

	id "fundpool/pkg/domain"
	"fundpool/pkg/platform/sentinel"
)

type recordKey struct {
	fund     id.FundID
	key      string
	endpoint string
}

// MemoryStore keeps idempotency records in memory. Expiry is checked on read
// so tests can inject time without a background reaper.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[recordKey]Record
	now     func() time.Time
}

func NewMemory() *MemoryStore {
	return &MemoryStore{
		records: make(map[recordKey]Record),
		now:     time.Now,
	}
}

// WithClock overrides the expiry clock; test helper.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

func (s *MemoryStore) Get(_ context.Context, fundID id.FundID, key, endpoint string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[recordKey{fund: fundID, key: key, endpoint: endpoint}]
	if !ok || s.now().After(record.ExpiresAt) {
		return nil, sentinel.ErrNotFound
	}
	clone := record
	clone.Body = append([]byte(nil), record.Body...)
	return &clone, nil
}

func (s *MemoryStore) Put(_ context.Context, record Record, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := recordKey{fund: record.FundID, key: record.Key, endpoint: record.Endpoint}
	if existing, ok := s.records[k]; ok && s.now().Before(existing.ExpiresAt) {
		return sentinel.ErrAlreadyUsed
	}
	s.records[k] = record
	return nil
}
