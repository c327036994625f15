package store

import (
	"context"
	"sync"

	"fundpool/internal/dissolution/models"
	id "fundpool/pkg/domain"
	"fundpool/pkg/platform/sentinel"
)

// MemoryStore is the in-memory settlement store for tests and
// single-process runs.
type MemoryStore struct {
	mu     sync.RWMutex
	byFund map[id.FundID]*models.Settlement
	items  map[id.SettlementID][]models.LineItem
}

func NewMemory() *MemoryStore {
	return &MemoryStore{
		byFund: make(map[id.FundID]*models.Settlement),
		items:  make(map[id.SettlementID][]models.LineItem),
	}
}

func (s *MemoryStore) Create(_ context.Context, settlement *models.Settlement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byFund[settlement.FundID]; exists {
		return sentinel.ErrAlreadyUsed
	}
	clone := *settlement
	s.byFund[settlement.FundID] = &clone
	return nil
}

func (s *MemoryStore) GetByFund(_ context.Context, fundID id.FundID) (*models.Settlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	settlement, ok := s.byFund[fundID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	clone := *settlement
	return &clone, nil
}

func (s *MemoryStore) Update(_ context.Context, settlement *models.Settlement, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.byFund[settlement.FundID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if current.Version != expectedVersion {
		return sentinel.ErrVersionMismatch
	}
	clone := *settlement
	s.byFund[settlement.FundID] = &clone
	return nil
}

func (s *MemoryStore) ReplaceLineItems(_ context.Context, settlementID id.SettlementID, items []models.LineItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[settlementID] = append([]models.LineItem(nil), items...)
	return nil
}

func (s *MemoryStore) ListLineItems(_ context.Context, settlementID id.SettlementID) ([]models.LineItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.LineItem(nil), s.items[settlementID]...), nil
}
