package store

import (
	"context"
	"sort"
	"sync"

	"fundpool/internal/ledger/models"
	id "fundpool/pkg/domain"
	"fundpool/pkg/platform/sentinel"
)

type ledgerKey struct {
	fund id.FundID
	key  string
}

// MemoryStore is the in-memory ledger for tests and single-process runs.
// The composite map key enforces (fund, idempotency key) uniqueness.
type MemoryStore struct {
	mu     sync.RWMutex
	byKey  map[ledgerKey]*models.Transaction
	byFund map[id.FundID][]*models.Transaction
}

func NewMemory() *MemoryStore {
	return &MemoryStore{
		byKey:  make(map[ledgerKey]*models.Transaction),
		byFund: make(map[id.FundID][]*models.Transaction),
	}
}

func (s *MemoryStore) Append(_ context.Context, tx *models.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := ledgerKey{fund: tx.FundID, key: tx.IdempotencyKey}
	if _, exists := s.byKey[k]; exists {
		return sentinel.ErrAlreadyUsed
	}
	clone := *tx
	s.byKey[k] = &clone
	s.byFund[tx.FundID] = append(s.byFund[tx.FundID], &clone)
	return nil
}

func (s *MemoryStore) FindByIdempotencyKey(_ context.Context, fundID id.FundID, key string) (*models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.byKey[ledgerKey{fund: fundID, key: key}]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	clone := *tx
	return &clone, nil
}

func (s *MemoryStore) ListByFund(_ context.Context, fundID id.FundID) ([]*models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneSorted(s.byFund[fundID], func(*models.Transaction) bool { return true }), nil
}

func (s *MemoryStore) ListByFundAndUser(_ context.Context, fundID id.FundID, userID id.UserID) ([]*models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneSorted(s.byFund[fundID], func(tx *models.Transaction) bool { return tx.UserID == userID }), nil
}

func cloneSorted(txs []*models.Transaction, keep func(*models.Transaction) bool) []*models.Transaction {
	out := make([]*models.Transaction, 0, len(txs))
	for _, tx := range txs {
		if keep(tx) {
			clone := *tx
			out = append(out, &clone)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
