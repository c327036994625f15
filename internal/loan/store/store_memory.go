package store

import (
	"context"
	"sort"
	"sync"

	"fundpool/internal/loan/models"
	id "fundpool/pkg/domain"
	"fundpool/pkg/platform/sentinel"
)

// MemoryStore is the in-memory loan store for tests and single-process runs.
type MemoryStore struct {
	mu    sync.RWMutex
	loans map[id.LoanID]*models.Loan
}

func NewMemory() *MemoryStore {
	return &MemoryStore{loans: make(map[id.LoanID]*models.Loan)}
}

func (s *MemoryStore) Create(_ context.Context, l *models.Loan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.loans[l.ID]; exists {
		return sentinel.ErrAlreadyUsed
	}
	clone := *l
	s.loans[l.ID] = &clone
	return nil
}

func (s *MemoryStore) Get(_ context.Context, loanID id.LoanID) (*models.Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.loans[loanID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	clone := *l
	return &clone, nil
}

func (s *MemoryStore) Update(_ context.Context, l *models.Loan, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.loans[l.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if current.Version != expectedVersion {
		return sentinel.ErrVersionMismatch
	}
	clone := *l
	s.loans[l.ID] = &clone
	return nil
}

func (s *MemoryStore) ListByFund(_ context.Context, fundID id.FundID) ([]*models.Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := s.collect(func(l *models.Loan) bool { return l.FundID == fundID })
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) ListActive(_ context.Context, after id.LoanID, limit int) ([]*models.Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cursor := after.String()
	out := s.collect(func(l *models.Loan) bool {
		return l.Status == models.StatusActive && (after.IsNil() || l.ID.String() > cursor)
	})
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ID.String() < out[j].ID.String()
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) collect(keep func(*models.Loan) bool) []*models.Loan {
	var out []*models.Loan
	for _, l := range s.loans {
		if keep(l) {
			clone := *l
			out = append(out, &clone)
		}
	}
	return out
}
