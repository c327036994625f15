package due

import (
	"context"
	"sort"
	"sync"
	"time"

	"fundpool/internal/contribution/models"
	id "fundpool/pkg/domain"
	"fundpool/pkg/platform/sentinel"
)

type cycleKey struct {
	fund  id.FundID
	user  id.UserID
	month id.Month
}

// MemoryStore is the in-memory due store for tests and single-process runs.
// The composite map key enforces (fund, user, month) uniqueness; Update
// compares versions under the lock.
type MemoryStore struct {
	mu      sync.RWMutex
	byID    map[id.DueID]*models.ContributionDue
	byCycle map[cycleKey]id.DueID
}

func NewMemory() *MemoryStore {
	return &MemoryStore{
		byID:    make(map[id.DueID]*models.ContributionDue),
		byCycle: make(map[cycleKey]id.DueID),
	}
}

func (s *MemoryStore) Create(_ context.Context, d *models.ContributionDue) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := cycleKey{fund: d.FundID, user: d.UserID, month: d.Month}
	if _, exists := s.byCycle[k]; exists {
		return sentinel.ErrAlreadyUsed
	}
	clone := *d
	s.byID[d.ID] = &clone
	s.byCycle[k] = d.ID
	return nil
}

func (s *MemoryStore) Get(_ context.Context, dueID id.DueID) (*models.ContributionDue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.byID[dueID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	clone := *d
	return &clone, nil
}

func (s *MemoryStore) Update(_ context.Context, d *models.ContributionDue, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.byID[d.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if current.Version != expectedVersion {
		return sentinel.ErrVersionMismatch
	}
	clone := *d
	s.byID[d.ID] = &clone
	return nil
}

func (s *MemoryStore) ListByFundAndMonth(_ context.Context, fundID id.FundID, month id.Month) ([]*models.ContributionDue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(func(d *models.ContributionDue) bool {
		return d.FundID == fundID && d.Month == month
	}, 0), nil
}

func (s *MemoryStore) ListPendingDueBefore(_ context.Context, cutoff time.Time, limit int) ([]*models.ContributionDue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(func(d *models.ContributionDue) bool {
		return d.Status == models.StatusPending && d.DueDate.Before(cutoff)
	}, limit), nil
}

func (s *MemoryStore) ListOpenByMonth(_ context.Context, month id.Month, limit int) ([]*models.ContributionDue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(func(d *models.ContributionDue) bool {
		return d.Month == month && d.Status.Payable()
	}, limit), nil
}

func (s *MemoryStore) collect(keep func(*models.ContributionDue) bool, limit int) []*models.ContributionDue {
	var out []*models.ContributionDue
	for _, d := range s.byID {
		if keep(d) {
			clone := *d
			out = append(out, &clone)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
