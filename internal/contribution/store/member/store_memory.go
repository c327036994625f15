package member

import (
	"context"
	"sort"
	"sync"

	"fundpool/internal/contribution/models"
	id "fundpool/pkg/domain"
)

type rosterKey struct {
	fund id.FundID
	user id.UserID
}

// MemoryStore is the in-memory roster projection.
type MemoryStore struct {
	mu      sync.RWMutex
	members map[rosterKey]models.Member
}

func NewMemory() *MemoryStore {
	return &MemoryStore{members: make(map[rosterKey]models.Member)}
}

func (s *MemoryStore) Upsert(_ context.Context, m models.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members[rosterKey{fund: m.FundID, user: m.UserID}] = m
	return nil
}

func (s *MemoryStore) Deactivate(_ context.Context, fundID id.FundID, userID id.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := rosterKey{fund: fundID, user: userID}
	m, ok := s.members[k]
	if !ok {
		return nil
	}
	m.Active = false
	s.members[k] = m
	return nil
}

func (s *MemoryStore) ListActive(_ context.Context, fundID id.FundID) ([]models.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Member
	for k, m := range s.members {
		if k.fund == fundID && m.Active {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].JoinedAt.Before(out[j].JoinedAt)
	})
	return out, nil
}
