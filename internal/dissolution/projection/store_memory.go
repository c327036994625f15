package projection

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	id "fundpool/pkg/domain"
)

type memberKey struct {
	fund id.FundID
	user id.UserID
}

// MemoryStore is the in-memory projection store for tests and
// single-process runs.
type MemoryStore struct {
	mu            sync.RWMutex
	members       map[memberKey]Member
	loans         map[id.LoanID]Loan
	contributions map[id.DueID]Contribution
	// per-due applied payment events; a redelivered event is a no-op even
	// when two payments share one occurred-at timestamp
	contributionEvents map[id.DueID]map[uuid.UUID]struct{}
	// interest income entries keyed by event ID make pool accumulation
	// naturally idempotent under redelivery
	interest map[id.FundID]map[uuid.UUID]decimal.Decimal
}

func NewMemory() *MemoryStore {
	return &MemoryStore{
		members:            make(map[memberKey]Member),
		loans:              make(map[id.LoanID]Loan),
		contributions:      make(map[id.DueID]Contribution),
		contributionEvents: make(map[id.DueID]map[uuid.UUID]struct{}),
		interest:           make(map[id.FundID]map[uuid.UUID]decimal.Decimal),
	}
}

func (s *MemoryStore) ApplyMemberJoined(_ context.Context, fundID id.FundID, userID id.UserID, weight decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members[memberKey{fund: fundID, user: userID}] = Member{
		FundID: fundID,
		UserID: userID,
		Weight: weight,
		Active: true,
	}
	return nil
}

func (s *MemoryStore) ApplyMemberRemoved(_ context.Context, fundID id.FundID, userID id.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := memberKey{fund: fundID, user: userID}
	m, ok := s.members[k]
	if !ok {
		return nil
	}
	m.Active = false
	s.members[k] = m
	return nil
}

func (s *MemoryStore) ApplyLoanDisbursed(_ context.Context, loanID id.LoanID, fundID id.FundID, userID id.UserID, principal decimal.Decimal, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.loans[loanID]; exists {
		return nil
	}
	s.loans[loanID] = Loan{
		LoanID:               loanID,
		FundID:               fundID,
		UserID:               userID,
		OutstandingPrincipal: principal,
		UnpaidInterest:       decimal.Zero,
		LastEventAt:          at,
	}
	return nil
}

func (s *MemoryStore) ApplyRepayment(_ context.Context, eventID uuid.UUID, loanID id.LoanID, fundID id.FundID, outstandingPrincipal, unpaidInterest, interestPaid decimal.Decimal, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if l, ok := s.loans[loanID]; ok && !at.Before(l.LastEventAt) {
		l.OutstandingPrincipal = outstandingPrincipal
		l.UnpaidInterest = unpaidInterest
		l.LastEventAt = at
		s.loans[loanID] = l
	}

	if interestPaid.IsPositive() {
		entries, ok := s.interest[fundID]
		if !ok {
			entries = make(map[uuid.UUID]decimal.Decimal)
			s.interest[fundID] = entries
		}
		entries[eventID] = interestPaid
	}
	return nil
}

func (s *MemoryStore) ApplyLoanClosed(_ context.Context, loanID id.LoanID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.loans[loanID]
	if !ok {
		return nil
	}
	l.OutstandingPrincipal = decimal.Zero
	l.UnpaidInterest = decimal.Zero
	l.Closed = true
	l.LastEventAt = at
	s.loans[loanID] = l
	return nil
}

func (s *MemoryStore) ApplyContributionPaid(_ context.Context, eventID uuid.UUID, dueID id.DueID, fundID id.FundID, userID id.UserID, applied, remaining decimal.Decimal, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen, ok := s.contributionEvents[dueID]
	if !ok {
		seen = make(map[uuid.UUID]struct{})
		s.contributionEvents[dueID] = seen
	}
	if _, dup := seen[eventID]; dup {
		return nil
	}
	seen[eventID] = struct{}{}

	c, ok := s.contributions[dueID]
	if !ok {
		s.contributions[dueID] = Contribution{
			DueID:       dueID,
			FundID:      fundID,
			UserID:      userID,
			TotalPaid:   applied,
			Unpaid:      remaining,
			LastEventID: eventID,
			LastEventAt: at,
		}
		return nil
	}
	c.TotalPaid = c.TotalPaid.Add(applied)
	// Unpaid is an absolute value; only an event at or past the latest one
	// seen may overwrite it.
	if !at.Before(c.LastEventAt) {
		c.Unpaid = remaining
		c.LastEventID = eventID
		c.LastEventAt = at
	}
	s.contributions[dueID] = c
	return nil
}

func (s *MemoryStore) ActiveMembers(_ context.Context, fundID id.FundID) ([]Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Member
	for k, m := range s.members {
		if k.fund == fundID && m.Active {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UserID.String() < out[j].UserID.String()
	})
	return out, nil
}

func (s *MemoryStore) Loans(_ context.Context, fundID id.FundID) ([]Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Loan
	for _, l := range s.loans {
		if l.FundID == fundID {
			out = append(out, l)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LoanID.String() < out[j].LoanID.String()
	})
	return out, nil
}

func (s *MemoryStore) Contributions(_ context.Context, fundID id.FundID) ([]Contribution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Contribution
	for _, c := range s.contributions {
		if c.FundID == fundID {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DueID.String() < out[j].DueID.String()
	})
	return out, nil
}

func (s *MemoryStore) InterestPool(_ context.Context, fundID id.FundID) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := decimal.Zero
	for _, amount := range s.interest[fundID] {
		total = total.Add(amount)
	}
	return total, nil
}
