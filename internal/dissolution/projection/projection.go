// Package projection maintains the dissolution domain's local read models,
// folded from other domains' integration events. The settlement engine reads
// these instead of calling the owning domains synchronously, so they may lag
// the true state; recalculation before confirmation exists precisely for
// that lag.
package projection

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	id "fundpool/pkg/domain"
)

// Member is one member's settlement weight.
type Member struct {
	FundID id.FundID       `json:"fund_id"`
	UserID id.UserID       `json:"user_id"`
	Weight decimal.Decimal `json:"weight"`
	Active bool            `json:"active"`
}

// Loan is one loan's outstanding position.
type Loan struct {
	LoanID               id.LoanID       `json:"loan_id"`
	FundID               id.FundID       `json:"fund_id"`
	UserID               id.UserID       `json:"user_id"`
	OutstandingPrincipal decimal.Decimal `json:"outstanding_principal"`
	UnpaidInterest       decimal.Decimal `json:"unpaid_interest"`
	Closed               bool            `json:"closed"`
	LastEventAt          time.Time       `json:"last_event_at"`
}

// Contribution is one due's paid/unpaid position.
type Contribution struct {
	DueID       id.DueID        `json:"due_id"`
	FundID      id.FundID       `json:"fund_id"`
	UserID      id.UserID       `json:"user_id"`
	TotalPaid   decimal.Decimal `json:"total_paid"`
	Unpaid      decimal.Decimal `json:"unpaid"`
	LastEventID uuid.UUID       `json:"last_event_id"`
	LastEventAt time.Time       `json:"last_event_at"`
}

// MemberPosition is the per-member aggregate the calculator consumes.
type MemberPosition struct {
	UserID               id.UserID
	Weight               decimal.Decimal
	Contributions        decimal.Decimal
	UnpaidDues           decimal.Decimal
	OutstandingPrincipal decimal.Decimal
	UnpaidInterest       decimal.Decimal
}

// Store folds integration events into projections and serves snapshot reads.
//
// Every Apply method is an idempotent upsert keyed by the event's natural
// identity: duplicate delivery converges to the same state, and stale events
// (older than what the row already reflects) are skipped. Apply methods
// return errors only for infrastructure faults; business validation happened
// in the owning domain.
type Store interface {
	ApplyMemberJoined(ctx context.Context, fundID id.FundID, userID id.UserID, weight decimal.Decimal) error
	ApplyMemberRemoved(ctx context.Context, fundID id.FundID, userID id.UserID) error

	// ApplyLoanDisbursed creates the loan projection; a duplicate is a no-op.
	ApplyLoanDisbursed(ctx context.Context, loanID id.LoanID, fundID id.FundID, userID id.UserID, principal decimal.Decimal, at time.Time) error

	// ApplyRepayment sets the loan's absolute outstanding position and, when
	// the event has not been seen before, adds the interest portion to the
	// fund's interest-income pool.
	ApplyRepayment(ctx context.Context, eventID uuid.UUID, loanID id.LoanID, fundID id.FundID, outstandingPrincipal, unpaidInterest, interestPaid decimal.Decimal, at time.Time) error

	ApplyLoanClosed(ctx context.Context, loanID id.LoanID, at time.Time) error

	// ApplyContributionPaid folds one payment into the due's projection.
	ApplyContributionPaid(ctx context.Context, eventID uuid.UUID, dueID id.DueID, fundID id.FundID, userID id.UserID, applied, remaining decimal.Decimal, at time.Time) error

	// ActiveMembers returns the members included in a settlement.
	ActiveMembers(ctx context.Context, fundID id.FundID) ([]Member, error)

	// Loans returns the fund's loan projections, open and closed.
	Loans(ctx context.Context, fundID id.FundID) ([]Loan, error)

	// Contributions returns the fund's due projections.
	Contributions(ctx context.Context, fundID id.FundID) ([]Contribution, error)

	// InterestPool returns the fund's accumulated interest income.
	InterestPool(ctx context.Context, fundID id.FundID) (decimal.Decimal, error)
}

// Positions collapses a fund's projections into per-member positions for the
// settlement calculator. Only active members appear; amounts from inactive
// members' loans and dues stay attached to those members and are excluded
// with them.
func Positions(ctx context.Context, store Store, fundID id.FundID) ([]MemberPosition, error) {
	members, err := store.ActiveMembers(ctx, fundID)
	if err != nil {
		return nil, err
	}
	loans, err := store.Loans(ctx, fundID)
	if err != nil {
		return nil, err
	}
	contributions, err := store.Contributions(ctx, fundID)
	if err != nil {
		return nil, err
	}

	byUser := make(map[id.UserID]*MemberPosition, len(members))
	ordered := make([]id.UserID, 0, len(members))
	for _, m := range members {
		byUser[m.UserID] = &MemberPosition{
			UserID:               m.UserID,
			Weight:               m.Weight,
			Contributions:        decimal.Zero,
			UnpaidDues:           decimal.Zero,
			OutstandingPrincipal: decimal.Zero,
			UnpaidInterest:       decimal.Zero,
		}
		ordered = append(ordered, m.UserID)
	}
	for _, l := range loans {
		position, ok := byUser[l.UserID]
		if !ok || l.Closed {
			continue
		}
		position.OutstandingPrincipal = position.OutstandingPrincipal.Add(l.OutstandingPrincipal)
		position.UnpaidInterest = position.UnpaidInterest.Add(l.UnpaidInterest)
	}
	for _, c := range contributions {
		position, ok := byUser[c.UserID]
		if !ok {
			continue
		}
		position.Contributions = position.Contributions.Add(c.TotalPaid)
		position.UnpaidDues = position.UnpaidDues.Add(c.Unpaid)
	}

	out := make([]MemberPosition, 0, len(ordered))
	for _, userID := range ordered {
		out = append(out, *byUser[userID])
	}
	return out, nil
}
