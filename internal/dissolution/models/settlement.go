// Package models defines the settlement aggregate and its line items.
package models

import (
	"time"

	"github.com/shopspring/decimal"

	id "fundpool/pkg/domain"
	dErrors "fundpool/pkg/domain-errors"
)

// Status is the settlement lifecycle state.
type Status string

const (
	// StatusCalculating: initiated, line items not yet (re)computed.
	StatusCalculating Status = "calculating"
	// StatusReviewed: line items computed and awaiting confirmation.
	// Recalculation returns here after discarding the previous items.
	StatusReviewed Status = "reviewed"
	// StatusConfirmed: finalized. Terminal and immutable.
	StatusConfirmed Status = "confirmed"
)

// Settlement is the dissolution of one fund. At most one exists per fund.
type Settlement struct {
	ID                 id.SettlementID `json:"id"`
	FundID             id.FundID       `json:"fund_id"`
	Status             Status          `json:"status"`
	TotalInterestPool  decimal.Decimal `json:"total_interest_pool"`
	TotalContributions decimal.Decimal `json:"total_contributions"`
	TotalWeight        decimal.Decimal `json:"total_weight"`
	InitiatedBy        id.UserID       `json:"initiated_by"`
	ConfirmedBy        *id.UserID      `json:"confirmed_by,omitempty"`
	SettlementDate     *time.Time      `json:"settlement_date,omitempty"`
	Version            int64           `json:"version"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// LineItem is one member's side of the settlement.
//
// GrossPayout = Contributions + InterestShare.
// NetPayout = GrossPayout - OutstandingPrincipal - UnpaidInterest - UnpaidDues.
// A negative NetPayout blocks confirmation.
type LineItem struct {
	SettlementID         id.SettlementID `json:"settlement_id"`
	UserID               id.UserID       `json:"user_id"`
	Weight               decimal.Decimal `json:"weight"`
	Contributions        decimal.Decimal `json:"contributions"`
	InterestShare        decimal.Decimal `json:"interest_share"`
	GrossPayout          decimal.Decimal `json:"gross_payout"`
	OutstandingPrincipal decimal.Decimal `json:"outstanding_principal"`
	UnpaidInterest       decimal.Decimal `json:"unpaid_interest"`
	UnpaidDues           decimal.Decimal `json:"unpaid_dues"`
	NetPayout            decimal.Decimal `json:"net_payout"`
}

// NewSettlement starts a settlement in Calculating.
func NewSettlement(fundID id.FundID, initiatedBy id.UserID, now time.Time) (*Settlement, error) {
	if fundID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "fund_id is required")
	}
	if initiatedBy.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "initiating user is required")
	}
	return &Settlement{
		ID:                 id.NewSettlementID(),
		FundID:             fundID,
		Status:             StatusCalculating,
		TotalInterestPool:  decimal.Zero,
		TotalContributions: decimal.Zero,
		TotalWeight:        decimal.Zero,
		InitiatedBy:        initiatedBy,
		Version:            1,
		CreatedAt:          now,
		UpdatedAt:          now,
	}, nil
}

// CanRecalculate checks whether line items may be (re)computed.
func (s *Settlement) CanRecalculate() error {
	if s.Status == StatusConfirmed {
		return dErrors.New(dErrors.CodeConflict, "settlement is confirmed and immutable")
	}
	return nil
}

// ApplyCalculation records the computed totals and moves to Reviewed.
func (s *Settlement) ApplyCalculation(interestPool, contributions, weight decimal.Decimal, now time.Time) {
	s.TotalInterestPool = interestPool
	s.TotalContributions = contributions
	s.TotalWeight = weight
	s.Status = StatusReviewed
	s.Version++
	s.UpdatedAt = now
}

// CanConfirm checks the lifecycle guard for confirmation. The fairness check
// against line items is the service's job; this guard covers only state.
func (s *Settlement) CanConfirm() error {
	switch s.Status {
	case StatusConfirmed:
		return dErrors.New(dErrors.CodeConflict, "settlement is already confirmed")
	case StatusCalculating:
		return dErrors.New(dErrors.CodeValidation, "settlement must be reviewed before confirmation")
	}
	return nil
}

// ApplyConfirm finalizes the settlement. Immutable afterwards.
func (s *Settlement) ApplyConfirm(confirmedBy id.UserID, now time.Time) {
	s.Status = StatusConfirmed
	s.ConfirmedBy = &confirmedBy
	settledAt := now
	s.SettlementDate = &settledAt
	s.Version++
	s.UpdatedAt = now
}
