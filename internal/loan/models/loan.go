// Package models defines the loan aggregate.
package models

import (
	"time"

	"github.com/shopspring/decimal"

	id "fundpool/pkg/domain"
	dErrors "fundpool/pkg/domain-errors"
	"fundpool/pkg/money"
)

// Status is the lifecycle state of a loan.
type Status string

const (
	StatusActive Status = "active"
	StatusClosed Status = "closed"
)

// Loan is money lent from the fund pool to one member.
//
// Invariants:
//   - OutstandingPrincipal never exceeds Principal and never goes negative
//   - UnpaidInterest accrues each cycle and is paid before principal
//   - A Closed loan has zero outstanding principal and zero unpaid interest
//   - Version increments on every mutation; writers compare-and-swap on it
type Loan struct {
	ID                   id.LoanID       `json:"id"`
	FundID               id.FundID       `json:"fund_id"`
	UserID               id.UserID       `json:"user_id"`
	Principal            decimal.Decimal `json:"principal"`
	OutstandingPrincipal decimal.Decimal `json:"outstanding_principal"`
	MonthlyRate          decimal.Decimal `json:"monthly_rate"`
	UnpaidInterest       decimal.Decimal `json:"unpaid_interest"`
	MinimumPrincipal     decimal.Decimal `json:"minimum_principal"`
	ScheduledInstallment decimal.Decimal `json:"scheduled_installment"`
	Status               Status          `json:"status"`
	DisbursedAt          time.Time       `json:"disbursed_at"`
	ClosedAt             *time.Time      `json:"closed_at,omitempty"`
	Version              int64           `json:"version"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

// NewLoan constructs an active loan at disbursement.
func NewLoan(fundID id.FundID, userID id.UserID, principal, monthlyRate,
	minimumPrincipal, scheduledInstallment decimal.Decimal, now time.Time) (*Loan, error) {

	if fundID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "fund_id is required")
	}
	if userID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "user_id is required")
	}
	if !money.ValidAmount(principal) || principal.IsZero() {
		return nil, dErrors.New(dErrors.CodeValidation, "principal must be positive with at most 2 decimals")
	}
	if !money.ValidRate(monthlyRate) {
		return nil, dErrors.New(dErrors.CodeValidation, "monthly rate must be in (0, 1] with at most 6 decimals")
	}
	if !money.ValidAmount(minimumPrincipal) {
		return nil, dErrors.New(dErrors.CodeValidation, "minimum principal must be non-negative with at most 2 decimals")
	}
	if !money.ValidAmount(scheduledInstallment) || scheduledInstallment.IsZero() {
		return nil, dErrors.New(dErrors.CodeValidation, "scheduled installment must be positive with at most 2 decimals")
	}
	return &Loan{
		ID:                   id.NewLoanID(),
		FundID:               fundID,
		UserID:               userID,
		Principal:            principal,
		OutstandingPrincipal: principal,
		MonthlyRate:          monthlyRate,
		UnpaidInterest:       decimal.Zero,
		MinimumPrincipal:     minimumPrincipal,
		ScheduledInstallment: scheduledInstallment,
		Status:               StatusActive,
		DisbursedAt:          now,
		Version:              1,
		CreatedAt:            now,
		UpdatedAt:            now,
	}, nil
}

// CanReceiveRepayment checks the lifecycle guard for repayment application.
func (l *Loan) CanReceiveRepayment() error {
	if l.Status == StatusClosed {
		return dErrors.New(dErrors.CodeInvalidState, "loan is closed")
	}
	return nil
}

// AccrueInterest adds one cycle's interest on the outstanding principal to
// the unpaid interest balance.
func (l *Loan) AccrueInterest(now time.Time) decimal.Decimal {
	accrued := money.MonthlyInterest(l.OutstandingPrincipal, l.MonthlyRate)
	l.UnpaidInterest = money.Round(l.UnpaidInterest.Add(accrued))
	l.Version++
	l.UpdatedAt = now
	return accrued
}

// InterestDue is what this repayment must cover before touching principal.
func (l *Loan) InterestDue() decimal.Decimal {
	return l.UnpaidInterest
}

// PrincipalDue is the principal portion expected from a scheduled repayment.
func (l *Loan) PrincipalDue() decimal.Decimal {
	return money.PrincipalDue(l.OutstandingPrincipal, l.MinimumPrincipal,
		l.ScheduledInstallment, l.InterestDue())
}

// ApplyRepayment allocates a payment interest-first and advances the
// lifecycle. Call CanReceiveRepayment first. The loan closes when both
// outstanding principal and unpaid interest reach zero.
func (l *Loan) ApplyRepayment(amount decimal.Decimal, now time.Time) money.Allocation {
	// Total owed is principal plus accrued interest; after the interest
	// bucket fills, the excess cap is exactly the remaining principal.
	totalOwed := l.OutstandingPrincipal.Add(l.UnpaidInterest)
	allocation := money.ApplyPayment(amount, l.InterestDue(), l.PrincipalDue(), totalOwed)

	l.UnpaidInterest = money.Round(l.UnpaidInterest.Sub(allocation.InterestPaid))
	principalReduction := money.Round(allocation.PrincipalPaid.Add(allocation.ExcessApplied))
	l.OutstandingPrincipal = money.Round(l.OutstandingPrincipal.Sub(principalReduction))
	if l.OutstandingPrincipal.IsNegative() {
		l.OutstandingPrincipal = decimal.Zero
	}
	if l.OutstandingPrincipal.IsZero() && l.UnpaidInterest.IsZero() {
		l.Status = StatusClosed
		closedAt := now
		l.ClosedAt = &closedAt
	}
	l.Version++
	l.UpdatedAt = now
	return allocation
}
