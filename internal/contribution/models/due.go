package models

import (
	"time"

	"github.com/shopspring/decimal"

	id "fundpool/pkg/domain"
	dErrors "fundpool/pkg/domain-errors"
	"fundpool/pkg/money"
)

// ContributionDue is a member's monthly obligation to a fund. One exists per
// (fund, member, month).
//
// Invariants:
//   - RemainingBalance is always AmountDue - AmountPaid, floored at zero;
//     it is derived, never stored independently of that relation
//   - A Missed due cannot receive further payment
//   - A Paid due cannot be reduced; PaidDate is set exactly once
//   - Version increments on every mutation; writers compare-and-swap on it
type ContributionDue struct {
	ID         id.DueID        `json:"id"`
	FundID     id.FundID       `json:"fund_id"`
	UserID     id.UserID       `json:"user_id"`
	Month      id.Month        `json:"month"`
	AmountDue  decimal.Decimal `json:"amount_due"`
	AmountPaid decimal.Decimal `json:"amount_paid"`
	Status     Status          `json:"status"`
	DueDate    time.Time       `json:"due_date"`
	PaidDate   *time.Time      `json:"paid_date,omitempty"`
	Version    int64           `json:"version"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// NewDue constructs a pending due for a cycle.
func NewDue(fundID id.FundID, userID id.UserID, month id.Month, amountDue decimal.Decimal,
	dueDate time.Time, now time.Time) (*ContributionDue, error) {

	if fundID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "fund_id is required")
	}
	if userID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "user_id is required")
	}
	if !month.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "month must be a valid YYYYMM cycle")
	}
	if !money.ValidAmount(amountDue) || amountDue.IsZero() {
		return nil, dErrors.New(dErrors.CodeValidation, "amount due must be positive with at most 2 decimals")
	}
	return &ContributionDue{
		ID:         id.NewDueID(),
		FundID:     fundID,
		UserID:     userID,
		Month:      month,
		AmountDue:  amountDue,
		AmountPaid: decimal.Zero,
		Status:     StatusPending,
		DueDate:    dueDate,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// RemainingBalance recomputes what is still owed. Never negative.
func (d *ContributionDue) RemainingBalance() decimal.Decimal {
	remaining := d.AmountDue.Sub(d.AmountPaid)
	if remaining.IsNegative() {
		return decimal.Zero
	}
	return remaining
}

// CanReceivePayment checks the lifecycle guard for payment application.
func (d *ContributionDue) CanReceivePayment() error {
	if d.Status == StatusPaid {
		return dErrors.New(dErrors.CodeAlreadyPaid, "due is already fully paid")
	}
	if d.Status == StatusMissed {
		return dErrors.New(dErrors.CodeInvalidState, "due was missed and can no longer receive payment")
	}
	return nil
}

// ApplyPayment applies min(amount, remaining) and advances the lifecycle.
// Returns the amount actually applied. Call CanReceivePayment first.
func (d *ContributionDue) ApplyPayment(amount decimal.Decimal, now time.Time) decimal.Decimal {
	applied := decimal.Min(amount, d.RemainingBalance())
	d.AmountPaid = money.Round(d.AmountPaid.Add(applied))
	if d.RemainingBalance().IsZero() {
		d.Status = StatusPaid
		paidAt := now
		d.PaidDate = &paidAt
	} else {
		d.Status = StatusPartial
	}
	d.Version++
	d.UpdatedAt = now
	return applied
}

// CanMarkLate checks the guard for the grace-period sweep. Only untouched
// Pending dues go Late; partially paid dues keep their Partial status until
// the cycle closes.
func (d *ContributionDue) CanMarkLate(graceCutoff time.Time) error {
	if d.Status != StatusPending {
		return dErrors.New(dErrors.CodeInvalidState, "only pending dues become late")
	}
	if !d.DueDate.Before(graceCutoff) {
		return dErrors.New(dErrors.CodeInvalidState, "grace period has not elapsed")
	}
	return nil
}

// ApplyLate transitions Pending -> Late.
func (d *ContributionDue) ApplyLate(now time.Time) {
	d.Status = StatusLate
	d.Version++
	d.UpdatedAt = now
}

// CanMarkMissed checks the guard for the closed-month sweep.
func (d *ContributionDue) CanMarkMissed() error {
	if !d.Status.Payable() {
		return dErrors.New(dErrors.CodeInvalidState, "due is already settled or missed")
	}
	return nil
}

// ApplyMissed transitions an open due to Missed once its cycle has closed.
func (d *ContributionDue) ApplyMissed(now time.Time) {
	d.Status = StatusMissed
	d.Version++
	d.UpdatedAt = now
}
