package models

import (
	"time"

	"github.com/shopspring/decimal"

	id "fundpool/pkg/domain"
	dErrors "fundpool/pkg/domain-errors"
	"fundpool/pkg/money"
)

// Kind classifies a ledger transaction.
type Kind string

const (
	KindContribution   Kind = "contribution"
	KindDisbursement   Kind = "disbursement"
	KindRepayment      Kind = "repayment"
	KindInterestIncome Kind = "interest_income"
	KindPenalty        Kind = "penalty"
	KindSettlement     Kind = "settlement"
)

func (k Kind) IsValid() bool {
	switch k {
	case KindContribution, KindDisbursement, KindRepayment,
		KindInterestIncome, KindPenalty, KindSettlement:
		return true
	}
	return false
}

// Transaction is an immutable record of money moving into or out of a fund.
//
// Invariants:
//   - Unique per (fund, idempotency key); the store enforces this
//   - Never mutated after creation; corrections are new transactions
//   - Amount is non-negative with 2-decimal precision
type Transaction struct {
	ID             id.TransactionID `json:"id"`
	FundID         id.FundID        `json:"fund_id"`
	UserID         id.UserID        `json:"user_id"`
	Kind           Kind             `json:"kind"`
	Amount         decimal.Decimal  `json:"amount"`
	IdempotencyKey string           `json:"idempotency_key"`
	SourceRef      string           `json:"source_ref,omitempty"`
	RecordedBy     id.UserID        `json:"recorded_by"`
	Description    string           `json:"description,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
}

// NewTransaction validates and constructs a ledger transaction.
func NewTransaction(fundID id.FundID, userID id.UserID, kind Kind, amount decimal.Decimal,
	idempotencyKey string, sourceRef string, recordedBy id.UserID, description string,
	now time.Time) (*Transaction, error) {

	if fundID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "fund_id is required")
	}
	if userID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "user_id is required")
	}
	if !kind.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "invalid transaction kind")
	}
	if !money.ValidAmount(amount) {
		return nil, dErrors.New(dErrors.CodeValidation, "amount must be non-negative with at most 2 decimals")
	}
	if idempotencyKey == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "idempotency key is required")
	}
	return &Transaction{
		ID:             id.NewTransactionID(),
		FundID:         fundID,
		UserID:         userID,
		Kind:           kind,
		Amount:         amount,
		IdempotencyKey: idempotencyKey,
		SourceRef:      sourceRef,
		RecordedBy:     recordedBy,
		Description:    description,
		CreatedAt:      now,
	}, nil
}
