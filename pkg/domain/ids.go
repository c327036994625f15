// Package domain defines the typed identifiers shared across fund domains.
//
// Every aggregate is scoped by FundID. Distinct UUID wrapper types keep the
// compiler from letting a LoanID leak into a slot that expects a DueID.
package domain

import (
	"github.com/google/uuid"

	dErrors "fundpool/pkg/domain-errors"
)

type (
	// FundID identifies a pooled fund. All other entities are scoped by it.
	FundID uuid.UUID

	// UserID identifies a fund member or administrator.
	UserID uuid.UUID

	// DueID identifies a monthly contribution due.
	DueID uuid.UUID

	// LoanID identifies a member loan.
	LoanID uuid.UUID

	// SettlementID identifies a dissolution settlement.
	SettlementID uuid.UUID

	// TransactionID identifies an immutable ledger transaction.
	TransactionID uuid.UUID
)

func (id FundID) String() string        { return uuid.UUID(id).String() }
func (id UserID) String() string        { return uuid.UUID(id).String() }
func (id DueID) String() string         { return uuid.UUID(id).String() }
func (id LoanID) String() string        { return uuid.UUID(id).String() }
func (id SettlementID) String() string  { return uuid.UUID(id).String() }
func (id TransactionID) String() string { return uuid.UUID(id).String() }

func (id FundID) IsNil() bool        { return uuid.UUID(id) == uuid.Nil }
func (id UserID) IsNil() bool        { return uuid.UUID(id) == uuid.Nil }
func (id DueID) IsNil() bool         { return uuid.UUID(id) == uuid.Nil }
func (id LoanID) IsNil() bool        { return uuid.UUID(id) == uuid.Nil }
func (id SettlementID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id TransactionID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

// NewFundID returns a fresh random fund identifier.
func NewFundID() FundID { return FundID(uuid.New()) }

// NewUserID returns a fresh random user identifier.
func NewUserID() UserID { return UserID(uuid.New()) }

// NewDueID returns a fresh random due identifier.
func NewDueID() DueID { return DueID(uuid.New()) }

// NewLoanID returns a fresh random loan identifier.
func NewLoanID() LoanID { return LoanID(uuid.New()) }

// NewSettlementID returns a fresh random settlement identifier.
func NewSettlementID() SettlementID { return SettlementID(uuid.New()) }

// NewTransactionID returns a fresh random transaction identifier.
func NewTransactionID() TransactionID { return TransactionID(uuid.New()) }

// parseUUID enforces the shared invariant: identifiers must be valid,
// non-empty, non-nil UUIDs. Used by all typed Parse helpers.
func parseUUID(raw, field string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, field+" is required")
	}
	parsed, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, field+" must be a valid UUID")
	}
	if parsed == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, field+" must not be the nil UUID")
	}
	return parsed, nil
}

// ParseFundID validates and parses a fund identifier from its string form.
func ParseFundID(raw string) (FundID, error) {
	parsed, err := parseUUID(raw, "fund_id")
	if err != nil {
		return FundID{}, err
	}
	return FundID(parsed), nil
}

// ParseUserID validates and parses a user identifier from its string form.
func ParseUserID(raw string) (UserID, error) {
	parsed, err := parseUUID(raw, "user_id")
	if err != nil {
		return UserID{}, err
	}
	return UserID(parsed), nil
}

// ParseDueID validates and parses a due identifier from its string form.
func ParseDueID(raw string) (DueID, error) {
	parsed, err := parseUUID(raw, "due_id")
	if err != nil {
		return DueID{}, err
	}
	return DueID(parsed), nil
}

// ParseLoanID validates and parses a loan identifier from its string form.
func ParseLoanID(raw string) (LoanID, error) {
	parsed, err := parseUUID(raw, "loan_id")
	if err != nil {
		return LoanID{}, err
	}
	return LoanID(parsed), nil
}

// ParseSettlementID validates and parses a settlement identifier from its string form.
func ParseSettlementID(raw string) (SettlementID, error) {
	parsed, err := parseUUID(raw, "settlement_id")
	if err != nil {
		return SettlementID{}, err
	}
	return SettlementID(parsed), nil
}
