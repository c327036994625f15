package events

import (
	"time"

	"github.com/shopspring/decimal"

	id "fundpool/pkg/domain"
)

// Payload shapes for each event type. Amounts travel as shopspring decimals
// (quoted strings on the wire) so no consumer ever sees a float.

type MemberJoined struct {
	FundID                    id.FundID       `json:"fund_id"`
	UserID                    id.UserID       `json:"user_id"`
	MonthlyContributionAmount decimal.Decimal `json:"monthly_contribution_amount"`
}

type MemberRemoved struct {
	FundID id.FundID `json:"fund_id"`
	UserID id.UserID `json:"user_id"`
}

type LoanDisbursed struct {
	LoanID      id.LoanID       `json:"loan_id"`
	FundID      id.FundID       `json:"fund_id"`
	UserID      id.UserID       `json:"user_id"`
	Principal   decimal.Decimal `json:"principal"`
	MonthlyRate decimal.Decimal `json:"monthly_rate"`
}

type RepaymentRecorded struct {
	LoanID               id.LoanID       `json:"loan_id"`
	FundID               id.FundID       `json:"fund_id"`
	UserID               id.UserID       `json:"user_id"`
	InterestPaid         decimal.Decimal `json:"interest_paid"`
	PrincipalPaid        decimal.Decimal `json:"principal_paid"`
	OutstandingPrincipal decimal.Decimal `json:"outstanding_principal"`
	UnpaidInterest       decimal.Decimal `json:"unpaid_interest"`
}

type LoanClosed struct {
	LoanID id.LoanID `json:"loan_id"`
	FundID id.FundID `json:"fund_id"`
	UserID id.UserID `json:"user_id"`
}

type ContributionPaid struct {
	DueID         id.DueID        `json:"due_id"`
	FundID        id.FundID       `json:"fund_id"`
	UserID        id.UserID       `json:"user_id"`
	Month         id.Month        `json:"month"`
	AmountApplied decimal.Decimal `json:"amount_applied"`
	Remaining     decimal.Decimal `json:"remaining_balance"`
	Status        string          `json:"status"`
}

type ContributionOverdue struct {
	DueID  id.DueID  `json:"due_id"`
	FundID id.FundID `json:"fund_id"`
	UserID id.UserID `json:"user_id"`
	Month  id.Month  `json:"month"`
	Status string    `json:"status"`
}

type DuesGenerated struct {
	FundID    id.FundID `json:"fund_id"`
	Month     id.Month  `json:"month"`
	Generated int       `json:"generated"`
	Skipped   int       `json:"skipped"`
}

type DissolutionInitiated struct {
	SettlementID id.SettlementID `json:"settlement_id"`
	FundID       id.FundID       `json:"fund_id"`
	InitiatedBy  id.UserID       `json:"initiated_by"`
}

type SettlementCalculated struct {
	SettlementID       id.SettlementID `json:"settlement_id"`
	FundID             id.FundID       `json:"fund_id"`
	TotalInterestPool  decimal.Decimal `json:"total_interest_pool"`
	TotalContributions decimal.Decimal `json:"total_contributions"`
	LineItemCount      int             `json:"line_item_count"`
}

type DissolutionConfirmed struct {
	SettlementID   id.SettlementID `json:"settlement_id"`
	FundID         id.FundID       `json:"fund_id"`
	ConfirmedBy    id.UserID       `json:"confirmed_by"`
	SettlementDate time.Time       `json:"settlement_date"`
}
