package handler

import (
	"time"

	"fundpool/internal/loan/models"
	"fundpool/internal/loan/service"
)

// LoanResponse is the HTTP representation of one loan.
type LoanResponse struct {
	ID                   string     `json:"id"`
	FundID               string     `json:"fund_id"`
	UserID               string     `json:"user_id"`
	Principal            string     `json:"principal"`
	OutstandingPrincipal string     `json:"outstanding_principal"`
	MonthlyRate          string     `json:"monthly_rate"`
	UnpaidInterest       string     `json:"unpaid_interest"`
	MinimumPrincipal     string     `json:"minimum_principal"`
	ScheduledInstallment string     `json:"scheduled_installment"`
	Status               string     `json:"status"`
	DisbursedAt          time.Time  `json:"disbursed_at"`
	ClosedAt             *time.Time `json:"closed_at,omitempty"`
	Version              int64      `json:"version"`
}

// FromLoan converts a loan aggregate to an HTTP response.
func FromLoan(l *models.Loan) *LoanResponse {
	return &LoanResponse{
		ID:                   l.ID.String(),
		FundID:               l.FundID.String(),
		UserID:               l.UserID.String(),
		Principal:            l.Principal.StringFixed(2),
		OutstandingPrincipal: l.OutstandingPrincipal.StringFixed(2),
		MonthlyRate:          l.MonthlyRate.String(),
		UnpaidInterest:       l.UnpaidInterest.StringFixed(2),
		MinimumPrincipal:     l.MinimumPrincipal.StringFixed(2),
		ScheduledInstallment: l.ScheduledInstallment.StringFixed(2),
		Status:               string(l.Status),
		DisbursedAt:          l.DisbursedAt,
		ClosedAt:             l.ClosedAt,
		Version:              l.Version,
	}
}

// FromLoans converts a fund's loans.
func FromLoans(loans []*models.Loan) []*LoanResponse {
	out := make([]*LoanResponse, 0, len(loans))
	for _, l := range loans {
		out = append(out, FromLoan(l))
	}
	return out
}

// RepaymentResponse is the HTTP response for repayment recording.
type RepaymentResponse struct {
	LoanID               string `json:"loan_id"`
	InterestPaid         string `json:"interest_paid"`
	PrincipalPaid        string `json:"principal_paid"`
	ExcessApplied        string `json:"excess_applied"`
	OutstandingPrincipal string `json:"outstanding_principal"`
	UnpaidInterest       string `json:"unpaid_interest"`
	Status               string `json:"status"`
	Version              int64  `json:"version"`
}

// FromRepaymentResult converts a domain RepaymentResult to an HTTP response.
func FromRepaymentResult(result *service.RepaymentResult) *RepaymentResponse {
	return &RepaymentResponse{
		LoanID:               result.LoanID.String(),
		InterestPaid:         result.InterestPaid.StringFixed(2),
		PrincipalPaid:        result.PrincipalPaid.StringFixed(2),
		ExcessApplied:        result.ExcessApplied.StringFixed(2),
		OutstandingPrincipal: result.OutstandingPrincipal.StringFixed(2),
		UnpaidInterest:       result.UnpaidInterest.StringFixed(2),
		Status:               string(result.Status),
		Version:              result.Version,
	}
}
