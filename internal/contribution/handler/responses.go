package handler

import (
	"time"

	"fundpool/internal/contribution/models"
	"fundpool/internal/contribution/service"
)

// PaymentResponse is the HTTP response for payment recording.
type PaymentResponse struct {
	DueID            string `json:"due_id"`
	AmountApplied    string `json:"amount_applied"`
	RemainingBalance string `json:"remaining_balance"`
	Status           string `json:"status"`
	Version          int64  `json:"version"`
}

// FromPaymentResult converts a domain PaymentResult to an HTTP response.
func FromPaymentResult(result *service.PaymentResult) *PaymentResponse {
	return &PaymentResponse{
		DueID:            result.DueID.String(),
		AmountApplied:    result.AmountApplied.StringFixed(2),
		RemainingBalance: result.RemainingBalance.StringFixed(2),
		Status:           string(result.Status),
		Version:          result.Version,
	}
}

// DueResponse is the HTTP representation of one contribution due.
type DueResponse struct {
	ID               string     `json:"id"`
	FundID           string     `json:"fund_id"`
	UserID           string     `json:"user_id"`
	Month            string     `json:"month"`
	AmountDue        string     `json:"amount_due"`
	AmountPaid       string     `json:"amount_paid"`
	RemainingBalance string     `json:"remaining_balance"`
	Status           string     `json:"status"`
	DueDate          time.Time  `json:"due_date"`
	PaidDate         *time.Time `json:"paid_date,omitempty"`
	Version          int64      `json:"version"`
}

// FromDue converts a due aggregate to an HTTP response.
func FromDue(d *models.ContributionDue) *DueResponse {
	return &DueResponse{
		ID:               d.ID.String(),
		FundID:           d.FundID.String(),
		UserID:           d.UserID.String(),
		Month:            d.Month.String(),
		AmountDue:        d.AmountDue.StringFixed(2),
		AmountPaid:       d.AmountPaid.StringFixed(2),
		RemainingBalance: d.RemainingBalance().StringFixed(2),
		Status:           string(d.Status),
		DueDate:          d.DueDate,
		PaidDate:         d.PaidDate,
		Version:          d.Version,
	}
}

// FromDues converts a cycle's dues.
func FromDues(dues []*models.ContributionDue) []*DueResponse {
	out := make([]*DueResponse, 0, len(dues))
	for _, d := range dues {
		out = append(out, FromDue(d))
	}
	return out
}
