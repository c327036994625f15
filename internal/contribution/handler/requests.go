package handler

import (
	"strings"

	"github.com/shopspring/decimal"

	dErrors "fundpool/pkg/domain-errors"
	"fundpool/pkg/money"
)

// RecordPaymentRequest is the HTTP request body for
// POST /funds/{fundID}/dues/{dueID}/payments.
type RecordPaymentRequest struct {
	Amount      string `json:"amount"`
	Description string `json:"description,omitempty"`

	// Parsed values (populated by Validate)
	parsedAmount decimal.Decimal
}

// Validate validates and parses the request.
// Implements the Validatable interface for httputil.DecodeAndPrepare.
func (r *RecordPaymentRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}

	r.Amount = strings.TrimSpace(r.Amount)
	if r.Amount == "" {
		return dErrors.New(dErrors.CodeValidation, "amount is required")
	}
	amount, err := decimal.NewFromString(r.Amount)
	if err != nil {
		return dErrors.New(dErrors.CodeValidation, "amount must be a decimal number")
	}
	if !money.ValidAmount(amount) || amount.IsZero() {
		return dErrors.New(dErrors.CodeValidation, "amount must be positive with at most 2 decimals")
	}
	r.parsedAmount = amount

	if len(r.Description) > 500 {
		return dErrors.New(dErrors.CodeValidation, "description must be at most 500 characters")
	}
	return nil
}

// ParsedAmount returns the validated amount.
func (r *RecordPaymentRequest) ParsedAmount() decimal.Decimal {
	return r.parsedAmount
}
