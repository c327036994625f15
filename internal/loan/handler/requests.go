package handler

import (
	"strings"

	"github.com/shopspring/decimal"

	dErrors "fundpool/pkg/domain-errors"
	id "fundpool/pkg/domain"
	"fundpool/pkg/money"
)

// DisburseRequest is the HTTP request body for POST /funds/{fundID}/loans.
type DisburseRequest struct {
	UserID               string `json:"user_id"`
	Principal            string `json:"principal"`
	MonthlyRate          string `json:"monthly_rate"`
	MinimumPrincipal     string `json:"minimum_principal"`
	ScheduledInstallment string `json:"scheduled_installment"`
	Description          string `json:"description,omitempty"`

	// Parsed values (populated by Validate)
	parsedUserID               id.UserID
	parsedPrincipal            decimal.Decimal
	parsedMonthlyRate          decimal.Decimal
	parsedMinimumPrincipal     decimal.Decimal
	parsedScheduledInstallment decimal.Decimal
}

// Validate validates and parses the request.
// Implements the Validatable interface for httputil.DecodeAndPrepare.
func (r *DisburseRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}

	userID, err := id.ParseUserID(strings.TrimSpace(r.UserID))
	if err != nil {
		return err
	}
	r.parsedUserID = userID

	r.parsedPrincipal, err = parseAmount(r.Principal, "principal")
	if err != nil {
		return err
	}
	if r.parsedPrincipal.IsZero() {
		return dErrors.New(dErrors.CodeValidation, "principal must be positive")
	}

	rate, err := decimal.NewFromString(strings.TrimSpace(r.MonthlyRate))
	if err != nil {
		return dErrors.New(dErrors.CodeValidation, "monthly_rate must be a decimal number")
	}
	if !money.ValidRate(rate) {
		return dErrors.New(dErrors.CodeValidation, "monthly_rate must be in (0, 1] with at most 6 decimals")
	}
	r.parsedMonthlyRate = rate

	r.parsedMinimumPrincipal, err = parseAmount(r.MinimumPrincipal, "minimum_principal")
	if err != nil {
		return err
	}
	r.parsedScheduledInstallment, err = parseAmount(r.ScheduledInstallment, "scheduled_installment")
	if err != nil {
		return err
	}
	if r.parsedScheduledInstallment.IsZero() {
		return dErrors.New(dErrors.CodeValidation, "scheduled_installment must be positive")
	}
	return nil
}

// RepaymentRequest is the HTTP request body for
// POST /funds/{fundID}/loans/{loanID}/repayments.
type RepaymentRequest struct {
	Amount      string `json:"amount"`
	Description string `json:"description,omitempty"`

	parsedAmount decimal.Decimal
}

// Validate validates and parses the request.
func (r *RepaymentRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	amount, err := parseAmount(r.Amount, "amount")
	if err != nil {
		return err
	}
	if amount.IsZero() {
		return dErrors.New(dErrors.CodeValidation, "amount must be positive")
	}
	r.parsedAmount = amount
	return nil
}

// ParsedAmount returns the validated amount.
func (r *RepaymentRequest) ParsedAmount() decimal.Decimal {
	return r.parsedAmount
}

func parseAmount(raw, field string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, dErrors.New(dErrors.CodeValidation, field+" is required")
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, dErrors.New(dErrors.CodeValidation, field+" must be a decimal number")
	}
	if !money.ValidAmount(amount) {
		return decimal.Zero, dErrors.New(dErrors.CodeValidation, field+" must be non-negative with at most 2 decimals")
	}
	return amount, nil
}
