// Package money holds the deterministic monetary arithmetic used by every
// money-touching computation in the system.
//
// All amounts are exact base-10 decimals with at most 2 fractional digits;
// rates carry at most 6. Floating point is never used for money or rates.
//
// Rounding policy: midpoint away from zero (half-up), applied uniformly.
// The policy is pinned by tests; do not change it without migrating every
// stored amount.
package money

import "github.com/shopspring/decimal"

// AmountScale is the fractional precision of monetary amounts.
const AmountScale = 2

// RateScale is the fractional precision of interest rates.
const RateScale = 6

var one = decimal.NewFromInt(1)

// Round rounds a monetary value to 2 decimals, midpoint away from zero.
func Round(x decimal.Decimal) decimal.Decimal {
	return x.Round(AmountScale)
}

// RoundRate rounds a rate to 6 decimals, midpoint away from zero.
func RoundRate(x decimal.Decimal) decimal.Decimal {
	return x.Round(RateScale)
}

// MonthlyInterest computes one month of interest on the outstanding principal.
func MonthlyInterest(outstandingPrincipal, monthlyRate decimal.Decimal) decimal.Decimal {
	return Round(outstandingPrincipal.Mul(monthlyRate))
}

// PrincipalDue computes the principal portion of a scheduled installment.
// The borrower owes at least the minimum principal, at most what is still
// outstanding.
func PrincipalDue(outstanding, minimumPrincipal, scheduledInstallment, interestDue decimal.Decimal) decimal.Decimal {
	due := scheduledInstallment.Sub(interestDue)
	if minimumPrincipal.GreaterThan(due) {
		due = minimumPrincipal
	}
	due = Round(due)
	if due.GreaterThan(outstanding) {
		return outstanding
	}
	return due
}

// TotalDue is the full installment owed for the period.
func TotalDue(interestDue, principalDue decimal.Decimal) decimal.Decimal {
	return Round(interestDue.Add(principalDue))
}

// Allocation is the result of applying a payment across buckets.
type Allocation struct {
	InterestPaid     decimal.Decimal
	PrincipalPaid    decimal.Decimal
	ExcessApplied    decimal.Decimal
	RemainingBalance decimal.Decimal
}

// ApplyPayment allocates a payment strictly in order interest -> principal ->
// excess-to-principal. No bucket ever receives more than is owed, and the
// excess is capped at what remains of the outstanding balance after the
// interest and principal buckets are filled. RemainingBalance is the
// outstanding balance left after the whole allocation; it never goes negative.
func ApplyPayment(amount, interestDue, principalDue, outstanding decimal.Decimal) Allocation {
	interestPaid := decimal.Min(amount, interestDue)
	left := amount.Sub(interestPaid)

	principalPaid := decimal.Min(left, principalDue)
	left = left.Sub(principalPaid)

	excessCap := outstanding.Sub(interestPaid).Sub(principalPaid)
	if excessCap.IsNegative() {
		excessCap = decimal.Zero
	}
	excess := decimal.Min(left, excessCap)

	remaining := outstanding.Sub(interestPaid).Sub(principalPaid).Sub(excess)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}

	return Allocation{
		InterestPaid:     Round(interestPaid),
		PrincipalPaid:    Round(principalPaid),
		ExcessApplied:    Round(excess),
		RemainingBalance: Round(remaining),
	}
}

// ValidAmount reports whether x is usable as a monetary amount:
// non-negative and already at 2-decimal precision.
func ValidAmount(x decimal.Decimal) bool {
	return !x.IsNegative() && x.Equal(x.Truncate(AmountScale))
}

// ValidRate reports whether x is usable as a monthly rate: strictly positive,
// at most 1.0, and at most 6-decimal precision.
func ValidRate(x decimal.Decimal) bool {
	return x.IsPositive() && x.LessThanOrEqual(one) && x.Equal(x.Truncate(RateScale))
}
