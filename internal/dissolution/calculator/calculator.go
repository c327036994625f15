// Package calculator computes settlement line items from projection
// snapshots. It is pure: same inputs, same line items, which is what makes
// recalculation deterministic.
package calculator

import (
	"github.com/shopspring/decimal"

	"fundpool/internal/dissolution/models"
	"fundpool/internal/dissolution/projection"
	id "fundpool/pkg/domain"
	"fundpool/pkg/money"
)

// Result is one calculation pass over a fund's projections.
type Result struct {
	TotalInterestPool  decimal.Decimal
	TotalContributions decimal.Decimal
	TotalWeight        decimal.Decimal
	LineItems          []models.LineItem
}

// Calculate builds line items for every member position.
//
// Each member's interest share is round(pool x weight / totalWeight), zero
// when the total weight is zero. Rounding each share independently means the
// shares sum to at most the pool plus half a cent per member; the residue
// stays in the pool rather than being redistributed.
func Calculate(settlementID id.SettlementID, positions []projection.MemberPosition, interestPool decimal.Decimal) Result {
	result := Result{
		TotalInterestPool:  money.Round(interestPool),
		TotalContributions: decimal.Zero,
		TotalWeight:        decimal.Zero,
	}
	if len(positions) == 0 {
		return result
	}

	for _, p := range positions {
		result.TotalContributions = result.TotalContributions.Add(p.Contributions)
		result.TotalWeight = result.TotalWeight.Add(p.Weight)
	}
	result.TotalContributions = money.Round(result.TotalContributions)

	result.LineItems = make([]models.LineItem, 0, len(positions))
	for _, p := range positions {
		item := models.LineItem{
			SettlementID:         settlementID,
			UserID:               p.UserID,
			Weight:               p.Weight,
			Contributions:        money.Round(p.Contributions),
			InterestShare:        interestShare(interestPool, p.Weight, result.TotalWeight),
			OutstandingPrincipal: money.Round(p.OutstandingPrincipal),
			UnpaidInterest:       money.Round(p.UnpaidInterest),
			UnpaidDues:           money.Round(p.UnpaidDues),
		}
		item.GrossPayout = money.Round(item.Contributions.Add(item.InterestShare))
		item.NetPayout = money.Round(item.GrossPayout.
			Sub(item.OutstandingPrincipal).
			Sub(item.UnpaidInterest).
			Sub(item.UnpaidDues))
		result.LineItems = append(result.LineItems, item)
	}
	return result
}

func interestShare(pool, weight, totalWeight decimal.Decimal) decimal.Decimal {
	if totalWeight.IsZero() {
		return decimal.Zero
	}
	return money.Round(pool.Mul(weight).Div(totalWeight))
}

// Blockers returns the members whose net payout is negative, in input order.
func Blockers(items []models.LineItem) []models.LineItem {
	var out []models.LineItem
	for _, item := range items {
		if item.NetPayout.IsNegative() {
			out = append(out, item)
		}
	}
	return out
}
