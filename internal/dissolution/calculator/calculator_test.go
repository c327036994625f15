package calculator

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fundpool/internal/dissolution/projection"
	id "fundpool/pkg/domain"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func position(userID id.UserID, weight, contributions string) projection.MemberPosition {
	return projection.MemberPosition{
		UserID:               userID,
		Weight:               dec(weight),
		Contributions:        dec(contributions),
		UnpaidDues:           decimal.Zero,
		OutstandingPrincipal: decimal.Zero,
		UnpaidInterest:       decimal.Zero,
	}
}

func TestCalculate(t *testing.T) {
	settlementID := id.NewSettlementID()

	t.Run("splits the interest pool proportionally to weight", func(t *testing.T) {
		alice := id.NewUserID()
		bob := id.NewUserID()
		positions := []projection.MemberPosition{
			position(alice, "500.00", "6000.00"),
			position(bob, "1500.00", "18000.00"),
		}

		result := Calculate(settlementID, positions, dec("100.00"))

		require.Len(t, result.LineItems, 2)
		assert.Equal(t, "100.00", result.TotalInterestPool.StringFixed(2))
		assert.Equal(t, "24000.00", result.TotalContributions.StringFixed(2))
		assert.Equal(t, "2000.00", result.TotalWeight.StringFixed(2))

		assert.Equal(t, "25.00", result.LineItems[0].InterestShare.StringFixed(2))
		assert.Equal(t, "6025.00", result.LineItems[0].GrossPayout.StringFixed(2))
		assert.Equal(t, "75.00", result.LineItems[1].InterestShare.StringFixed(2))
		assert.Equal(t, "18075.00", result.LineItems[1].GrossPayout.StringFixed(2))
	})

	t.Run("net payout subtracts debts from the gross payout", func(t *testing.T) {
		userID := id.NewUserID()
		p := position(userID, "1000.00", "12000.00")
		p.OutstandingPrincipal = dec("800.00")
		p.UnpaidInterest = dec("16.00")
		p.UnpaidDues = dec("500.00")

		result := Calculate(settlementID, []projection.MemberPosition{p}, dec("50.00"))

		require.Len(t, result.LineItems, 1)
		item := result.LineItems[0]
		assert.Equal(t, "50.00", item.InterestShare.StringFixed(2))
		assert.Equal(t, "12050.00", item.GrossPayout.StringFixed(2))
		assert.Equal(t, "10734.00", item.NetPayout.StringFixed(2))
	})

	t.Run("is deterministic across repeated passes", func(t *testing.T) {
		positions := []projection.MemberPosition{
			position(id.NewUserID(), "333.33", "4000.00"),
			position(id.NewUserID(), "666.67", "8000.00"),
			position(id.NewUserID(), "1000.00", "12000.00"),
		}
		pool := dec("123.45")

		first := Calculate(settlementID, positions, pool)
		second := Calculate(settlementID, positions, pool)

		require.Equal(t, len(first.LineItems), len(second.LineItems))
		for i := range first.LineItems {
			assert.True(t, first.LineItems[i].InterestShare.Equal(second.LineItems[i].InterestShare))
			assert.True(t, first.LineItems[i].NetPayout.Equal(second.LineItems[i].NetPayout))
		}
		assert.True(t, first.TotalContributions.Equal(second.TotalContributions))
	})

	t.Run("rounded shares never exceed the pool by more than half a cent each", func(t *testing.T) {
		positions := []projection.MemberPosition{
			position(id.NewUserID(), "1.00", "100.00"),
			position(id.NewUserID(), "1.00", "100.00"),
			position(id.NewUserID(), "1.00", "100.00"),
		}

		result := Calculate(settlementID, positions, dec("100.00"))

		sum := decimal.Zero
		for _, item := range result.LineItems {
			sum = sum.Add(item.InterestShare)
		}
		// 33.33 x 3: the rounding residue stays in the pool.
		assert.Equal(t, "99.99", sum.StringFixed(2))
	})

	t.Run("zero total weight yields zero interest shares", func(t *testing.T) {
		positions := []projection.MemberPosition{
			position(id.NewUserID(), "0.00", "100.00"),
		}

		result := Calculate(settlementID, positions, dec("100.00"))

		require.Len(t, result.LineItems, 1)
		assert.True(t, result.LineItems[0].InterestShare.IsZero())
	})

	t.Run("no positions yields totals only", func(t *testing.T) {
		result := Calculate(settlementID, nil, dec("40.00"))

		assert.Empty(t, result.LineItems)
		assert.Equal(t, "40.00", result.TotalInterestPool.StringFixed(2))
		assert.True(t, result.TotalContributions.IsZero())
		assert.True(t, result.TotalWeight.IsZero())
	})
}

func TestBlockers(t *testing.T) {
	t.Run("returns only members with a negative net payout", func(t *testing.T) {
		blocked := id.NewUserID()
		clean := id.NewUserID()
		positions := []projection.MemberPosition{
			{UserID: blocked, Weight: dec("1000.00"), Contributions: dec("100.00"),
				OutstandingPrincipal: dec("5000.00"), UnpaidInterest: dec("100.00"), UnpaidDues: decimal.Zero},
			{UserID: clean, Weight: dec("1000.00"), Contributions: dec("12000.00"),
				OutstandingPrincipal: decimal.Zero, UnpaidInterest: decimal.Zero, UnpaidDues: decimal.Zero},
		}

		result := Calculate(id.NewSettlementID(), positions, decimal.Zero)
		blockers := Blockers(result.LineItems)

		require.Len(t, blockers, 1)
		assert.Equal(t, blocked, blockers[0].UserID)
		assert.Equal(t, "-5000.00", blockers[0].NetPayout.StringFixed(2))
	})

	t.Run("zero net payout does not block", func(t *testing.T) {
		positions := []projection.MemberPosition{
			{UserID: id.NewUserID(), Weight: dec("1000.00"), Contributions: dec("500.00"),
				OutstandingPrincipal: dec("500.00"), UnpaidInterest: decimal.Zero, UnpaidDues: decimal.Zero},
		}

		result := Calculate(id.NewSettlementID(), positions, decimal.Zero)

		assert.Empty(t, Blockers(result.LineItems))
	})
}
