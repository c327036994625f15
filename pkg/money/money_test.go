package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// TestRound_MidpointAwayFromZero pins the rounding policy. The documented
// policy is half-up; changing it silently would corrupt every stored amount.
func TestRound_MidpointAwayFromZero(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"2.345", "2.35"},
		{"2.355", "2.36"},
		{"2.344", "2.34"},
		{"2.005", "2.01"},
		{"-2.345", "-2.35"},
		{"-2.355", "-2.36"},
		{"0.004", "0"},
		{"0.005", "0.01"},
		{"100", "100"},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			assert.True(t, Round(dec(tc.in)).Equal(dec(tc.want)),
				"Round(%s) = %s, want %s", tc.in, Round(dec(tc.in)), tc.want)
		})
	}
}

func TestMonthlyInterest(t *testing.T) {
	// 10000 at 1.5% monthly
	got := MonthlyInterest(dec("10000"), dec("0.015"))
	assert.True(t, got.Equal(dec("150")), "got %s", got)

	// Rounding kicks in: 333.33 * 0.015 = 4.99995 -> 5.00
	got = MonthlyInterest(dec("333.33"), dec("0.015"))
	assert.True(t, got.Equal(dec("5")), "got %s", got)
}

func TestPrincipalDue(t *testing.T) {
	t.Run("scheduled installment drives principal", func(t *testing.T) {
		got := PrincipalDue(dec("10000"), dec("100"), dec("500"), dec("150"))
		assert.True(t, got.Equal(dec("350")), "got %s", got)
	})

	t.Run("minimum principal floors the result", func(t *testing.T) {
		got := PrincipalDue(dec("10000"), dec("400"), dec("500"), dec("150"))
		assert.True(t, got.Equal(dec("400")), "got %s", got)
	})

	t.Run("capped at outstanding", func(t *testing.T) {
		got := PrincipalDue(dec("200"), dec("100"), dec("500"), dec("150"))
		assert.True(t, got.Equal(dec("200")), "got %s", got)
	})
}

func TestTotalDue(t *testing.T) {
	got := TotalDue(dec("150"), dec("350"))
	assert.True(t, got.Equal(dec("500")), "got %s", got)
}

func TestApplyPayment_AllocationOrder(t *testing.T) {
	// Remaining balance 1000, payment 1500, interest due 100, principal due 300:
	// interest 100, principal 300, excess 600 (capped at the balance), zero left.
	alloc := ApplyPayment(dec("1500"), dec("100"), dec("300"), dec("1000"))

	assert.True(t, alloc.InterestPaid.Equal(dec("100")), "interest: %s", alloc.InterestPaid)
	assert.True(t, alloc.PrincipalPaid.Equal(dec("300")), "principal: %s", alloc.PrincipalPaid)
	assert.True(t, alloc.ExcessApplied.Equal(dec("600")), "excess: %s", alloc.ExcessApplied)
	assert.True(t, alloc.RemainingBalance.Equal(dec("0")), "remaining: %s", alloc.RemainingBalance)
}

func TestApplyPayment_PartialInterestOnly(t *testing.T) {
	alloc := ApplyPayment(dec("60"), dec("100"), dec("300"), dec("1000"))

	assert.True(t, alloc.InterestPaid.Equal(dec("60")))
	assert.True(t, alloc.PrincipalPaid.IsZero())
	assert.True(t, alloc.ExcessApplied.IsZero())
	assert.True(t, alloc.RemainingBalance.Equal(dec("940")))
}

func TestApplyPayment_NeverOverAllocates(t *testing.T) {
	alloc := ApplyPayment(dec("5000"), dec("100"), dec("300"), dec("1000"))

	total := alloc.InterestPaid.Add(alloc.PrincipalPaid).Add(alloc.ExcessApplied)
	require.True(t, total.Equal(dec("1000")), "allocated %s beyond the balance", total)
	assert.True(t, alloc.RemainingBalance.IsZero())
}

func TestValidAmount(t *testing.T) {
	assert.True(t, ValidAmount(dec("0")))
	assert.True(t, ValidAmount(dec("10.50")))
	assert.False(t, ValidAmount(dec("-0.01")))
	assert.False(t, ValidAmount(dec("1.005")))
}

func TestValidRate(t *testing.T) {
	assert.True(t, ValidRate(dec("0.015")))
	assert.True(t, ValidRate(dec("1")))
	assert.False(t, ValidRate(dec("0")))
	assert.False(t, ValidRate(dec("1.000001")))
	assert.False(t, ValidRate(dec("0.0000015")))
}
