package projection

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "fundpool/pkg/domain"
	"fundpool/pkg/testutil"
)

var testNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestMemberProjection(t *testing.T) {
	ctx := testutil.Context(t, testNow)
	fundID := id.NewFundID()
	userID := id.NewUserID()

	t.Run("join then remove leaves the member inactive", func(t *testing.T) {
		s := NewMemory()
		require.NoError(t, s.ApplyMemberJoined(ctx, fundID, userID, dec("1000.00")))
		require.NoError(t, s.ApplyMemberRemoved(ctx, fundID, userID))

		members, err := s.ActiveMembers(ctx, fundID)
		require.NoError(t, err)
		assert.Empty(t, members)
	})

	t.Run("rejoin reactivates with the new weight", func(t *testing.T) {
		s := NewMemory()
		require.NoError(t, s.ApplyMemberJoined(ctx, fundID, userID, dec("1000.00")))
		require.NoError(t, s.ApplyMemberRemoved(ctx, fundID, userID))
		require.NoError(t, s.ApplyMemberJoined(ctx, fundID, userID, dec("750.00")))

		members, err := s.ActiveMembers(ctx, fundID)
		require.NoError(t, err)
		require.Len(t, members, 1)
		assert.Equal(t, "750.00", members[0].Weight.StringFixed(2))
	})

	t.Run("removing an unknown member is a no-op", func(t *testing.T) {
		s := NewMemory()
		require.NoError(t, s.ApplyMemberRemoved(ctx, fundID, id.NewUserID()))
	})
}

func TestLoanProjection(t *testing.T) {
	ctx := testutil.Context(t, testNow)
	fundID := id.NewFundID()
	userID := id.NewUserID()
	loanID := id.NewLoanID()

	t.Run("duplicate disbursement does not reset the position", func(t *testing.T) {
		s := NewMemory()
		require.NoError(t, s.ApplyLoanDisbursed(ctx, loanID, fundID, userID, dec("1000.00"), testNow))
		require.NoError(t, s.ApplyRepayment(ctx, uuid.New(), loanID, fundID, dec("800.00"), dec("0.00"), dec("20.00"), testNow.Add(time.Hour)))
		require.NoError(t, s.ApplyLoanDisbursed(ctx, loanID, fundID, userID, dec("1000.00"), testNow))

		loans, err := s.Loans(ctx, fundID)
		require.NoError(t, err)
		require.Len(t, loans, 1)
		assert.Equal(t, "800.00", loans[0].OutstandingPrincipal.StringFixed(2))
	})

	t.Run("redelivered repayment adds interest income only once", func(t *testing.T) {
		s := NewMemory()
		require.NoError(t, s.ApplyLoanDisbursed(ctx, loanID, fundID, userID, dec("1000.00"), testNow))

		eventID := uuid.New()
		at := testNow.Add(time.Hour)
		require.NoError(t, s.ApplyRepayment(ctx, eventID, loanID, fundID, dec("870.00"), dec("0.00"), dec("20.00"), at))
		require.NoError(t, s.ApplyRepayment(ctx, eventID, loanID, fundID, dec("870.00"), dec("0.00"), dec("20.00"), at))

		pool, err := s.InterestPool(ctx, fundID)
		require.NoError(t, err)
		assert.Equal(t, "20.00", pool.StringFixed(2))
	})

	t.Run("stale repayment does not regress the position", func(t *testing.T) {
		s := NewMemory()
		require.NoError(t, s.ApplyLoanDisbursed(ctx, loanID, fundID, userID, dec("1000.00"), testNow))
		require.NoError(t, s.ApplyRepayment(ctx, uuid.New(), loanID, fundID, dec("700.00"), dec("0.00"), dec("20.00"), testNow.Add(2*time.Hour)))
		require.NoError(t, s.ApplyRepayment(ctx, uuid.New(), loanID, fundID, dec("850.00"), dec("0.00"), dec("20.00"), testNow.Add(time.Hour)))

		loans, err := s.Loans(ctx, fundID)
		require.NoError(t, err)
		require.Len(t, loans, 1)
		assert.Equal(t, "700.00", loans[0].OutstandingPrincipal.StringFixed(2))
	})

	t.Run("closing zeroes the position and marks the loan closed", func(t *testing.T) {
		s := NewMemory()
		require.NoError(t, s.ApplyLoanDisbursed(ctx, loanID, fundID, userID, dec("1000.00"), testNow))
		require.NoError(t, s.ApplyLoanClosed(ctx, loanID, testNow.Add(time.Hour)))

		loans, err := s.Loans(ctx, fundID)
		require.NoError(t, err)
		require.Len(t, loans, 1)
		assert.True(t, loans[0].Closed)
		assert.True(t, loans[0].OutstandingPrincipal.IsZero())
	})
}

func TestContributionProjection(t *testing.T) {
	ctx := testutil.Context(t, testNow)
	fundID := id.NewFundID()
	userID := id.NewUserID()
	dueID := id.NewDueID()

	t.Run("payments accumulate and remaining tracks the latest event", func(t *testing.T) {
		s := NewMemory()
		require.NoError(t, s.ApplyContributionPaid(ctx, uuid.New(), dueID, fundID, userID, dec("400.00"), dec("600.00"), testNow))
		require.NoError(t, s.ApplyContributionPaid(ctx, uuid.New(), dueID, fundID, userID, dec("600.00"), dec("0.00"), testNow.Add(time.Hour)))

		contributions, err := s.Contributions(ctx, fundID)
		require.NoError(t, err)
		require.Len(t, contributions, 1)
		assert.Equal(t, "1000.00", contributions[0].TotalPaid.StringFixed(2))
		assert.True(t, contributions[0].Unpaid.IsZero())
	})

	t.Run("redelivered payment event is folded once", func(t *testing.T) {
		s := NewMemory()
		eventID := uuid.New()
		require.NoError(t, s.ApplyContributionPaid(ctx, eventID, dueID, fundID, userID, dec("400.00"), dec("600.00"), testNow))
		require.NoError(t, s.ApplyContributionPaid(ctx, eventID, dueID, fundID, userID, dec("400.00"), dec("600.00"), testNow))

		contributions, err := s.Contributions(ctx, fundID)
		require.NoError(t, err)
		require.Len(t, contributions, 1)
		assert.Equal(t, "400.00", contributions[0].TotalPaid.StringFixed(2))
	})

	t.Run("redelivery of an earlier event sharing a timestamp is a no-op", func(t *testing.T) {
		s := NewMemory()
		first := uuid.New()
		second := uuid.New()
		require.NoError(t, s.ApplyContributionPaid(ctx, first, dueID, fundID, userID, dec("400.00"), dec("600.00"), testNow))
		require.NoError(t, s.ApplyContributionPaid(ctx, second, dueID, fundID, userID, dec("200.00"), dec("400.00"), testNow))
		require.NoError(t, s.ApplyContributionPaid(ctx, first, dueID, fundID, userID, dec("400.00"), dec("600.00"), testNow))

		contributions, err := s.Contributions(ctx, fundID)
		require.NoError(t, err)
		require.Len(t, contributions, 1)
		assert.Equal(t, "600.00", contributions[0].TotalPaid.StringFixed(2))
		assert.Equal(t, "400.00", contributions[0].Unpaid.StringFixed(2))
	})
}

func TestPositions(t *testing.T) {
	ctx := testutil.Context(t, testNow)
	fundID := id.NewFundID()

	t.Run("collapses loans and contributions per active member", func(t *testing.T) {
		s := NewMemory()
		alice := id.NewUserID()
		bob := id.NewUserID()
		require.NoError(t, s.ApplyMemberJoined(ctx, fundID, alice, dec("500.00")))
		require.NoError(t, s.ApplyMemberJoined(ctx, fundID, bob, dec("1500.00")))

		loanID := id.NewLoanID()
		require.NoError(t, s.ApplyLoanDisbursed(ctx, loanID, fundID, alice, dec("1000.00"), testNow))
		require.NoError(t, s.ApplyRepayment(ctx, uuid.New(), loanID, fundID, dec("800.00"), dec("16.00"), dec("20.00"), testNow.Add(time.Hour)))

		require.NoError(t, s.ApplyContributionPaid(ctx, uuid.New(), id.NewDueID(), fundID, bob, dec("1500.00"), dec("0.00"), testNow))
		require.NoError(t, s.ApplyContributionPaid(ctx, uuid.New(), id.NewDueID(), fundID, alice, dec("300.00"), dec("200.00"), testNow))

		positions, err := Positions(ctx, s, fundID)
		require.NoError(t, err)
		require.Len(t, positions, 2)

		byUser := make(map[id.UserID]MemberPosition, len(positions))
		for _, p := range positions {
			byUser[p.UserID] = p
		}
		assert.Equal(t, "800.00", byUser[alice].OutstandingPrincipal.StringFixed(2))
		assert.Equal(t, "16.00", byUser[alice].UnpaidInterest.StringFixed(2))
		assert.Equal(t, "300.00", byUser[alice].Contributions.StringFixed(2))
		assert.Equal(t, "200.00", byUser[alice].UnpaidDues.StringFixed(2))
		assert.Equal(t, "1500.00", byUser[bob].Contributions.StringFixed(2))
		assert.True(t, byUser[bob].OutstandingPrincipal.IsZero())
	})

	t.Run("closed loans carry no debt into the position", func(t *testing.T) {
		s := NewMemory()
		userID := id.NewUserID()
		require.NoError(t, s.ApplyMemberJoined(ctx, fundID, userID, dec("1000.00")))

		loanID := id.NewLoanID()
		require.NoError(t, s.ApplyLoanDisbursed(ctx, loanID, fundID, userID, dec("1000.00"), testNow))
		require.NoError(t, s.ApplyLoanClosed(ctx, loanID, testNow.Add(time.Hour)))

		positions, err := Positions(ctx, s, fundID)
		require.NoError(t, err)
		require.Len(t, positions, 1)
		assert.True(t, positions[0].OutstandingPrincipal.IsZero())
	})

	t.Run("inactive members and their amounts are excluded", func(t *testing.T) {
		s := NewMemory()
		gone := id.NewUserID()
		require.NoError(t, s.ApplyMemberJoined(ctx, fundID, gone, dec("1000.00")))
		require.NoError(t, s.ApplyContributionPaid(ctx, uuid.New(), id.NewDueID(), fundID, gone, dec("1000.00"), dec("0.00"), testNow))
		require.NoError(t, s.ApplyMemberRemoved(ctx, fundID, gone))

		positions, err := Positions(ctx, s, fundID)
		require.NoError(t, err)
		assert.Empty(t, positions)
	})
}
