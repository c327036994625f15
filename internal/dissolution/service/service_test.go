package service

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fundpool/internal/dissolution/models"
	"fundpool/internal/dissolution/projection"
	"fundpool/internal/dissolution/store"
	id "fundpool/pkg/domain"
	dErrors "fundpool/pkg/domain-errors"
	"fundpool/pkg/platform/events"
	"fundpool/pkg/testutil"
)

var testNow = time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fixture struct {
	svc         *Service
	settlements *store.MemoryStore
	projections *projection.MemoryStore
	publisher   *events.MemoryPublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	settlements := store.NewMemory()
	projections := projection.NewMemory()
	publisher := events.NewMemoryPublisher()
	svc, err := New(settlements, projections, WithEventPublisher(publisher))
	require.NoError(t, err)
	return &fixture{svc: svc, settlements: settlements, projections: projections, publisher: publisher}
}

// seedMember adds an active member with fully paid contributions.
func (f *fixture) seedMember(t *testing.T, fundID id.FundID, weight, contributions string) id.UserID {
	t.Helper()
	ctx := testutil.Context(t, testNow)
	userID := id.NewUserID()
	require.NoError(t, f.projections.ApplyMemberJoined(ctx, fundID, userID, dec(weight)))
	if contributions != "0.00" {
		require.NoError(t, f.projections.ApplyContributionPaid(ctx, uuid.New(), id.NewDueID(), fundID, userID,
			dec(contributions), dec("0.00"), testNow))
	}
	return userID
}

// seedDebt attaches an open loan to the member.
func (f *fixture) seedDebt(t *testing.T, fundID id.FundID, userID id.UserID, outstanding, unpaidInterest string) {
	t.Helper()
	ctx := testutil.Context(t, testNow)
	loanID := id.NewLoanID()
	require.NoError(t, f.projections.ApplyLoanDisbursed(ctx, loanID, fundID, userID, dec(outstanding), testNow))
	require.NoError(t, f.projections.ApplyRepayment(ctx, uuid.New(), loanID, fundID,
		dec(outstanding), dec(unpaidInterest), dec("0.00"), testNow))
}

func (f *fixture) initiate(t *testing.T, fundID id.FundID) *models.Settlement {
	t.Helper()
	s, err := f.svc.Initiate(testutil.Context(t, testNow), fundID, id.NewUserID())
	require.NoError(t, err)
	return s
}

func TestInitiate(t *testing.T) {
	t.Run("creates a settlement in calculating", func(t *testing.T) {
		f := newFixture(t)
		fundID := id.NewFundID()

		s := f.initiate(t, fundID)

		assert.Equal(t, models.StatusCalculating, s.Status)
		assert.Equal(t, int64(1), s.Version)
		assert.Len(t, f.publisher.PublishedOfType(events.TypeDissolutionInitiated), 1)
	})

	t.Run("second initiation for the same fund conflicts", func(t *testing.T) {
		f := newFixture(t)
		fundID := id.NewFundID()
		f.initiate(t, fundID)

		_, err := f.svc.Initiate(testutil.Context(t, testNow), fundID, id.NewUserID())
		assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
	})
}

func TestRecalculate(t *testing.T) {
	ctx := testutil.Context(t, testNow)

	t.Run("computes line items and moves to reviewed", func(t *testing.T) {
		f := newFixture(t)
		fundID := id.NewFundID()
		f.seedMember(t, fundID, "500.00", "6000.00")
		f.seedMember(t, fundID, "1500.00", "18000.00")
		f.initiate(t, fundID)

		s, items, err := f.svc.Recalculate(ctx, fundID)
		require.NoError(t, err)

		assert.Equal(t, models.StatusReviewed, s.Status)
		assert.Equal(t, int64(2), s.Version)
		assert.Equal(t, "24000.00", s.TotalContributions.StringFixed(2))
		assert.Equal(t, "2000.00", s.TotalWeight.StringFixed(2))
		require.Len(t, items, 2)
		assert.Len(t, f.publisher.PublishedOfType(events.TypeSettlementCalculated), 1)
	})

	t.Run("no members moves straight to reviewed with no line items", func(t *testing.T) {
		f := newFixture(t)
		fundID := id.NewFundID()
		f.initiate(t, fundID)

		s, items, err := f.svc.Recalculate(ctx, fundID)
		require.NoError(t, err)

		assert.Equal(t, models.StatusReviewed, s.Status)
		assert.Empty(t, items)
		assert.True(t, s.TotalContributions.IsZero())
	})

	t.Run("rerun discards the previous line items", func(t *testing.T) {
		f := newFixture(t)
		fundID := id.NewFundID()
		f.seedMember(t, fundID, "1000.00", "12000.00")
		f.initiate(t, fundID)

		_, first, err := f.svc.Recalculate(ctx, fundID)
		require.NoError(t, err)
		require.Len(t, first, 1)

		f.seedMember(t, fundID, "1000.00", "12000.00")
		s, second, err := f.svc.Recalculate(ctx, fundID)
		require.NoError(t, err)
		require.Len(t, second, 2)

		stored, err := f.settlements.ListLineItems(ctx, s.ID)
		require.NoError(t, err)
		assert.Len(t, stored, 2)
	})

	t.Run("unknown fund is not found", func(t *testing.T) {
		f := newFixture(t)
		_, _, err := f.svc.Recalculate(ctx, id.NewFundID())
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	t.Run("confirmed settlement cannot be recalculated", func(t *testing.T) {
		f := newFixture(t)
		fundID := id.NewFundID()
		f.seedMember(t, fundID, "1000.00", "12000.00")
		f.initiate(t, fundID)
		_, _, err := f.svc.Recalculate(ctx, fundID)
		require.NoError(t, err)
		_, err = f.svc.Confirm(ctx, fundID, id.NewUserID())
		require.NoError(t, err)

		_, _, err = f.svc.Recalculate(ctx, fundID)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
	})
}

func TestConfirm(t *testing.T) {
	ctx := testutil.Context(t, testNow)

	t.Run("finalizes a reviewed settlement when every net payout is non-negative", func(t *testing.T) {
		f := newFixture(t)
		fundID := id.NewFundID()
		f.seedMember(t, fundID, "1000.00", "12000.00")
		f.initiate(t, fundID)
		_, _, err := f.svc.Recalculate(ctx, fundID)
		require.NoError(t, err)

		confirmedBy := id.NewUserID()
		s, err := f.svc.Confirm(ctx, fundID, confirmedBy)
		require.NoError(t, err)

		assert.Equal(t, models.StatusConfirmed, s.Status)
		require.NotNil(t, s.ConfirmedBy)
		assert.Equal(t, confirmedBy, *s.ConfirmedBy)
		require.NotNil(t, s.SettlementDate)
		assert.Equal(t, testNow, *s.SettlementDate)
		assert.Len(t, f.publisher.PublishedOfType(events.TypeDissolutionConfirmed), 1)
	})

	t.Run("one over-indebted member blocks the whole confirmation", func(t *testing.T) {
		f := newFixture(t)
		fundID := id.NewFundID()
		f.seedMember(t, fundID, "1000.00", "12000.00")
		debtor := f.seedMember(t, fundID, "1000.00", "1000.00")
		f.seedDebt(t, fundID, debtor, "5000.00", "100.00")
		f.initiate(t, fundID)
		_, _, err := f.svc.Recalculate(ctx, fundID)
		require.NoError(t, err)

		_, err = f.svc.Confirm(ctx, fundID, id.NewUserID())
		require.True(t, dErrors.HasCode(err, dErrors.CodeConflict))

		var de *dErrors.Error
		require.ErrorAs(t, err, &de)
		blockers, ok := de.Details["blockers"].([]map[string]any)
		require.True(t, ok)
		require.Len(t, blockers, 1)
		assert.Equal(t, debtor.String(), blockers[0]["user_id"])

		// Settlement stays reviewed; the debtor can still repay and trigger
		// another recalculation.
		current, err := f.settlements.GetByFund(ctx, fundID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusReviewed, current.Status)
	})

	t.Run("repaying the debt unblocks confirmation after recalculation", func(t *testing.T) {
		f := newFixture(t)
		fundID := id.NewFundID()
		debtor := f.seedMember(t, fundID, "1000.00", "1000.00")
		f.seedDebt(t, fundID, debtor, "5000.00", "0.00")
		f.initiate(t, fundID)
		_, _, err := f.svc.Recalculate(ctx, fundID)
		require.NoError(t, err)
		_, err = f.svc.Confirm(ctx, fundID, id.NewUserID())
		require.True(t, dErrors.HasCode(err, dErrors.CodeConflict))

		// Loan closes in the owning domain; the projection catches up.
		loans, err := f.projections.Loans(ctx, fundID)
		require.NoError(t, err)
		require.Len(t, loans, 1)
		require.NoError(t, f.projections.ApplyLoanClosed(ctx, loans[0].LoanID, testNow.Add(time.Hour)))

		_, _, err = f.svc.Recalculate(ctx, fundID)
		require.NoError(t, err)
		s, err := f.svc.Confirm(ctx, fundID, id.NewUserID())
		require.NoError(t, err)
		assert.Equal(t, models.StatusConfirmed, s.Status)
	})

	t.Run("confirming before review is a validation error", func(t *testing.T) {
		f := newFixture(t)
		fundID := id.NewFundID()
		f.initiate(t, fundID)

		_, err := f.svc.Confirm(ctx, fundID, id.NewUserID())
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("confirming twice conflicts", func(t *testing.T) {
		f := newFixture(t)
		fundID := id.NewFundID()
		f.initiate(t, fundID)
		_, _, err := f.svc.Recalculate(ctx, fundID)
		require.NoError(t, err)
		_, err = f.svc.Confirm(ctx, fundID, id.NewUserID())
		require.NoError(t, err)

		_, err = f.svc.Confirm(ctx, fundID, id.NewUserID())
		assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
	})
}

func TestGetReport(t *testing.T) {
	ctx := testutil.Context(t, testNow)

	t.Run("reports line items and confirmability", func(t *testing.T) {
		f := newFixture(t)
		fundID := id.NewFundID()
		f.seedMember(t, fundID, "1000.00", "12000.00")
		f.initiate(t, fundID)
		_, _, err := f.svc.Recalculate(ctx, fundID)
		require.NoError(t, err)

		report, err := f.svc.GetReport(ctx, fundID)
		require.NoError(t, err)

		assert.True(t, report.CanConfirm)
		assert.Empty(t, report.Blockers)
		require.Len(t, report.LineItems, 1)
		assert.Equal(t, "12000.00", report.LineItems[0].NetPayout.StringFixed(2))
	})

	t.Run("surfaces blockers without mutating anything", func(t *testing.T) {
		f := newFixture(t)
		fundID := id.NewFundID()
		debtor := f.seedMember(t, fundID, "1000.00", "100.00")
		f.seedDebt(t, fundID, debtor, "900.00", "0.00")
		f.initiate(t, fundID)
		_, _, err := f.svc.Recalculate(ctx, fundID)
		require.NoError(t, err)

		report, err := f.svc.GetReport(ctx, fundID)
		require.NoError(t, err)

		assert.False(t, report.CanConfirm)
		require.Len(t, report.Blockers, 1)
		assert.Equal(t, debtor, report.Blockers[0].UserID)
	})

	t.Run("unknown fund is not found", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.GetReport(ctx, id.NewFundID())
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}
