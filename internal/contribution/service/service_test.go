package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fundpool/internal/contribution/models"
	"fundpool/internal/contribution/store/due"
	"fundpool/internal/contribution/store/member"
	ledgermodels "fundpool/internal/ledger/models"
	ledgerstore "fundpool/internal/ledger/store"

	ledger "fundpool/internal/ledger/service"
	id "fundpool/pkg/domain"
	dErrors "fundpool/pkg/domain-errors"
	"fundpool/pkg/platform/events"
	"fundpool/pkg/testutil"
)

var testNow = time.Date(2026, 2, 3, 12, 0, 0, 0, time.UTC)

type fixture struct {
	svc       *Service
	dues      *due.MemoryStore
	roster    *member.MemoryStore
	ledger    *ledger.Service
	ledgerSt  *ledgerstore.MemoryStore
	publisher *events.MemoryPublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dues := due.NewMemory()
	roster := member.NewMemory()
	ledgerSt := ledgerstore.NewMemory()
	ledgerSvc, err := ledger.New(ledgerSt)
	require.NoError(t, err)
	publisher := events.NewMemoryPublisher()
	svc, err := New(dues, roster, ledgerSvc, WithEventPublisher(publisher))
	require.NoError(t, err)
	return &fixture{
		svc:       svc,
		dues:      dues,
		roster:    roster,
		ledger:    ledgerSvc,
		ledgerSt:  ledgerSt,
		publisher: publisher,
	}
}

func (f *fixture) addMember(t *testing.T, fundID id.FundID, amount string) id.UserID {
	t.Helper()
	userID := id.NewUserID()
	require.NoError(t, f.roster.Upsert(testutil.Context(t, testNow), models.Member{
		FundID:                    fundID,
		UserID:                    userID,
		MonthlyContributionAmount: decimal.RequireFromString(amount),
		Active:                    true,
		JoinedAt:                  testNow,
	}))
	return userID
}

func (f *fixture) generate(t *testing.T, fundID id.FundID, month id.Month) []*models.ContributionDue {
	t.Helper()
	ctx := testutil.Context(t, testNow)
	_, err := f.svc.GenerateDues(ctx, fundID, month)
	require.NoError(t, err)
	dues, err := f.svc.ListCycle(ctx, fundID, month)
	require.NoError(t, err)
	return dues
}

func dueIDs(dues []*models.ContributionDue) []id.DueID {
	out := make([]id.DueID, 0, len(dues))
	for _, d := range dues {
		out = append(out, d.ID)
	}
	return out
}

func TestGenerateDues(t *testing.T) {
	month := id.Month(202602)

	t.Run("fund with no active members", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.GenerateDues(testutil.Context(t, testNow), id.NewFundID(), month)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNoMembers))
	})

	t.Run("one due per active member", func(t *testing.T) {
		f := newFixture(t)
		fundID := id.NewFundID()
		f.addMember(t, fundID, "500.00")
		f.addMember(t, fundID, "1500.00")

		result, err := f.svc.GenerateDues(testutil.Context(t, testNow), fundID, month)
		require.NoError(t, err)
		assert.Equal(t, 2, result.Generated)
		assert.Equal(t, 0, result.Skipped)

		dues, err := f.svc.ListCycle(testutil.Context(t, testNow), fundID, month)
		require.NoError(t, err)
		require.Len(t, dues, 2)
		for _, d := range dues {
			assert.Equal(t, models.StatusPending, d.Status)
			assert.Equal(t, int64(1), d.Version)
			assert.True(t, d.AmountPaid.IsZero())
		}
		assert.Len(t, f.publisher.PublishedOfType(events.TypeDuesGenerated), 1)
	})

	t.Run("inactive members are excluded", func(t *testing.T) {
		f := newFixture(t)
		fundID := id.NewFundID()
		f.addMember(t, fundID, "500.00")
		removed := f.addMember(t, fundID, "800.00")
		require.NoError(t, f.roster.Deactivate(testutil.Context(t, testNow), fundID, removed))

		result, err := f.svc.GenerateDues(testutil.Context(t, testNow), fundID, month)
		require.NoError(t, err)
		assert.Equal(t, 1, result.Generated)
	})

	t.Run("re-running the same cycle creates nothing further", func(t *testing.T) {
		f := newFixture(t)
		fundID := id.NewFundID()
		f.addMember(t, fundID, "500.00")
		f.addMember(t, fundID, "1500.00")

		first := f.generate(t, fundID, month)

		result, err := f.svc.GenerateDues(testutil.Context(t, testNow), fundID, month)
		require.NoError(t, err)
		assert.Equal(t, 0, result.Generated)
		assert.Equal(t, 2, result.Skipped)

		second, err := f.svc.ListCycle(testutil.Context(t, testNow), fundID, month)
		require.NoError(t, err)
		assert.ElementsMatch(t, dueIDs(first), dueIDs(second))
	})
}

func TestRecordPayment(t *testing.T) {
	month := id.Month(202602)

	setup := func(t *testing.T, amount string) (*fixture, id.FundID, *models.ContributionDue) {
		f := newFixture(t)
		fundID := id.NewFundID()
		f.addMember(t, fundID, amount)
		dues := f.generate(t, fundID, month)
		require.Len(t, dues, 1)
		return f, fundID, dues[0]
	}

	payment := func(fundID id.FundID, d *models.ContributionDue, amount, key string) PaymentInput {
		return PaymentInput{
			FundID:          fundID,
			DueID:           d.ID,
			Amount:          decimal.RequireFromString(amount),
			IdempotencyKey:  key,
			ExpectedVersion: d.Version,
			RecordedBy:      d.UserID,
		}
	}

	t.Run("full payment settles the due", func(t *testing.T) {
		f, fundID, d := setup(t, "500.00")
		ctx := testutil.Context(t, testNow)

		result, err := f.svc.RecordPayment(ctx, payment(fundID, d, "500.00", "key-1"))
		require.NoError(t, err)
		assert.Equal(t, "500.00", result.AmountApplied.StringFixed(2))
		assert.Equal(t, "0.00", result.RemainingBalance.StringFixed(2))
		assert.Equal(t, models.StatusPaid, result.Status)
		assert.Equal(t, int64(2), result.Version)

		stored, err := f.svc.GetDue(ctx, fundID, d.ID)
		require.NoError(t, err)
		require.NotNil(t, stored.PaidDate)
		assert.Equal(t, testNow, *stored.PaidDate)

		txs, err := f.ledger.ListByFund(ctx, fundID)
		require.NoError(t, err)
		require.Len(t, txs, 1)
		assert.Equal(t, d.ID.String(), txs[0].SourceRef)
		assert.Len(t, f.publisher.PublishedOfType(events.TypeContributionPaid), 1)
	})

	t.Run("partial payment leaves a balance", func(t *testing.T) {
		f, fundID, d := setup(t, "500.00")
		ctx := testutil.Context(t, testNow)

		result, err := f.svc.RecordPayment(ctx, payment(fundID, d, "200.00", "key-1"))
		require.NoError(t, err)
		assert.Equal(t, "300.00", result.RemainingBalance.StringFixed(2))
		assert.Equal(t, models.StatusPartial, result.Status)
	})

	t.Run("overpayment is capped at the remaining balance", func(t *testing.T) {
		f, fundID, d := setup(t, "500.00")
		ctx := testutil.Context(t, testNow)

		result, err := f.svc.RecordPayment(ctx, payment(fundID, d, "750.00", "key-1"))
		require.NoError(t, err)
		assert.Equal(t, "500.00", result.AmountApplied.StringFixed(2))
		assert.Equal(t, models.StatusPaid, result.Status)
	})

	t.Run("replay with the same key returns the identical result without re-mutating", func(t *testing.T) {
		f, fundID, d := setup(t, "500.00")
		ctx := testutil.Context(t, testNow)

		first, err := f.svc.RecordPayment(ctx, payment(fundID, d, "200.00", "key-1"))
		require.NoError(t, err)

		// Same key, even with a stale version: the ledger lookup short-circuits
		// before the version check.
		replayIn := payment(fundID, d, "200.00", "key-1")
		second, err := f.svc.RecordPayment(ctx, replayIn)
		require.NoError(t, err)
		assert.Equal(t, first, second)

		txs, err := f.ledger.ListByFund(ctx, fundID)
		require.NoError(t, err)
		assert.Len(t, txs, 1)

		stored, err := f.svc.GetDue(ctx, fundID, d.ID)
		require.NoError(t, err)
		assert.Equal(t, "200.00", stored.AmountPaid.StringFixed(2))
	})

	t.Run("stale expected version fails with a concurrency conflict", func(t *testing.T) {
		f, fundID, d := setup(t, "500.00")
		ctx := testutil.Context(t, testNow)

		winner, err := f.svc.RecordPayment(ctx, payment(fundID, d, "100.00", "key-winner"))
		require.NoError(t, err)

		// Loser still holds version 1.
		_, err = f.svc.RecordPayment(ctx, payment(fundID, d, "250.00", "key-loser"))
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeConcurrencyConflict))

		// Final state reflects only the winner's effect.
		stored, err := f.svc.GetDue(ctx, fundID, d.ID)
		require.NoError(t, err)
		assert.Equal(t, "100.00", stored.AmountPaid.StringFixed(2))
		assert.Equal(t, winner.Version, stored.Version)

		txs, err := f.ledger.ListByFund(ctx, fundID)
		require.NoError(t, err)
		assert.Len(t, txs, 1)
	})

	t.Run("a failed ledger append leaves the due payable and the retry applies once", func(t *testing.T) {
		dues := due.NewMemory()
		roster := member.NewMemory()
		ledgerSt := ledgerstore.NewMemory()
		faulting := &faultingLedgerStore{Store: ledgerSt, failures: 1}
		ledgerSvc, err := ledger.New(faulting)
		require.NoError(t, err)
		svc, err := New(dues, roster, ledgerSvc)
		require.NoError(t, err)

		ctx := testutil.Context(t, testNow)
		fundID := id.NewFundID()
		userID := id.NewUserID()
		require.NoError(t, roster.Upsert(ctx, models.Member{
			FundID:                    fundID,
			UserID:                    userID,
			MonthlyContributionAmount: decimal.RequireFromString("500.00"),
			Active:                    true,
			JoinedAt:                  testNow,
		}))
		_, err = svc.GenerateDues(ctx, fundID, month)
		require.NoError(t, err)
		cycle, err := svc.ListCycle(ctx, fundID, month)
		require.NoError(t, err)
		require.Len(t, cycle, 1)
		d := cycle[0]

		in := payment(fundID, d, "200.00", "key-1")
		_, err = svc.RecordPayment(ctx, in)
		require.Error(t, err)

		// Nothing half-applied: the due did not advance, the key is not
		// burned, and the same version token is still the current one.
		stored, err := svc.GetDue(ctx, fundID, d.ID)
		require.NoError(t, err)
		assert.Equal(t, d.Version, stored.Version)
		assert.True(t, stored.AmountPaid.IsZero(), "amount paid: %s", stored.AmountPaid)

		result, err := svc.RecordPayment(ctx, in)
		require.NoError(t, err)
		assert.Equal(t, "200.00", result.AmountApplied.StringFixed(2))

		final, err := svc.GetDue(ctx, fundID, d.ID)
		require.NoError(t, err)
		assert.Equal(t, "200.00", final.AmountPaid.StringFixed(2))

		txs, err := ledgerSvc.ListByFund(ctx, fundID)
		require.NoError(t, err)
		assert.Len(t, txs, 1)
	})

	t.Run("paying a settled due fails with already paid", func(t *testing.T) {
		f, fundID, d := setup(t, "500.00")
		ctx := testutil.Context(t, testNow)

		first, err := f.svc.RecordPayment(ctx, payment(fundID, d, "500.00", "key-1"))
		require.NoError(t, err)

		in := payment(fundID, d, "50.00", "key-2")
		in.ExpectedVersion = first.Version
		_, err = f.svc.RecordPayment(ctx, in)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeAlreadyPaid))
	})

	t.Run("paying a missed due fails with invalid state", func(t *testing.T) {
		f, fundID, d := setup(t, "500.00")
		ctx := testutil.Context(t, testNow)

		loaded, err := f.dues.Get(ctx, d.ID)
		require.NoError(t, err)
		expected := loaded.Version
		loaded.ApplyMissed(testNow)
		require.NoError(t, f.dues.Update(ctx, loaded, expected))

		in := payment(fundID, d, "50.00", "key-1")
		in.ExpectedVersion = loaded.Version
		_, err = f.svc.RecordPayment(ctx, in)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidState))
	})

	t.Run("unknown due fails with not found", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.RecordPayment(testutil.Context(t, testNow), PaymentInput{
			FundID:          id.NewFundID(),
			DueID:           id.NewDueID(),
			Amount:          decimal.RequireFromString("10.00"),
			IdempotencyKey:  "key-1",
			ExpectedVersion: 1,
			RecordedBy:      id.NewUserID(),
		})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	t.Run("due belonging to another fund is not found", func(t *testing.T) {
		f, _, d := setup(t, "500.00")
		in := payment(id.NewFundID(), d, "50.00", "key-1")
		_, err := f.svc.RecordPayment(testutil.Context(t, testNow), in)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func TestOverdueSweeps(t *testing.T) {
	month := id.Month(202602)

	t.Run("late sweep moves pending dues past grace", func(t *testing.T) {
		f := newFixture(t)
		fundID := id.NewFundID()
		f.addMember(t, fundID, "500.00")
		dues := f.generate(t, fundID, month)

		// Due date is Feb 10th; grace is 5 days.
		beforeGrace := time.Date(2026, 2, 14, 0, 0, 0, 0, time.UTC)
		result, err := f.svc.MarkLate(testutil.Context(t, beforeGrace))
		require.NoError(t, err)
		assert.Equal(t, 0, result.Transitioned)

		afterGrace := time.Date(2026, 2, 16, 0, 0, 0, 0, time.UTC)
		result, err = f.svc.MarkLate(testutil.Context(t, afterGrace))
		require.NoError(t, err)
		assert.Equal(t, 1, result.Transitioned)

		stored, err := f.svc.GetDue(testutil.Context(t, afterGrace), fundID, dues[0].ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusLate, stored.Status)
		assert.Len(t, f.publisher.PublishedOfType(events.TypeContributionOverdue), 1)

		// Re-running finds nothing further.
		result, err = f.svc.MarkLate(testutil.Context(t, afterGrace))
		require.NoError(t, err)
		assert.Equal(t, 0, result.Transitioned)
	})

	t.Run("late dues still accept payment", func(t *testing.T) {
		f := newFixture(t)
		fundID := id.NewFundID()
		f.addMember(t, fundID, "500.00")
		dues := f.generate(t, fundID, month)

		afterGrace := time.Date(2026, 2, 16, 0, 0, 0, 0, time.UTC)
		_, err := f.svc.MarkLate(testutil.Context(t, afterGrace))
		require.NoError(t, err)

		stored, err := f.svc.GetDue(testutil.Context(t, afterGrace), fundID, dues[0].ID)
		require.NoError(t, err)
		result, err := f.svc.RecordPayment(testutil.Context(t, afterGrace), PaymentInput{
			FundID:          fundID,
			DueID:           stored.ID,
			Amount:          decimal.RequireFromString("500.00"),
			IdempotencyKey:  "key-late",
			ExpectedVersion: stored.Version,
			RecordedBy:      stored.UserID,
		})
		require.NoError(t, err)
		assert.Equal(t, models.StatusPaid, result.Status)
	})

	t.Run("missed sweep closes out the previous cycle", func(t *testing.T) {
		f := newFixture(t)
		fundID := id.NewFundID()
		f.addMember(t, fundID, "500.00")
		f.addMember(t, fundID, "800.00")
		dues := f.generate(t, fundID, month)

		// Pay one due fully; the other stays open.
		paid := dues[0]
		_, err := f.svc.RecordPayment(testutil.Context(t, testNow), PaymentInput{
			FundID:          fundID,
			DueID:           paid.ID,
			Amount:          paid.AmountDue,
			IdempotencyKey:  "key-paid",
			ExpectedVersion: paid.Version,
			RecordedBy:      paid.UserID,
		})
		require.NoError(t, err)

		// March: February has closed.
		march := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
		result, err := f.svc.MarkMissed(testutil.Context(t, march))
		require.NoError(t, err)
		assert.Equal(t, 1, result.Transitioned)

		open, err := f.svc.GetDue(testutil.Context(t, march), fundID, dues[1].ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusMissed, open.Status)

		settled, err := f.svc.GetDue(testutil.Context(t, march), fundID, paid.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusPaid, settled.Status)

		// Idempotent.
		result, err = f.svc.MarkMissed(testutil.Context(t, march))
		require.NoError(t, err)
		assert.Equal(t, 0, result.Transitioned)
	})
}

func TestHandleMemberEvent(t *testing.T) {
	f := newFixture(t)
	fundID := id.NewFundID()
	userID := id.NewUserID()
	ctx := testutil.Context(t, testNow)

	joined := func(amount string) events.Envelope {
		envelope, err := events.New(events.TypeMemberJoined, fundID, userID.String(), testNow, events.MemberJoined{
			FundID:                    fundID,
			UserID:                    userID,
			MonthlyContributionAmount: decimal.RequireFromString(amount),
		})
		require.NoError(t, err)
		return envelope
	}

	require.NoError(t, f.svc.HandleMemberEvent(ctx, joined("500.00")))
	members, err := f.roster.ListActive(ctx, fundID)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, "500.00", members[0].MonthlyContributionAmount.StringFixed(2))

	// Duplicate delivery is harmless.
	require.NoError(t, f.svc.HandleMemberEvent(ctx, joined("500.00")))
	members, err = f.roster.ListActive(ctx, fundID)
	require.NoError(t, err)
	assert.Len(t, members, 1)

	removed, err := events.New(events.TypeMemberRemoved, fundID, userID.String(), testNow, events.MemberRemoved{
		FundID: fundID,
		UserID: userID,
	})
	require.NoError(t, err)
	require.NoError(t, f.svc.HandleMemberEvent(ctx, removed))
	members, err = f.roster.ListActive(ctx, fundID)
	require.NoError(t, err)
	assert.Empty(t, members)

	// Rejoining reactivates with the new amount.
	require.NoError(t, f.svc.HandleMemberEvent(ctx, joined("750.00")))
	members, err = f.roster.ListActive(ctx, fundID)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, "750.00", members[0].MonthlyContributionAmount.StringFixed(2))
}

// faultingLedgerStore fails the first n Append calls, then delegates.
type faultingLedgerStore struct {
	ledgerstore.Store
	failures int
}

func (s *faultingLedgerStore) Append(ctx context.Context, tx *ledgermodels.Transaction) error {
	if s.failures > 0 {
		s.failures--
		return errors.New("ledger storage unavailable")
	}
	return s.Store.Append(ctx, tx)
}
