package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "fundpool/pkg/domain"
	dErrors "fundpool/pkg/domain-errors"
)

var (
	testNow     = time.Date(2026, 2, 3, 12, 0, 0, 0, time.UTC)
	testDueDate = time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
)

func newTestDue(t *testing.T, amount string) *ContributionDue {
	t.Helper()
	d, err := NewDue(id.NewFundID(), id.NewUserID(), id.Month(202602),
		decimal.RequireFromString(amount), testDueDate, testNow)
	require.NoError(t, err)
	return d
}

func TestNewDue(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		d := newTestDue(t, "500.00")
		assert.Equal(t, StatusPending, d.Status)
		assert.Equal(t, int64(1), d.Version)
		assert.Equal(t, "500.00", d.RemainingBalance().StringFixed(2))
		assert.Nil(t, d.PaidDate)
	})

	t.Run("rejects zero amount", func(t *testing.T) {
		_, err := NewDue(id.NewFundID(), id.NewUserID(), id.Month(202602),
			decimal.Zero, testDueDate, testNow)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("rejects sub-cent precision", func(t *testing.T) {
		_, err := NewDue(id.NewFundID(), id.NewUserID(), id.Month(202602),
			decimal.RequireFromString("500.005"), testDueDate, testNow)
		require.Error(t, err)
	})

	t.Run("rejects invalid month", func(t *testing.T) {
		_, err := NewDue(id.NewFundID(), id.NewUserID(), id.Month(202613),
			decimal.RequireFromString("500.00"), testDueDate, testNow)
		require.Error(t, err)
	})
}

func TestApplyPayment(t *testing.T) {
	t.Run("partial keeps the due open", func(t *testing.T) {
		d := newTestDue(t, "500.00")
		applied := d.ApplyPayment(decimal.RequireFromString("200.00"), testNow)
		assert.Equal(t, "200.00", applied.StringFixed(2))
		assert.Equal(t, StatusPartial, d.Status)
		assert.Equal(t, "300.00", d.RemainingBalance().StringFixed(2))
		assert.Equal(t, int64(2), d.Version)
		assert.Nil(t, d.PaidDate)
	})

	t.Run("exact settles the due and stamps the paid date", func(t *testing.T) {
		d := newTestDue(t, "500.00")
		d.ApplyPayment(decimal.RequireFromString("500.00"), testNow)
		assert.Equal(t, StatusPaid, d.Status)
		require.NotNil(t, d.PaidDate)
		assert.Equal(t, testNow, *d.PaidDate)
	})

	t.Run("overpayment applies only the remaining balance", func(t *testing.T) {
		d := newTestDue(t, "500.00")
		applied := d.ApplyPayment(decimal.RequireFromString("900.00"), testNow)
		assert.Equal(t, "500.00", applied.StringFixed(2))
		assert.True(t, d.RemainingBalance().IsZero())
	})

	t.Run("two partials settle", func(t *testing.T) {
		d := newTestDue(t, "500.00")
		d.ApplyPayment(decimal.RequireFromString("499.99"), testNow)
		assert.Equal(t, StatusPartial, d.Status)
		d.ApplyPayment(decimal.RequireFromString("0.01"), testNow)
		assert.Equal(t, StatusPaid, d.Status)
		assert.Equal(t, int64(3), d.Version)
	})
}

func TestPaymentGuards(t *testing.T) {
	t.Run("paid due rejects further payment", func(t *testing.T) {
		d := newTestDue(t, "500.00")
		d.ApplyPayment(decimal.RequireFromString("500.00"), testNow)
		err := d.CanReceivePayment()
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeAlreadyPaid))
	})

	t.Run("missed due rejects payment", func(t *testing.T) {
		d := newTestDue(t, "500.00")
		d.ApplyMissed(testNow)
		err := d.CanReceivePayment()
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidState))
	})

	t.Run("late due accepts payment", func(t *testing.T) {
		d := newTestDue(t, "500.00")
		d.ApplyLate(testNow)
		assert.NoError(t, d.CanReceivePayment())
	})
}

func TestOverdueGuards(t *testing.T) {
	afterGrace := testDueDate.Add(6 * 24 * time.Hour)

	t.Run("pending past grace becomes late", func(t *testing.T) {
		d := newTestDue(t, "500.00")
		assert.NoError(t, d.CanMarkLate(afterGrace))
	})

	t.Run("pending within grace stays pending", func(t *testing.T) {
		d := newTestDue(t, "500.00")
		assert.Error(t, d.CanMarkLate(testDueDate))
	})

	t.Run("partial never becomes late", func(t *testing.T) {
		d := newTestDue(t, "500.00")
		d.ApplyPayment(decimal.RequireFromString("100.00"), testNow)
		assert.Error(t, d.CanMarkLate(afterGrace))
	})

	t.Run("payable states can be missed", func(t *testing.T) {
		d := newTestDue(t, "500.00")
		assert.NoError(t, d.CanMarkMissed())
		d.ApplyLate(testNow)
		assert.NoError(t, d.CanMarkMissed())
	})

	t.Run("paid due cannot be missed", func(t *testing.T) {
		d := newTestDue(t, "500.00")
		d.ApplyPayment(decimal.RequireFromString("500.00"), testNow)
		assert.Error(t, d.CanMarkMissed())
	})
}
