// Package store persists loan aggregates under the same optimistic
// concurrency discipline as contribution dues.
package store

import (
	"context"

	"fundpool/internal/loan/models"
	id "fundpool/pkg/domain"
)

// Store persists loans. Update is a compare-and-swap on the version column;
// sentinel.ErrVersionMismatch signals a lost race.
type Store interface {
	Create(ctx context.Context, l *models.Loan) error
	Get(ctx context.Context, loanID id.LoanID) (*models.Loan, error)
	Update(ctx context.Context, l *models.Loan, expectedVersion int64) error
	ListByFund(ctx context.Context, fundID id.FundID) ([]*models.Loan, error)

	// ListActive pages open loans in ID order for interest accrual runs.
	// Pass the last loan ID of the previous page as after; the zero ID
	// starts from the beginning.
	ListActive(ctx context.Context, after id.LoanID, limit int) ([]*models.Loan, error)
}
