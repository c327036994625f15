// Package due persists contribution due aggregates under an optimistic
// concurrency discipline.
package due

import (
	"context"
	"time"

	"fundpool/internal/contribution/models"
	id "fundpool/pkg/domain"
)

// Store persists contribution dues.
//
// Update is a compare-and-swap: it succeeds only when the stored version
// equals expectedVersion, returning sentinel.ErrVersionMismatch otherwise.
// There is no blocking; losers refetch and retry.
type Store interface {
	// Create inserts a new due. Returns sentinel.ErrAlreadyUsed when a due
	// for the same (fund, user, month) already exists — this is what makes
	// cycle generation idempotent.
	Create(ctx context.Context, d *models.ContributionDue) error

	// Get returns the due or sentinel.ErrNotFound.
	Get(ctx context.Context, dueID id.DueID) (*models.ContributionDue, error)

	// Update persists a mutated due when the stored version still equals
	// expectedVersion (the version the caller loaded, before the aggregate
	// bumped it).
	Update(ctx context.Context, d *models.ContributionDue, expectedVersion int64) error

	// ListByFundAndMonth returns all dues of one cycle.
	ListByFundAndMonth(ctx context.Context, fundID id.FundID, month id.Month) ([]*models.ContributionDue, error)

	// ListPendingDueBefore returns up to limit Pending dues whose due date
	// is before the cutoff. Feeds the late sweep.
	ListPendingDueBefore(ctx context.Context, cutoff time.Time, limit int) ([]*models.ContributionDue, error)

	// ListOpenByMonth returns up to limit dues of the month still in a
	// payable state. Feeds the missed sweep after the month closes.
	ListOpenByMonth(ctx context.Context, month id.Month, limit int) ([]*models.ContributionDue, error)
}
