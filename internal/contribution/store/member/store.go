// Package member maintains the contribution domain's roster projection,
// updated from member events and read during cycle generation.
package member

import (
	"context"

	"fundpool/internal/contribution/models"
	id "fundpool/pkg/domain"
)

// Store is the roster projection. Upsert handles both joins and rejoins:
// a returning member is reactivated with the amount carried by the event.
type Store interface {
	Upsert(ctx context.Context, m models.Member) error

	// Deactivate marks the member inactive. Missing members are a no-op so
	// duplicate removal events stay harmless.
	Deactivate(ctx context.Context, fundID id.FundID, userID id.UserID) error

	// ListActive returns the members that owe a contribution this cycle.
	ListActive(ctx context.Context, fundID id.FundID) ([]models.Member, error)
}
