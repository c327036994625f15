// Package store persists settlements and their line items.
package store

import (
	"context"

	"fundpool/internal/dissolution/models"
	id "fundpool/pkg/domain"
)

// Store persists settlement state. One settlement exists per fund; Create
// returns sentinel.ErrAlreadyUsed on a second initiation. Update is a
// compare-and-swap on the version column.
type Store interface {
	Create(ctx context.Context, s *models.Settlement) error

	// GetByFund returns the fund's settlement or sentinel.ErrNotFound.
	GetByFund(ctx context.Context, fundID id.FundID) (*models.Settlement, error)

	Update(ctx context.Context, s *models.Settlement, expectedVersion int64) error

	// ReplaceLineItems atomically discards existing line items and stores the
	// new set. Recalculation never leaves a partial mix of old and new items.
	ReplaceLineItems(ctx context.Context, settlementID id.SettlementID, items []models.LineItem) error

	ListLineItems(ctx context.Context, settlementID id.SettlementID) ([]models.LineItem, error)
}
