// Package store persists the append-only ledger transaction log.
package store

import (
	"context"

	"fundpool/internal/ledger/models"
	id "fundpool/pkg/domain"
)

// Store is the append-only transaction log. There is deliberately no update
// or delete: corrections are new transactions.
type Store interface {
	// Append inserts a transaction. Returns sentinel.ErrAlreadyUsed when a
	// transaction with the same (fund, idempotency key) already exists.
	Append(ctx context.Context, tx *models.Transaction) error

	// FindByIdempotencyKey returns the transaction recorded under the key,
	// or sentinel.ErrNotFound.
	FindByIdempotencyKey(ctx context.Context, fundID id.FundID, key string) (*models.Transaction, error)

	// ListByFund returns a fund's transactions ordered by creation time.
	ListByFund(ctx context.Context, fundID id.FundID) ([]*models.Transaction, error)

	// ListByFundAndUser returns one member's transactions ordered by creation time.
	ListByFundAndUser(ctx context.Context, fundID id.FundID, userID id.UserID) ([]*models.Transaction, error)
}
