// Package service exposes the ledger transaction log to the other domains.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"fundpool/internal/ledger/models"
	"fundpool/internal/ledger/store"
	id "fundpool/pkg/domain"
	dErrors "fundpool/pkg/domain-errors"
	"fundpool/pkg/platform/sentinel"
)

// Service records and queries immutable ledger transactions.
type Service struct {
	store  store.Store
	logger *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func New(st store.Store, opts ...Option) (*Service, error) {
	if st == nil {
		return nil, errors.New("ledger store is required")
	}
	svc := &Service{store: st}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// RecordInput describes one money-moving fact.
type RecordInput struct {
	FundID         id.FundID
	UserID         id.UserID
	Kind           models.Kind
	Amount         decimal.Decimal
	IdempotencyKey string
	SourceRef      string
	RecordedBy     id.UserID
	Description    string
}

// Record appends a transaction. A duplicate (fund, idempotency key) returns
// CodeConflict; callers doing replay detection should use
// FindByIdempotencyKey first.
func (s *Service) Record(ctx context.Context, in RecordInput, now time.Time) (*models.Transaction, error) {
	tx, err := models.NewTransaction(in.FundID, in.UserID, in.Kind, in.Amount,
		in.IdempotencyKey, in.SourceRef, in.RecordedBy, in.Description, now)
	if err != nil {
		return nil, err
	}
	if err := s.store.Append(ctx, tx); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return nil, dErrors.New(dErrors.CodeConflict, "transaction already recorded for this idempotency key")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to append ledger transaction")
	}
	if s.logger != nil {
		s.logger.InfoContext(ctx, "ledger transaction recorded",
			"fund_id", tx.FundID,
			"kind", tx.Kind,
			"amount", tx.Amount,
			"idempotency_key", tx.IdempotencyKey,
		)
	}
	return tx, nil
}

// FindByIdempotencyKey returns the transaction for the key, or nil when none
// exists. Powers replay detection in payment recording.
func (s *Service) FindByIdempotencyKey(ctx context.Context, fundID id.FundID, key string) (*models.Transaction, error) {
	tx, err := s.store.FindByIdempotencyKey(ctx, fundID, key)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up ledger transaction")
	}
	return tx, nil
}

// ListByFund returns a fund's full transaction history.
func (s *Service) ListByFund(ctx context.Context, fundID id.FundID) ([]*models.Transaction, error) {
	txs, err := s.store.ListByFund(ctx, fundID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list ledger transactions")
	}
	return txs, nil
}

// ListByFundAndUser returns one member's transaction history.
func (s *Service) ListByFundAndUser(ctx context.Context, fundID id.FundID, userID id.UserID) ([]*models.Transaction, error) {
	txs, err := s.store.ListByFundAndUser(ctx, fundID, userID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list ledger transactions")
	}
	return txs, nil
}
