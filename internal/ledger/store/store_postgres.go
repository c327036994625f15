package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"fundpool/internal/ledger/models"
	id "fundpool/pkg/domain"
	"fundpool/pkg/platform/sentinel"
	platformtx "fundpool/pkg/platform/tx"
)

// uniqueViolation is the Postgres error code raised by the
// (fund_id, idempotency_key) unique index.
const uniqueViolation = "23505"

// PostgresStore persists ledger transactions in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// exec joins the context transaction when a service opened one.
func (s *PostgresStore) exec(ctx context.Context) platformtx.DB {
	return platformtx.Executor(ctx, s.db)
}

func (s *PostgresStore) Append(ctx context.Context, tx *models.Transaction) error {
	query := `
		INSERT INTO ledger_transactions (
			id, fund_id, user_id, kind, amount, idempotency_key,
			source_ref, recorded_by, description, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := s.exec(ctx).ExecContext(ctx, query,
		uuid.UUID(tx.ID),
		uuid.UUID(tx.FundID),
		uuid.UUID(tx.UserID),
		string(tx.Kind),
		tx.Amount.StringFixed(2),
		tx.IdempotencyKey,
		tx.SourceRef,
		uuid.UUID(tx.RecordedBy),
		tx.Description,
		tx.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert ledger transaction: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByIdempotencyKey(ctx context.Context, fundID id.FundID, key string) (*models.Transaction, error) {
	query := selectColumns + ` WHERE fund_id = $1 AND idempotency_key = $2`
	row := s.exec(ctx).QueryRowContext(ctx, query, uuid.UUID(fundID), key)
	tx, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find ledger transaction: %w", err)
	}
	return tx, nil
}

func (s *PostgresStore) ListByFund(ctx context.Context, fundID id.FundID) ([]*models.Transaction, error) {
	query := selectColumns + ` WHERE fund_id = $1 ORDER BY created_at`
	return s.list(ctx, query, uuid.UUID(fundID))
}

func (s *PostgresStore) ListByFundAndUser(ctx context.Context, fundID id.FundID, userID id.UserID) ([]*models.Transaction, error) {
	query := selectColumns + ` WHERE fund_id = $1 AND user_id = $2 ORDER BY created_at`
	return s.list(ctx, query, uuid.UUID(fundID), uuid.UUID(userID))
}

const selectColumns = `
	SELECT id, fund_id, user_id, kind, amount, idempotency_key,
	       source_ref, recorded_by, description, created_at
	FROM ledger_transactions`

func (s *PostgresStore) list(ctx context.Context, query string, args ...any) ([]*models.Transaction, error) {
	rows, err := s.exec(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query ledger transactions: %w", err)
	}
	defer rows.Close()

	var out []*models.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ledger transaction: %w", err)
		}
		out = append(out, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger transactions: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*models.Transaction, error) {
	var (
		tx                     models.Transaction
		txID, fund, user, recorder uuid.UUID
		kind, amount           string
	)
	if err := row.Scan(
		&txID, &fund, &user, &kind, &amount, &tx.IdempotencyKey,
		&tx.SourceRef, &recorder, &tx.Description, &tx.CreatedAt,
	); err != nil {
		return nil, err
	}
	parsed, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	tx.ID = id.TransactionID(txID)
	tx.FundID = id.FundID(fund)
	tx.UserID = id.UserID(user)
	tx.RecordedBy = id.UserID(recorder)
	tx.Kind = models.Kind(kind)
	tx.Amount = parsed
	return &tx, nil
}
