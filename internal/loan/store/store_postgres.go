package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"fundpool/internal/loan/models"
	id "fundpool/pkg/domain"
	"fundpool/pkg/platform/sentinel"
	platformtx "fundpool/pkg/platform/tx"
)

const uniqueViolation = "23505"

// PostgresStore persists loans in PostgreSQL.
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

func (s *PostgresStore) Create(ctx context.Context, l *models.Loan) error {
	query := `
		INSERT INTO loans (
			id, fund_id, user_id, principal, outstanding_principal,
			monthly_rate, unpaid_interest, minimum_principal,
			scheduled_installment, status, disbursed_at, closed_at,
			version, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err := s.exec(ctx).ExecContext(ctx, query,
		uuid.UUID(l.ID),
		uuid.UUID(l.FundID),
		uuid.UUID(l.UserID),
		l.Principal.StringFixed(2),
		l.OutstandingPrincipal.StringFixed(2),
		l.MonthlyRate.String(),
		l.UnpaidInterest.StringFixed(2),
		l.MinimumPrincipal.StringFixed(2),
		l.ScheduledInstallment.StringFixed(2),
		string(l.Status),
		l.DisbursedAt,
		l.ClosedAt,
		l.Version,
		l.CreatedAt,
		l.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert loan: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, loanID id.LoanID) (*models.Loan, error) {
	query := selectColumns + ` WHERE id = $1`
	row := s.exec(ctx).QueryRowContext(ctx, query, uuid.UUID(loanID))
	l, err := scanLoan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get loan: %w", err)
	}
	return l, nil
}

func (s *PostgresStore) Update(ctx context.Context, l *models.Loan, expectedVersion int64) error {
	query := `
		UPDATE loans
		SET outstanding_principal = $1, unpaid_interest = $2, status = $3,
		    closed_at = $4, version = $5, updated_at = $6
		WHERE id = $7 AND version = $8
	`
	res, err := s.exec(ctx).ExecContext(ctx, query,
		l.OutstandingPrincipal.StringFixed(2),
		l.UnpaidInterest.StringFixed(2),
		string(l.Status),
		l.ClosedAt,
		l.Version,
		l.UpdatedAt,
		uuid.UUID(l.ID),
		expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("update loan: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update loan: %w", err)
	}
	if affected == 0 {
		if _, getErr := s.Get(ctx, l.ID); errors.Is(getErr, sentinel.ErrNotFound) {
			return sentinel.ErrNotFound
		}
		return sentinel.ErrVersionMismatch
	}
	return nil
}

func (s *PostgresStore) ListByFund(ctx context.Context, fundID id.FundID) ([]*models.Loan, error) {
	query := selectColumns + ` WHERE fund_id = $1 ORDER BY created_at`
	return s.list(ctx, query, uuid.UUID(fundID))
}

func (s *PostgresStore) ListActive(ctx context.Context, after id.LoanID, limit int) ([]*models.Loan, error) {
	query := selectColumns + ` WHERE status = $1 AND id > $2 ORDER BY id LIMIT $3`
	return s.list(ctx, query, string(models.StatusActive), uuid.UUID(after), limit)
}

const selectColumns = `
	SELECT id, fund_id, user_id, principal, outstanding_principal,
	       monthly_rate, unpaid_interest, minimum_principal,
	       scheduled_installment, status, disbursed_at, closed_at,
	       version, created_at, updated_at
	FROM loans`

func (s *PostgresStore) list(ctx context.Context, query string, args ...any) ([]*models.Loan, error) {
	rows, err := s.exec(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query loans: %w", err)
	}
	defer rows.Close()

	var out []*models.Loan
	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan loan: %w", err)
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate loans: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLoan(row rowScanner) (*models.Loan, error) {
	var (
		l                models.Loan
		loanID, fund, user uuid.UUID
		status           string
		closedAt         sql.NullTime
		amounts          [6]string
	)
	if err := row.Scan(
		&loanID, &fund, &user, &amounts[0], &amounts[1], &amounts[2],
		&amounts[3], &amounts[4], &amounts[5], &status, &l.DisbursedAt,
		&closedAt, &l.Version, &l.CreatedAt, &l.UpdatedAt,
	); err != nil {
		return nil, err
	}
	parsed := make([]decimal.Decimal, len(amounts))
	for i, raw := range amounts {
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("parse loan amount %q: %w", raw, err)
		}
		parsed[i] = d
	}
	l.ID = id.LoanID(loanID)
	l.FundID = id.FundID(fund)
	l.UserID = id.UserID(user)
	l.Principal = parsed[0]
	l.OutstandingPrincipal = parsed[1]
	l.MonthlyRate = parsed[2]
	l.UnpaidInterest = parsed[3]
	l.MinimumPrincipal = parsed[4]
	l.ScheduledInstallment = parsed[5]
	l.Status = models.Status(status)
	if closedAt.Valid {
		t := closedAt.Time
		l.ClosedAt = &t
	}
	return &l, nil
}
