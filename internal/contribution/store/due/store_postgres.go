package due

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"fundpool/internal/contribution/models"
	id "fundpool/pkg/domain"
	"fundpool/pkg/platform/sentinel"
	platformtx "fundpool/pkg/platform/tx"
)

// uniqueViolation is the Postgres error code raised by the
// (fund_id, user_id, month) unique index.
const uniqueViolation = "23505"

// PostgresStore persists contribution dues in PostgreSQL. Update guards on
// the version column so two writers cannot both apply against the same
// snapshot.
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

func (s *PostgresStore) Create(ctx context.Context, d *models.ContributionDue) error {
	query := `
		INSERT INTO contribution_dues (
			id, fund_id, user_id, month, amount_due, amount_paid,
			status, due_date, paid_date, version, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := s.exec(ctx).ExecContext(ctx, query,
		uuid.UUID(d.ID),
		uuid.UUID(d.FundID),
		uuid.UUID(d.UserID),
		int(d.Month),
		d.AmountDue.StringFixed(2),
		d.AmountPaid.StringFixed(2),
		string(d.Status),
		d.DueDate,
		d.PaidDate,
		d.Version,
		d.CreatedAt,
		d.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert contribution due: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, dueID id.DueID) (*models.ContributionDue, error) {
	query := selectColumns + ` WHERE id = $1`
	row := s.exec(ctx).QueryRowContext(ctx, query, uuid.UUID(dueID))
	d, err := scanDue(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get contribution due: %w", err)
	}
	return d, nil
}

func (s *PostgresStore) Update(ctx context.Context, d *models.ContributionDue, expectedVersion int64) error {
	query := `
		UPDATE contribution_dues
		SET amount_paid = $1, status = $2, paid_date = $3,
		    version = $4, updated_at = $5
		WHERE id = $6 AND version = $7
	`
	res, err := s.exec(ctx).ExecContext(ctx, query,
		d.AmountPaid.StringFixed(2),
		string(d.Status),
		d.PaidDate,
		d.Version,
		d.UpdatedAt,
		uuid.UUID(d.ID),
		expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("update contribution due: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update contribution due: %w", err)
	}
	if affected == 0 {
		// Distinguish a stale version from a vanished row.
		if _, getErr := s.Get(ctx, d.ID); errors.Is(getErr, sentinel.ErrNotFound) {
			return sentinel.ErrNotFound
		}
		return sentinel.ErrVersionMismatch
	}
	return nil
}

func (s *PostgresStore) ListByFundAndMonth(ctx context.Context, fundID id.FundID, month id.Month) ([]*models.ContributionDue, error) {
	query := selectColumns + ` WHERE fund_id = $1 AND month = $2 ORDER BY created_at`
	return s.list(ctx, query, uuid.UUID(fundID), int(month))
}

func (s *PostgresStore) ListPendingDueBefore(ctx context.Context, cutoff time.Time, limit int) ([]*models.ContributionDue, error) {
	query := selectColumns + ` WHERE status = $1 AND due_date < $2 ORDER BY due_date LIMIT $3`
	return s.list(ctx, query, string(models.StatusPending), cutoff, limit)
}

func (s *PostgresStore) ListOpenByMonth(ctx context.Context, month id.Month, limit int) ([]*models.ContributionDue, error) {
	query := selectColumns + ` WHERE month = $1 AND status IN ($2, $3, $4) ORDER BY created_at LIMIT $5`
	return s.list(ctx, query, int(month),
		string(models.StatusPending), string(models.StatusPartial), string(models.StatusLate), limit)
}

const selectColumns = `
	SELECT id, fund_id, user_id, month, amount_due, amount_paid,
	       status, due_date, paid_date, version, created_at, updated_at
	FROM contribution_dues`

func (s *PostgresStore) list(ctx context.Context, query string, args ...any) ([]*models.ContributionDue, error) {
	rows, err := s.exec(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query contribution dues: %w", err)
	}
	defer rows.Close()

	var out []*models.ContributionDue
	for rows.Next() {
		d, err := scanDue(rows)
		if err != nil {
			return nil, fmt.Errorf("scan contribution due: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contribution dues: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDue(row rowScanner) (*models.ContributionDue, error) {
	var (
		d                    models.ContributionDue
		dueID, fund, user    uuid.UUID
		month                int
		amountDue, amountPaid, status string
		paidDate             sql.NullTime
	)
	if err := row.Scan(
		&dueID, &fund, &user, &month, &amountDue, &amountPaid,
		&status, &d.DueDate, &paidDate, &d.Version, &d.CreatedAt, &d.UpdatedAt,
	); err != nil {
		return nil, err
	}
	due, err := decimal.NewFromString(amountDue)
	if err != nil {
		return nil, fmt.Errorf("parse amount_due %q: %w", amountDue, err)
	}
	paid, err := decimal.NewFromString(amountPaid)
	if err != nil {
		return nil, fmt.Errorf("parse amount_paid %q: %w", amountPaid, err)
	}
	d.ID = id.DueID(dueID)
	d.FundID = id.FundID(fund)
	d.UserID = id.UserID(user)
	d.Month = id.Month(month)
	d.AmountDue = due
	d.AmountPaid = paid
	d.Status = models.Status(status)
	if paidDate.Valid {
		t := paidDate.Time
		d.PaidDate = &t
	}
	return &d, nil
}
