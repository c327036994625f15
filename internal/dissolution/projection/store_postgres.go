package projection

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	id "fundpool/pkg/domain"
)

// PostgresStore persists projections in PostgreSQL. Idempotency comes from
// the schema: natural-identity primary keys with ON CONFLICT upserts, and an
// interest-income table keyed by event ID so redelivered repayments cannot
// double-count the pool.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) ApplyMemberJoined(ctx context.Context, fundID id.FundID, userID id.UserID, weight decimal.Decimal) error {
	query := `
		INSERT INTO projection_members (fund_id, user_id, weight, active)
		VALUES ($1, $2, $3, TRUE)
		ON CONFLICT (fund_id, user_id) DO UPDATE
		SET weight = EXCLUDED.weight, active = TRUE
	`
	if _, err := s.db.ExecContext(ctx, query, uuid.UUID(fundID), uuid.UUID(userID), weight.StringFixed(2)); err != nil {
		return fmt.Errorf("apply member joined: %w", err)
	}
	return nil
}

func (s *PostgresStore) ApplyMemberRemoved(ctx context.Context, fundID id.FundID, userID id.UserID) error {
	query := `UPDATE projection_members SET active = FALSE WHERE fund_id = $1 AND user_id = $2`
	if _, err := s.db.ExecContext(ctx, query, uuid.UUID(fundID), uuid.UUID(userID)); err != nil {
		return fmt.Errorf("apply member removed: %w", err)
	}
	return nil
}

func (s *PostgresStore) ApplyLoanDisbursed(ctx context.Context, loanID id.LoanID, fundID id.FundID, userID id.UserID, principal decimal.Decimal, at time.Time) error {
	query := `
		INSERT INTO projection_loans (
			loan_id, fund_id, user_id, outstanding_principal,
			unpaid_interest, closed, last_event_at
		)
		VALUES ($1, $2, $3, $4, '0', FALSE, $5)
		ON CONFLICT (loan_id) DO NOTHING
	`
	if _, err := s.db.ExecContext(ctx, query,
		uuid.UUID(loanID), uuid.UUID(fundID), uuid.UUID(userID),
		principal.StringFixed(2), at,
	); err != nil {
		return fmt.Errorf("apply loan disbursed: %w", err)
	}
	return nil
}

func (s *PostgresStore) ApplyRepayment(ctx context.Context, eventID uuid.UUID, loanID id.LoanID, fundID id.FundID, outstandingPrincipal, unpaidInterest, interestPaid decimal.Decimal, at time.Time) error {
	query := `
		UPDATE projection_loans
		SET outstanding_principal = $1, unpaid_interest = $2, last_event_at = $3
		WHERE loan_id = $4 AND last_event_at <= $3
	`
	if _, err := s.db.ExecContext(ctx, query,
		outstandingPrincipal.StringFixed(2), unpaidInterest.StringFixed(2), at, uuid.UUID(loanID),
	); err != nil {
		return fmt.Errorf("apply repayment: %w", err)
	}

	if interestPaid.IsPositive() {
		query = `
			INSERT INTO projection_interest_income (event_id, fund_id, amount)
			VALUES ($1, $2, $3)
			ON CONFLICT (event_id) DO NOTHING
		`
		if _, err := s.db.ExecContext(ctx, query,
			eventID, uuid.UUID(fundID), interestPaid.StringFixed(2),
		); err != nil {
			return fmt.Errorf("apply interest income: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) ApplyLoanClosed(ctx context.Context, loanID id.LoanID, at time.Time) error {
	query := `
		UPDATE projection_loans
		SET outstanding_principal = '0', unpaid_interest = '0',
		    closed = TRUE, last_event_at = $1
		WHERE loan_id = $2
	`
	if _, err := s.db.ExecContext(ctx, query, at, uuid.UUID(loanID)); err != nil {
		return fmt.Errorf("apply loan closed: %w", err)
	}
	return nil
}

// ApplyContributionPaid folds one payment into the due's totals. Applied
// events are recorded per due in the same transaction, so a redelivered
// event is a no-op even when two payments share one occurred-at timestamp.
func (s *PostgresStore) ApplyContributionPaid(ctx context.Context, eventID uuid.UUID, dueID id.DueID, fundID id.FundID, userID id.UserID, applied, remaining decimal.Decimal, at time.Time) error {
	t, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin contribution projection tx: %w", err)
	}
	defer func() {
		_ = t.Rollback()
	}()

	res, err := t.ExecContext(ctx, `
		INSERT INTO projection_contribution_events (event_id, due_id)
		VALUES ($1, $2)
		ON CONFLICT (event_id) DO NOTHING
	`, eventID, uuid.UUID(dueID))
	if err != nil {
		return fmt.Errorf("record contribution event: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("record contribution event: %w", err)
	}
	if inserted == 0 {
		return nil
	}

	query := `
		INSERT INTO projection_contributions (
			due_id, fund_id, user_id, total_paid, unpaid,
			last_event_id, last_event_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (due_id) DO UPDATE
		SET total_paid = projection_contributions.total_paid + EXCLUDED.total_paid,
		    unpaid = CASE WHEN projection_contributions.last_event_at <= EXCLUDED.last_event_at
		                  THEN EXCLUDED.unpaid ELSE projection_contributions.unpaid END,
		    last_event_id = CASE WHEN projection_contributions.last_event_at <= EXCLUDED.last_event_at
		                         THEN EXCLUDED.last_event_id ELSE projection_contributions.last_event_id END,
		    last_event_at = GREATEST(projection_contributions.last_event_at, EXCLUDED.last_event_at)
	`
	if _, err := t.ExecContext(ctx, query,
		uuid.UUID(dueID), uuid.UUID(fundID), uuid.UUID(userID),
		applied.StringFixed(2), remaining.StringFixed(2), eventID, at,
	); err != nil {
		return fmt.Errorf("apply contribution paid: %w", err)
	}
	if err := t.Commit(); err != nil {
		return fmt.Errorf("commit contribution projection: %w", err)
	}
	return nil
}

func (s *PostgresStore) ActiveMembers(ctx context.Context, fundID id.FundID) ([]Member, error) {
	query := `
		SELECT fund_id, user_id, weight, active
		FROM projection_members
		WHERE fund_id = $1 AND active = TRUE
		ORDER BY user_id
	`
	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(fundID))
	if err != nil {
		return nil, fmt.Errorf("query member projections: %w", err)
	}
	defer rows.Close()

	var out []Member
	for rows.Next() {
		var (
			m          Member
			fund, user uuid.UUID
			weight     string
		)
		if err := rows.Scan(&fund, &user, &weight, &m.Active); err != nil {
			return nil, fmt.Errorf("scan member projection: %w", err)
		}
		parsed, err := decimal.NewFromString(weight)
		if err != nil {
			return nil, fmt.Errorf("parse weight %q: %w", weight, err)
		}
		m.FundID = id.FundID(fund)
		m.UserID = id.UserID(user)
		m.Weight = parsed
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Loans(ctx context.Context, fundID id.FundID) ([]Loan, error) {
	query := `
		SELECT loan_id, fund_id, user_id, outstanding_principal,
		       unpaid_interest, closed, last_event_at
		FROM projection_loans
		WHERE fund_id = $1
		ORDER BY loan_id
	`
	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(fundID))
	if err != nil {
		return nil, fmt.Errorf("query loan projections: %w", err)
	}
	defer rows.Close()

	var out []Loan
	for rows.Next() {
		var (
			l                  Loan
			loan, fund, user   uuid.UUID
			principal, intr    string
		)
		if err := rows.Scan(&loan, &fund, &user, &principal, &intr, &l.Closed, &l.LastEventAt); err != nil {
			return nil, fmt.Errorf("scan loan projection: %w", err)
		}
		p, err := decimal.NewFromString(principal)
		if err != nil {
			return nil, fmt.Errorf("parse outstanding_principal %q: %w", principal, err)
		}
		i, err := decimal.NewFromString(intr)
		if err != nil {
			return nil, fmt.Errorf("parse unpaid_interest %q: %w", intr, err)
		}
		l.LoanID = id.LoanID(loan)
		l.FundID = id.FundID(fund)
		l.UserID = id.UserID(user)
		l.OutstandingPrincipal = p
		l.UnpaidInterest = i
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Contributions(ctx context.Context, fundID id.FundID) ([]Contribution, error) {
	query := `
		SELECT due_id, fund_id, user_id, total_paid, unpaid,
		       last_event_id, last_event_at
		FROM projection_contributions
		WHERE fund_id = $1
		ORDER BY due_id
	`
	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(fundID))
	if err != nil {
		return nil, fmt.Errorf("query contribution projections: %w", err)
	}
	defer rows.Close()

	var out []Contribution
	for rows.Next() {
		var (
			c              Contribution
			due, fund, user uuid.UUID
			paid, unpaid   string
		)
		if err := rows.Scan(&due, &fund, &user, &paid, &unpaid, &c.LastEventID, &c.LastEventAt); err != nil {
			return nil, fmt.Errorf("scan contribution projection: %w", err)
		}
		p, err := decimal.NewFromString(paid)
		if err != nil {
			return nil, fmt.Errorf("parse total_paid %q: %w", paid, err)
		}
		u, err := decimal.NewFromString(unpaid)
		if err != nil {
			return nil, fmt.Errorf("parse unpaid %q: %w", unpaid, err)
		}
		c.DueID = id.DueID(due)
		c.FundID = id.FundID(fund)
		c.UserID = id.UserID(user)
		c.TotalPaid = p
		c.Unpaid = u
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) InterestPool(ctx context.Context, fundID id.FundID) (decimal.Decimal, error) {
	query := `
		SELECT COALESCE(SUM(amount), 0)
		FROM projection_interest_income
		WHERE fund_id = $1
	`
	var raw string
	if err := s.db.QueryRowContext(ctx, query, uuid.UUID(fundID)).Scan(&raw); err != nil {
		return decimal.Zero, fmt.Errorf("query interest pool: %w", err)
	}
	total, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse interest pool %q: %w", raw, err)
	}
	return total, nil
}
