package member

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"fundpool/internal/contribution/models"
	id "fundpool/pkg/domain"
)

// PostgresStore persists the roster projection in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Upsert(ctx context.Context, m models.Member) error {
	query := `
		INSERT INTO contribution_roster (fund_id, user_id, monthly_amount, active, joined_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (fund_id, user_id) DO UPDATE
		SET monthly_amount = EXCLUDED.monthly_amount,
		    active = EXCLUDED.active,
		    joined_at = EXCLUDED.joined_at
	`
	_, err := s.db.ExecContext(ctx, query,
		uuid.UUID(m.FundID),
		uuid.UUID(m.UserID),
		m.MonthlyContributionAmount.StringFixed(2),
		m.Active,
		m.JoinedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert roster member: %w", err)
	}
	return nil
}

func (s *PostgresStore) Deactivate(ctx context.Context, fundID id.FundID, userID id.UserID) error {
	query := `UPDATE contribution_roster SET active = FALSE WHERE fund_id = $1 AND user_id = $2`
	if _, err := s.db.ExecContext(ctx, query, uuid.UUID(fundID), uuid.UUID(userID)); err != nil {
		return fmt.Errorf("deactivate roster member: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListActive(ctx context.Context, fundID id.FundID) ([]models.Member, error) {
	query := `
		SELECT fund_id, user_id, monthly_amount, active, joined_at
		FROM contribution_roster
		WHERE fund_id = $1 AND active = TRUE
		ORDER BY joined_at
	`
	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(fundID))
	if err != nil {
		return nil, fmt.Errorf("query roster: %w", err)
	}
	defer rows.Close()

	var out []models.Member
	for rows.Next() {
		var (
			m          models.Member
			fund, user uuid.UUID
			amount     string
		)
		if err := rows.Scan(&fund, &user, &amount, &m.Active, &m.JoinedAt); err != nil {
			return nil, fmt.Errorf("scan roster member: %w", err)
		}
		parsed, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("parse monthly_amount %q: %w", amount, err)
		}
		m.FundID = id.FundID(fund)
		m.UserID = id.UserID(user)
		m.MonthlyContributionAmount = parsed
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate roster: %w", err)
	}
	return out, nil
}
