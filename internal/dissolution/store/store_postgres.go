package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"fundpool/internal/dissolution/models"
	id "fundpool/pkg/domain"
	"fundpool/pkg/platform/sentinel"
)

// uniqueViolation is the Postgres error code raised by the fund_id unique
// index: one settlement per fund.
const uniqueViolation = "23505"

// PostgresStore persists settlements in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, settlement *models.Settlement) error {
	query := `
		INSERT INTO settlements (
			id, fund_id, status, total_interest_pool, total_contributions,
			total_weight, initiated_by, confirmed_by, settlement_date,
			version, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	var confirmedBy any
	if settlement.ConfirmedBy != nil {
		confirmedBy = uuid.UUID(*settlement.ConfirmedBy)
	}
	_, err := s.db.ExecContext(ctx, query,
		uuid.UUID(settlement.ID),
		uuid.UUID(settlement.FundID),
		string(settlement.Status),
		settlement.TotalInterestPool.StringFixed(2),
		settlement.TotalContributions.StringFixed(2),
		settlement.TotalWeight.StringFixed(2),
		uuid.UUID(settlement.InitiatedBy),
		confirmedBy,
		settlement.SettlementDate,
		settlement.Version,
		settlement.CreatedAt,
		settlement.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert settlement: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetByFund(ctx context.Context, fundID id.FundID) (*models.Settlement, error) {
	query := `
		SELECT id, fund_id, status, total_interest_pool, total_contributions,
		       total_weight, initiated_by, confirmed_by, settlement_date,
		       version, created_at, updated_at
		FROM settlements
		WHERE fund_id = $1
	`
	row := s.db.QueryRowContext(ctx, query, uuid.UUID(fundID))

	var (
		settlement            models.Settlement
		settlementID, fund    uuid.UUID
		initiatedBy           uuid.UUID
		confirmedBy           uuid.NullUUID
		settlementDate        sql.NullTime
		status                string
		pool, contribs, weight string
	)
	err := row.Scan(
		&settlementID, &fund, &status, &pool, &contribs, &weight,
		&initiatedBy, &confirmedBy, &settlementDate,
		&settlement.Version, &settlement.CreatedAt, &settlement.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get settlement: %w", err)
	}

	settlement.ID = id.SettlementID(settlementID)
	settlement.FundID = id.FundID(fund)
	settlement.Status = models.Status(status)
	settlement.InitiatedBy = id.UserID(initiatedBy)
	if settlement.TotalInterestPool, err = decimal.NewFromString(pool); err != nil {
		return nil, fmt.Errorf("parse total_interest_pool %q: %w", pool, err)
	}
	if settlement.TotalContributions, err = decimal.NewFromString(contribs); err != nil {
		return nil, fmt.Errorf("parse total_contributions %q: %w", contribs, err)
	}
	if settlement.TotalWeight, err = decimal.NewFromString(weight); err != nil {
		return nil, fmt.Errorf("parse total_weight %q: %w", weight, err)
	}
	if confirmedBy.Valid {
		userID := id.UserID(confirmedBy.UUID)
		settlement.ConfirmedBy = &userID
	}
	if settlementDate.Valid {
		t := settlementDate.Time
		settlement.SettlementDate = &t
	}
	return &settlement, nil
}

func (s *PostgresStore) Update(ctx context.Context, settlement *models.Settlement, expectedVersion int64) error {
	query := `
		UPDATE settlements
		SET status = $1, total_interest_pool = $2, total_contributions = $3,
		    total_weight = $4, confirmed_by = $5, settlement_date = $6,
		    version = $7, updated_at = $8
		WHERE id = $9 AND version = $10
	`
	var confirmedBy any
	if settlement.ConfirmedBy != nil {
		confirmedBy = uuid.UUID(*settlement.ConfirmedBy)
	}
	res, err := s.db.ExecContext(ctx, query,
		string(settlement.Status),
		settlement.TotalInterestPool.StringFixed(2),
		settlement.TotalContributions.StringFixed(2),
		settlement.TotalWeight.StringFixed(2),
		confirmedBy,
		settlement.SettlementDate,
		settlement.Version,
		settlement.UpdatedAt,
		uuid.UUID(settlement.ID),
		expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("update settlement: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update settlement: %w", err)
	}
	if affected == 0 {
		if _, getErr := s.GetByFund(ctx, settlement.FundID); errors.Is(getErr, sentinel.ErrNotFound) {
			return sentinel.ErrNotFound
		}
		return sentinel.ErrVersionMismatch
	}
	return nil
}

func (s *PostgresStore) ReplaceLineItems(ctx context.Context, settlementID id.SettlementID, items []models.LineItem) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin line item replacement: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM settlement_line_items WHERE settlement_id = $1`,
		uuid.UUID(settlementID),
	); err != nil {
		return fmt.Errorf("discard line items: %w", err)
	}

	insert := `
		INSERT INTO settlement_line_items (
			settlement_id, user_id, weight, contributions, interest_share,
			gross_payout, outstanding_principal, unpaid_interest,
			unpaid_dues, net_payout
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	for _, item := range items {
		if _, err := tx.ExecContext(ctx, insert,
			uuid.UUID(item.SettlementID),
			uuid.UUID(item.UserID),
			item.Weight.StringFixed(2),
			item.Contributions.StringFixed(2),
			item.InterestShare.StringFixed(2),
			item.GrossPayout.StringFixed(2),
			item.OutstandingPrincipal.StringFixed(2),
			item.UnpaidInterest.StringFixed(2),
			item.UnpaidDues.StringFixed(2),
			item.NetPayout.StringFixed(2),
		); err != nil {
			return fmt.Errorf("insert line item: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit line item replacement: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListLineItems(ctx context.Context, settlementID id.SettlementID) ([]models.LineItem, error) {
	query := `
		SELECT settlement_id, user_id, weight, contributions, interest_share,
		       gross_payout, outstanding_principal, unpaid_interest,
		       unpaid_dues, net_payout
		FROM settlement_line_items
		WHERE settlement_id = $1
		ORDER BY user_id
	`
	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(settlementID))
	if err != nil {
		return nil, fmt.Errorf("query line items: %w", err)
	}
	defer rows.Close()

	var out []models.LineItem
	for rows.Next() {
		var (
			item             models.LineItem
			settlement, user uuid.UUID
			amounts          [8]string
		)
		if err := rows.Scan(
			&settlement, &user, &amounts[0], &amounts[1], &amounts[2],
			&amounts[3], &amounts[4], &amounts[5], &amounts[6], &amounts[7],
		); err != nil {
			return nil, fmt.Errorf("scan line item: %w", err)
		}
		parsed := make([]decimal.Decimal, len(amounts))
		for i, raw := range amounts {
			d, err := decimal.NewFromString(raw)
			if err != nil {
				return nil, fmt.Errorf("parse line item amount %q: %w", raw, err)
			}
			parsed[i] = d
		}
		item.SettlementID = id.SettlementID(settlement)
		item.UserID = id.UserID(user)
		item.Weight = parsed[0]
		item.Contributions = parsed[1]
		item.InterestShare = parsed[2]
		item.GrossPayout = parsed[3]
		item.OutstandingPrincipal = parsed[4]
		item.UnpaidInterest = parsed[5]
		item.UnpaidDues = parsed[6]
		item.NetPayout = parsed[7]
		out = append(out, item)
	}
	return out, rows.Err()
}
