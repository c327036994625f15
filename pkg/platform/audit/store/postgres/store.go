package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	id "fundpool/pkg/domain"
	audit "fundpool/pkg/platform/audit"
)

// Store persists audit events in PostgreSQL. Inserts are idempotent per
// event ID so redelivered audit envelopes never duplicate rows.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Append(ctx context.Context, event audit.Event) error {
	query := `
		INSERT INTO audit_events (
			id, timestamp, fund_id, actor_id, action,
			entity_type, entity_id, before_state, after_state,
			service, request_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := s.db.ExecContext(ctx, query,
		uuid.New(),
		event.Timestamp,
		uuid.UUID(event.FundID),
		uuid.UUID(event.ActorID),
		string(event.Action),
		event.EntityType,
		event.EntityID,
		nullableJSON(event.Before),
		nullableJSON(event.After),
		event.Service,
		event.RequestID,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

func (s *Store) ListByFund(ctx context.Context, fundID id.FundID) ([]audit.Event, error) {
	query := `
		SELECT timestamp, fund_id, actor_id, action,
		       entity_type, entity_id, before_state, after_state,
		       service, request_id
		FROM audit_events
		WHERE fund_id = $1
		ORDER BY timestamp DESC
	`
	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(fundID))
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var out []audit.Event
	for rows.Next() {
		var (
			event          audit.Event
			fund, actor    uuid.UUID
			action         string
			before, after  []byte
		)
		if err := rows.Scan(
			&event.Timestamp, &fund, &actor, &action,
			&event.EntityType, &event.EntityID, &before, &after,
			&event.Service, &event.RequestID,
		); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		event.FundID = id.FundID(fund)
		event.ActorID = id.UserID(actor)
		event.Action = audit.Action(action)
		event.Before = before
		event.After = after
		out = append(out, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return out, nil
}

func nullableJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return raw
}
