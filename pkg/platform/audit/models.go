// Package audit captures the who/what/before/after of every state-changing
// operation. Events are transport-agnostic so stores and sinks can fan out.
package audit

import (
	"encoding/json"
	"time"

	id "fundpool/pkg/domain"
)

// Action names an auditable operation.
type Action string

const (
	ActionDuesGenerated        Action = "dues_generated"
	ActionContributionPaid     Action = "contribution_paid"
	ActionContributionOverdue  Action = "contribution_overdue"
	ActionLoanDisbursed        Action = "loan_disbursed"
	ActionRepaymentRecorded    Action = "repayment_recorded"
	ActionLoanClosed           Action = "loan_closed"
	ActionDissolutionInitiated Action = "dissolution_initiated"
	ActionSettlementCalculated Action = "settlement_calculated"
	ActionDissolutionConfirmed Action = "dissolution_confirmed"
)

// Event records one state-changing operation with before/after snapshots of
// the affected entity.
type Event struct {
	Timestamp  time.Time       `json:"timestamp"`
	FundID     id.FundID       `json:"fund_id"`
	ActorID    id.UserID       `json:"actor_id"`
	Action     Action          `json:"action"`
	EntityType string          `json:"entity_type"`
	EntityID   string          `json:"entity_id"`
	Before     json.RawMessage `json:"before,omitempty"`
	After      json.RawMessage `json:"after,omitempty"`
	Service    string          `json:"service"`
	RequestID  string          `json:"request_id,omitempty"`
}

// Snapshot marshals an entity state for the Before/After fields. Marshalling
// failures degrade to a null snapshot rather than failing the audited
// operation.
func Snapshot(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return raw
}
