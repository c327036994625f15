// Package events defines the integration event envelope exchanged between
// fund domains. Domains publish facts about money movement; consuming
// domains maintain local projections from them. Delivery is at-least-once
// and ordered only within a topic partition, so every consumer must be
// idempotent.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	id "fundpool/pkg/domain"
)

// Type names an integration event.
type Type string

const (
	// Published by the membership domain.
	TypeMemberJoined  Type = "member_joined"
	TypeMemberRemoved Type = "member_removed"

	// Published by the loan domain.
	TypeLoanDisbursed     Type = "loan_disbursed"
	TypeRepaymentRecorded Type = "repayment_recorded"
	TypeLoanClosed        Type = "loan_closed"

	// Published by the contribution domain.
	TypeContributionPaid    Type = "contribution_paid"
	TypeContributionOverdue Type = "contribution_overdue"
	TypeDuesGenerated       Type = "dues_generated"

	// Published by the dissolution domain.
	TypeDissolutionInitiated  Type = "dissolution_initiated"
	TypeSettlementCalculated  Type = "settlement_calculated"
	TypeDissolutionConfirmed  Type = "dissolution_confirmed"

	// Cross-cutting audit trail.
	TypeAuditLogged Type = "audit_logged"
)

// Topic names, one per owning domain. Envelopes are keyed by fund ID so all
// events for one fund stay on one partition, preserving per-fund order.
const (
	TopicMember       = "fundpool.member"
	TopicLoan         = "fundpool.loan"
	TopicContribution = "fundpool.contribution"
	TopicDissolution  = "fundpool.dissolution"
	TopicAudit        = "fundpool.audit"
)

var topicByType = map[Type]string{
	TypeMemberJoined:         TopicMember,
	TypeMemberRemoved:        TopicMember,
	TypeLoanDisbursed:        TopicLoan,
	TypeRepaymentRecorded:    TopicLoan,
	TypeLoanClosed:           TopicLoan,
	TypeContributionPaid:     TopicContribution,
	TypeContributionOverdue:  TopicContribution,
	TypeDuesGenerated:        TopicContribution,
	TypeDissolutionInitiated: TopicDissolution,
	TypeSettlementCalculated: TopicDissolution,
	TypeDissolutionConfirmed: TopicDissolution,
	TypeAuditLogged:          TopicAudit,
}

// TopicFor returns the topic an event type is published to.
func TopicFor(t Type) (string, error) {
	topic, ok := topicByType[t]
	if !ok {
		return "", fmt.Errorf("no topic for event type %q", t)
	}
	return topic, nil
}

// AllTopics lists every topic, for bootstrap.
func AllTopics() []string {
	return []string{TopicMember, TopicLoan, TopicContribution, TopicDissolution, TopicAudit}
}

// Envelope wraps an event payload with the identity consumers need for
// idempotent correlation.
type Envelope struct {
	ID         uuid.UUID       `json:"id"`
	Type       Type            `json:"type"`
	FundID     id.FundID       `json:"fund_id"`
	EntityID   string          `json:"entity_id"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// New builds an envelope around a marshalled payload. EntityID is the stable
// identity of the entity the event is about (due ID, loan ID, user ID),
// giving consumers a natural idempotency key.
func New(eventType Type, fundID id.FundID, entityID string, occurredAt time.Time, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Envelope{
		ID:         uuid.New(),
		Type:       eventType,
		FundID:     fundID,
		EntityID:   entityID,
		OccurredAt: occurredAt,
		Payload:    raw,
	}, nil
}

// Decode unmarshals the payload into v.
func (e Envelope) Decode(v any) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return nil
}
