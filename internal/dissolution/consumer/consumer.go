// Package consumer folds integration events from the member, loan, and
// contribution domains into the dissolution projections.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"fundpool/internal/dissolution/projection"
	platformmetrics "fundpool/internal/platform/metrics"
	"fundpool/pkg/platform/events"
)

// Consumer applies envelopes to the projection store. It relies on the
// store's idempotent upserts for duplicate and out-of-order delivery; a
// returned error means an infrastructure fault and the envelope must be
// redelivered.
type Consumer struct {
	projections projection.Store
	logger      *slog.Logger
	metrics     *platformmetrics.Metrics
}

type Option func(*Consumer)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Consumer) { c.logger = logger }
}

func WithMetrics(m *platformmetrics.Metrics) Option {
	return func(c *Consumer) { c.metrics = m }
}

func New(projections projection.Store, opts ...Option) (*Consumer, error) {
	if projections == nil {
		return nil, errors.New("projection store is required")
	}
	c := &Consumer{projections: projections}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Handle applies one envelope. Event types the dissolution domain does not
// project are skipped.
func (c *Consumer) Handle(ctx context.Context, envelope events.Envelope) error {
	var err error
	switch envelope.Type {
	case events.TypeMemberJoined:
		var payload events.MemberJoined
		if err = envelope.Decode(&payload); err == nil {
			err = c.projections.ApplyMemberJoined(ctx, payload.FundID, payload.UserID, payload.MonthlyContributionAmount)
		}
	case events.TypeMemberRemoved:
		var payload events.MemberRemoved
		if err = envelope.Decode(&payload); err == nil {
			err = c.projections.ApplyMemberRemoved(ctx, payload.FundID, payload.UserID)
		}
	case events.TypeLoanDisbursed:
		var payload events.LoanDisbursed
		if err = envelope.Decode(&payload); err == nil {
			err = c.projections.ApplyLoanDisbursed(ctx, payload.LoanID, payload.FundID, payload.UserID, payload.Principal, envelope.OccurredAt)
		}
	case events.TypeRepaymentRecorded:
		var payload events.RepaymentRecorded
		if err = envelope.Decode(&payload); err == nil {
			err = c.projections.ApplyRepayment(ctx, envelope.ID, payload.LoanID, payload.FundID,
				payload.OutstandingPrincipal, payload.UnpaidInterest, payload.InterestPaid, envelope.OccurredAt)
		}
	case events.TypeLoanClosed:
		var payload events.LoanClosed
		if err = envelope.Decode(&payload); err == nil {
			err = c.projections.ApplyLoanClosed(ctx, payload.LoanID, envelope.OccurredAt)
		}
	case events.TypeContributionPaid:
		var payload events.ContributionPaid
		if err = envelope.Decode(&payload); err == nil {
			err = c.projections.ApplyContributionPaid(ctx, envelope.ID, payload.DueID, payload.FundID,
				payload.UserID, payload.AmountApplied, payload.Remaining, envelope.OccurredAt)
		}
	default:
		c.count(envelope.Type, "skipped")
		return nil
	}

	if err != nil {
		c.count(envelope.Type, "error")
		if c.logger != nil {
			c.logger.ErrorContext(ctx, "failed to apply event to projections",
				"type", envelope.Type, "event_id", envelope.ID, "fund_id", envelope.FundID, "error", err)
		}
		return fmt.Errorf("apply %s: %w", envelope.Type, err)
	}
	c.count(envelope.Type, "applied")
	return nil
}

// Register subscribes the consumer to every projected event type on an
// in-process publisher. Used when no broker is configured.
func (c *Consumer) Register(publisher *events.MemoryPublisher) {
	for _, eventType := range []events.Type{
		events.TypeMemberJoined,
		events.TypeMemberRemoved,
		events.TypeLoanDisbursed,
		events.TypeRepaymentRecorded,
		events.TypeLoanClosed,
		events.TypeContributionPaid,
	} {
		publisher.Subscribe(eventType, c.Handle)
	}
}

// Topics lists the topics the consumer reads from a broker.
func Topics() []string {
	return []string{events.TopicMember, events.TopicLoan, events.TopicContribution}
}

func (c *Consumer) count(eventType events.Type, outcome string) {
	if c.metrics == nil {
		return
	}
	c.metrics.EventsConsumed.WithLabelValues(string(eventType), outcome).Inc()
}
