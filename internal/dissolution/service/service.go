// Package service implements the dissolution settlement engine.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"fundpool/internal/dissolution/calculator"
	"fundpool/internal/dissolution/models"
	"fundpool/internal/dissolution/projection"
	"fundpool/internal/dissolution/store"
	id "fundpool/pkg/domain"
	dErrors "fundpool/pkg/domain-errors"
	"fundpool/pkg/platform/audit"
	"fundpool/pkg/platform/events"
	"fundpool/pkg/platform/sentinel"
	"fundpool/pkg/requestcontext"
)

// Service owns the settlement lifecycle for all funds.
type Service struct {
	settlements store.Store
	projections projection.Store
	events      events.Publisher
	audit       *audit.Publisher
	logger      *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithAuditPublisher(p *audit.Publisher) Option {
	return func(s *Service) { s.audit = p }
}

func WithEventPublisher(p events.Publisher) Option {
	return func(s *Service) { s.events = p }
}

func New(settlements store.Store, projections projection.Store, opts ...Option) (*Service, error) {
	if settlements == nil {
		return nil, errors.New("settlement store is required")
	}
	if projections == nil {
		return nil, errors.New("projection store is required")
	}
	svc := &Service{settlements: settlements, projections: projections}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Initiate starts dissolution for a fund. A second initiation conflicts.
func (s *Service) Initiate(ctx context.Context, fundID id.FundID, initiatedBy id.UserID) (*models.Settlement, error) {
	now := requestcontext.Now(ctx)
	settlement, err := models.NewSettlement(fundID, initiatedBy, now)
	if err != nil {
		return nil, err
	}
	if err := s.settlements.Create(ctx, settlement); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return nil, dErrors.New(dErrors.CodeConflict, "a settlement already exists for this fund")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create settlement")
	}

	s.publish(ctx, events.TypeDissolutionInitiated, fundID, settlement.ID.String(), now, events.DissolutionInitiated{
		SettlementID: settlement.ID,
		FundID:       fundID,
		InitiatedBy:  initiatedBy,
	})
	s.emitAudit(ctx, audit.Event{
		FundID:     fundID,
		ActorID:    initiatedBy,
		Action:     audit.ActionDissolutionInitiated,
		EntityType: "settlement",
		EntityID:   settlement.ID.String(),
		After:      audit.Snapshot(settlement),
		Timestamp:  now,
	})
	if s.logger != nil {
		s.logger.InfoContext(ctx, "dissolution initiated",
			"fund_id", fundID, "settlement_id", settlement.ID)
	}
	return settlement, nil
}

// Recalculate discards existing line items and recomputes them from the
// current projection snapshot. Projections lag the owning domains, so
// recalculation immediately before confirmation is the norm, not the
// exception. With no members the settlement moves straight to Reviewed with
// an empty line-item set.
func (s *Service) Recalculate(ctx context.Context, fundID id.FundID) (*models.Settlement, []models.LineItem, error) {
	settlement, err := s.loadSettlement(ctx, fundID)
	if err != nil {
		return nil, nil, err
	}
	if err := settlement.CanRecalculate(); err != nil {
		return nil, nil, err
	}

	positions, err := projection.Positions(ctx, s.projections, fundID)
	if err != nil {
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read projections")
	}
	interestPool, err := s.projections.InterestPool(ctx, fundID)
	if err != nil {
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read interest pool")
	}

	result := calculator.Calculate(settlement.ID, positions, interestPool)
	if err := s.settlements.ReplaceLineItems(ctx, settlement.ID, result.LineItems); err != nil {
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store line items")
	}

	now := requestcontext.Now(ctx)
	expected := settlement.Version
	settlement.ApplyCalculation(result.TotalInterestPool, result.TotalContributions, result.TotalWeight, now)
	if err := s.settlements.Update(ctx, settlement, expected); err != nil {
		if errors.Is(err, sentinel.ErrVersionMismatch) {
			return nil, nil, dErrors.New(dErrors.CodeConcurrencyConflict,
				"settlement was modified concurrently; retry the recalculation")
		}
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update settlement")
	}

	s.publish(ctx, events.TypeSettlementCalculated, fundID, settlement.ID.String(), now, events.SettlementCalculated{
		SettlementID:       settlement.ID,
		FundID:             fundID,
		TotalInterestPool:  result.TotalInterestPool,
		TotalContributions: result.TotalContributions,
		LineItemCount:      len(result.LineItems),
	})
	s.emitAudit(ctx, audit.Event{
		FundID:     fundID,
		ActorID:    requestcontext.UserID(ctx),
		Action:     audit.ActionSettlementCalculated,
		EntityType: "settlement",
		EntityID:   settlement.ID.String(),
		After:      audit.Snapshot(settlement),
		Timestamp:  now,
	})
	if s.logger != nil {
		s.logger.InfoContext(ctx, "settlement calculated",
			"fund_id", fundID,
			"settlement_id", settlement.ID,
			"line_items", len(result.LineItems),
			"interest_pool", result.TotalInterestPool,
		)
	}
	return settlement, result.LineItems, nil
}

// Confirm finalizes a reviewed settlement. Confirmation is blocked while any
// member's net payout is negative; the blocking members travel in the error
// details so the caller can render them.
func (s *Service) Confirm(ctx context.Context, fundID id.FundID, confirmedBy id.UserID) (*models.Settlement, error) {
	settlement, err := s.loadSettlement(ctx, fundID)
	if err != nil {
		return nil, err
	}
	if err := settlement.CanConfirm(); err != nil {
		return nil, err
	}

	items, err := s.settlements.ListLineItems(ctx, settlement.ID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list line items")
	}
	if blockers := calculator.Blockers(items); len(blockers) > 0 {
		details := make([]map[string]any, 0, len(blockers))
		for _, b := range blockers {
			details = append(details, map[string]any{
				"user_id":    b.UserID.String(),
				"net_payout": b.NetPayout.StringFixed(2),
			})
		}
		return nil, dErrors.New(dErrors.CodeConflict,
			"confirmation blocked: some members would owe more than they receive").
			WithDetails(map[string]any{"blockers": details})
	}

	before := *settlement
	now := requestcontext.Now(ctx)
	expected := settlement.Version
	settlement.ApplyConfirm(confirmedBy, now)
	if err := s.settlements.Update(ctx, settlement, expected); err != nil {
		if errors.Is(err, sentinel.ErrVersionMismatch) {
			return nil, dErrors.New(dErrors.CodeConcurrencyConflict,
				"settlement was modified concurrently; refetch and retry")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update settlement")
	}

	s.publish(ctx, events.TypeDissolutionConfirmed, fundID, settlement.ID.String(), now, events.DissolutionConfirmed{
		SettlementID:   settlement.ID,
		FundID:         fundID,
		ConfirmedBy:    confirmedBy,
		SettlementDate: now,
	})
	s.emitAudit(ctx, audit.Event{
		FundID:     fundID,
		ActorID:    confirmedBy,
		Action:     audit.ActionDissolutionConfirmed,
		EntityType: "settlement",
		EntityID:   settlement.ID.String(),
		Before:     audit.Snapshot(before),
		After:      audit.Snapshot(settlement),
		Timestamp:  now,
	})
	if s.logger != nil {
		s.logger.InfoContext(ctx, "dissolution confirmed",
			"fund_id", fundID, "settlement_id", settlement.ID)
	}
	return settlement, nil
}

// Report is the read model for settlement review.
type Report struct {
	Settlement *models.Settlement `json:"settlement"`
	LineItems  []models.LineItem  `json:"line_items"`
	CanConfirm bool               `json:"can_confirm"`
	Blockers   []models.LineItem  `json:"blockers,omitempty"`
}

// GetReport returns the settlement, its line items, and whether confirmation
// would currently succeed.
func (s *Service) GetReport(ctx context.Context, fundID id.FundID) (*Report, error) {
	settlement, err := s.loadSettlement(ctx, fundID)
	if err != nil {
		return nil, err
	}
	items, err := s.settlements.ListLineItems(ctx, settlement.ID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list line items")
	}
	blockers := calculator.Blockers(items)
	return &Report{
		Settlement: settlement,
		LineItems:  items,
		CanConfirm: settlement.Status == models.StatusReviewed && len(blockers) == 0,
		Blockers:   blockers,
	}, nil
}

func (s *Service) loadSettlement(ctx context.Context, fundID id.FundID) (*models.Settlement, error) {
	settlement, err := s.settlements.GetByFund(ctx, fundID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "no settlement exists for this fund")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load settlement")
	}
	return settlement, nil
}

func (s *Service) publish(ctx context.Context, eventType events.Type, fundID id.FundID, entityID string, occurredAt time.Time, payload any) {
	if s.events == nil {
		return
	}
	envelope, err := events.New(eventType, fundID, entityID, occurredAt, payload)
	if err == nil {
		err = s.events.Publish(ctx, envelope)
	}
	if err != nil && s.logger != nil {
		s.logger.ErrorContext(ctx, "failed to publish event",
			"type", eventType, "fund_id", fundID, "error", err)
	}
}

func (s *Service) emitAudit(ctx context.Context, event audit.Event) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Emit(ctx, event); err != nil && s.logger != nil {
		s.logger.ErrorContext(ctx, "failed to emit audit event",
			"action", event.Action, "fund_id", event.FundID, "error", err)
	}
}
