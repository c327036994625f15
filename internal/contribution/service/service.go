// Package service implements contribution cycle generation, payment
// recording, and overdue detection.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"fundpool/internal/contribution/models"
	"fundpool/internal/contribution/store/due"
	"fundpool/internal/contribution/store/member"
	ledgermodels "fundpool/internal/ledger/models"
	ledger "fundpool/internal/ledger/service"
	id "fundpool/pkg/domain"
	dErrors "fundpool/pkg/domain-errors"
	"fundpool/pkg/money"
	"fundpool/pkg/platform/audit"
	"fundpool/pkg/platform/events"
	"fundpool/pkg/platform/sentinel"
	platformtx "fundpool/pkg/platform/tx"
	"fundpool/pkg/requestcontext"
)

const (
	// DefaultGracePeriod is how long after the due date a pending due stays
	// Pending before the sweep marks it Late.
	DefaultGracePeriod = 5 * 24 * time.Hour

	// DefaultDueDay is the day of the cycle month contributions fall due.
	DefaultDueDay = 10

	// DefaultSweepBatch caps how many dues one sweep pass touches.
	DefaultSweepBatch = 500
)

// Service owns contribution dues for all funds.
type Service struct {
	dues       due.Store
	roster     member.Store
	ledger     *ledger.Service
	tx         platformtx.Runner
	events     events.Publisher
	audit      *audit.Publisher
	logger     *slog.Logger
	grace      time.Duration
	dueDay     int
	sweepBatch int
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

func WithGracePeriod(grace time.Duration) Option {
	return func(s *Service) { s.grace = grace }
}

func WithDueDay(day int) Option {
	return func(s *Service) { s.dueDay = day }
}

func WithSweepBatch(n int) Option {
	return func(s *Service) { s.sweepBatch = n }
}

// WithTxRunner sets the transactional boundary for the payment write path.
// Postgres deployments pass a SQL runner so the due update and the ledger
// append commit together.
func WithTxRunner(r platformtx.Runner) Option {
	return func(s *Service) { s.tx = r }
}

func New(dues due.Store, roster member.Store, ledgerSvc *ledger.Service, opts ...Option) (*Service, error) {
	if dues == nil {
		return nil, errors.New("due store is required")
	}
	if roster == nil {
		return nil, errors.New("roster store is required")
	}
	if ledgerSvc == nil {
		return nil, errors.New("ledger service is required")
	}
	svc := &Service{
		dues:       dues,
		roster:     roster,
		ledger:     ledgerSvc,
		tx:         platformtx.NewMemory(),
		grace:      DefaultGracePeriod,
		dueDay:     DefaultDueDay,
		sweepBatch: DefaultSweepBatch,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// CycleResult reports what a generation run did.
type CycleResult struct {
	FundID    id.FundID `json:"fund_id"`
	Month     id.Month  `json:"month"`
	Generated int       `json:"generated"`
	Skipped   int       `json:"skipped"`
}

// GenerateDues creates one due per active member for the cycle. Re-running
// for the same cycle creates nothing further and reports the existing dues
// as skipped.
func (s *Service) GenerateDues(ctx context.Context, fundID id.FundID, month id.Month) (*CycleResult, error) {
	if fundID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "fund_id is required")
	}
	if !month.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "month must be a valid YYYYMM cycle")
	}

	members, err := s.roster.ListActive(ctx, fundID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list active members")
	}
	if len(members) == 0 {
		return nil, dErrors.New(dErrors.CodeNoMembers, "fund has no active members to generate dues for")
	}

	now := requestcontext.Now(ctx)
	dueDate := month.Start().AddDate(0, 0, s.dueDay-1)
	result := &CycleResult{FundID: fundID, Month: month}
	for _, m := range members {
		d, err := models.NewDue(fundID, m.UserID, month, m.MonthlyContributionAmount, dueDate, now)
		if err != nil {
			return nil, err
		}
		switch err := s.dues.Create(ctx, d); {
		case errors.Is(err, sentinel.ErrAlreadyUsed):
			result.Skipped++
		case err != nil:
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create contribution due")
		default:
			result.Generated++
		}
	}

	s.publish(ctx, events.TypeDuesGenerated, fundID, month.String(), now, events.DuesGenerated{
		FundID:    fundID,
		Month:     month,
		Generated: result.Generated,
		Skipped:   result.Skipped,
	})
	s.emitAudit(ctx, audit.Event{
		FundID:     fundID,
		ActorID:    requestcontext.UserID(ctx),
		Action:     audit.ActionDuesGenerated,
		EntityType: "contribution_cycle",
		EntityID:   month.String(),
		After:      audit.Snapshot(result),
		Timestamp:  now,
	})
	if s.logger != nil {
		s.logger.InfoContext(ctx, "contribution cycle generated",
			"fund_id", fundID,
			"month", month,
			"generated", result.Generated,
			"skipped", result.Skipped,
		)
	}
	return result, nil
}

// PaymentInput is one payment-recording request.
type PaymentInput struct {
	FundID          id.FundID
	DueID           id.DueID
	Amount          decimal.Decimal
	IdempotencyKey  string
	ExpectedVersion int64
	RecordedBy      id.UserID
	Description     string
}

// PaymentResult is what the caller gets back, replayed or fresh.
type PaymentResult struct {
	DueID            id.DueID        `json:"due_id"`
	AmountApplied    decimal.Decimal `json:"amount_applied"`
	RemainingBalance decimal.Decimal `json:"remaining_balance"`
	Status           models.Status   `json:"status"`
	Version          int64           `json:"version"`
}

// RecordPayment applies a payment against one due exactly once.
//
// The ledger is the source of truth for replay detection: a transaction
// already recorded under the caller's idempotency key means the mutation
// happened, and the stored result is returned without touching the due.
// Concurrent writers with different keys are serialized by the version
// token; the loser gets CodeConcurrencyConflict and must refetch.
func (s *Service) RecordPayment(ctx context.Context, in PaymentInput) (*PaymentResult, error) {
	if err := validatePayment(in); err != nil {
		return nil, err
	}

	existing, err := s.ledger.FindByIdempotencyKey(ctx, in.FundID, in.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return s.replayResult(ctx, existing)
	}

	now := requestcontext.Now(ctx)
	var (
		d       *models.ContributionDue
		before  models.ContributionDue
		applied decimal.Decimal
	)
	// Validate-then-mutate runs inside one transactional boundary: the
	// ledger append and the due update commit together, so a fault part-way
	// through leaves the due payable with the key unburned and the retry
	// applies cleanly. The append goes first because the in-memory runner
	// has no rollback.
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		d, err = s.loadDue(ctx, in.FundID, in.DueID)
		if err != nil {
			return err
		}
		if d.Version != in.ExpectedVersion {
			return dErrors.New(dErrors.CodeConcurrencyConflict,
				"due was modified concurrently; refetch and retry with the current version").
				WithDetails(map[string]any{"current_version": d.Version})
		}
		if err := d.CanReceivePayment(); err != nil {
			return err
		}

		before = *d
		applied = d.ApplyPayment(in.Amount, now)

		if _, err := s.ledger.Record(ctx, ledger.RecordInput{
			FundID:         in.FundID,
			UserID:         d.UserID,
			Kind:           ledgermodels.KindContribution,
			Amount:         applied,
			IdempotencyKey: in.IdempotencyKey,
			SourceRef:      d.ID.String(),
			RecordedBy:     in.RecordedBy,
			Description:    in.Description,
		}, now); err != nil {
			return err
		}
		if err := s.dues.Update(ctx, d, in.ExpectedVersion); err != nil {
			if errors.Is(err, sentinel.ErrVersionMismatch) {
				return dErrors.New(dErrors.CodeConcurrencyConflict,
					"due was modified concurrently; refetch and retry with the current version")
			}
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "contribution due not found")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update contribution due")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result := &PaymentResult{
		DueID:            d.ID,
		AmountApplied:    applied,
		RemainingBalance: d.RemainingBalance(),
		Status:           d.Status,
		Version:          d.Version,
	}
	s.publish(ctx, events.TypeContributionPaid, in.FundID, d.ID.String(), now, events.ContributionPaid{
		DueID:         d.ID,
		FundID:        in.FundID,
		UserID:        d.UserID,
		Month:         d.Month,
		AmountApplied: applied,
		Remaining:     result.RemainingBalance,
		Status:        string(d.Status),
	})
	s.emitAudit(ctx, audit.Event{
		FundID:     in.FundID,
		ActorID:    in.RecordedBy,
		Action:     audit.ActionContributionPaid,
		EntityType: "contribution_due",
		EntityID:   d.ID.String(),
		Before:     audit.Snapshot(before),
		After:      audit.Snapshot(d),
		Timestamp:  now,
	})
	if s.logger != nil {
		s.logger.InfoContext(ctx, "contribution payment recorded",
			"fund_id", in.FundID,
			"due_id", d.ID,
			"amount_applied", applied,
			"status", d.Status,
		)
	}
	return result, nil
}

// replayResult rebuilds the payment result from the recorded transaction and
// the due it mutated.
func (s *Service) replayResult(ctx context.Context, tx *ledgermodels.Transaction) (*PaymentResult, error) {
	dueID, err := id.ParseDueID(tx.SourceRef)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "ledger transaction has no usable due reference")
	}
	d, err := s.loadDue(ctx, tx.FundID, dueID)
	if err != nil {
		return nil, err
	}
	if s.logger != nil {
		s.logger.InfoContext(ctx, "payment replay detected",
			"fund_id", tx.FundID, "due_id", dueID, "idempotency_key", tx.IdempotencyKey)
	}
	return &PaymentResult{
		DueID:            d.ID,
		AmountApplied:    tx.Amount,
		RemainingBalance: d.RemainingBalance(),
		Status:           d.Status,
		Version:          d.Version,
	}, nil
}

// SweepResult reports one overdue sweep pass.
type SweepResult struct {
	Examined     int `json:"examined"`
	Transitioned int `json:"transitioned"`
}

// MarkLate moves Pending dues past their grace period to Late. Each
// transition commits independently, so the sweep can be interrupted and
// re-run without corrupting state.
func (s *Service) MarkLate(ctx context.Context) (*SweepResult, error) {
	now := requestcontext.Now(ctx)
	cutoff := now.Add(-s.grace)
	dues, err := s.dues.ListPendingDueBefore(ctx, cutoff, s.sweepBatch)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list late candidates")
	}

	result := &SweepResult{Examined: len(dues)}
	for _, d := range dues {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := d.CanMarkLate(cutoff); err != nil {
			continue
		}
		expected := d.Version
		d.ApplyLate(now)
		if err := s.transition(ctx, d, expected, now); err != nil {
			continue
		}
		result.Transitioned++
	}
	return result, nil
}

// MarkMissed closes out the previous cycle: any due still payable moves to
// Missed.
func (s *Service) MarkMissed(ctx context.Context) (*SweepResult, error) {
	now := requestcontext.Now(ctx)
	month := id.MonthOf(now).Prev()
	dues, err := s.dues.ListOpenByMonth(ctx, month, s.sweepBatch)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list missed candidates")
	}

	result := &SweepResult{Examined: len(dues)}
	for _, d := range dues {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := d.CanMarkMissed(); err != nil {
			continue
		}
		expected := d.Version
		d.ApplyMissed(now)
		if err := s.transition(ctx, d, expected, now); err != nil {
			continue
		}
		result.Transitioned++
	}
	return result, nil
}

// transition commits one sweep state change and emits its overdue event.
// A version mismatch means a payment won the race; the due is left alone.
// The update runs through the same transactional boundary as payments so the
// two writers cannot interleave.
func (s *Service) transition(ctx context.Context, d *models.ContributionDue, expectedVersion int64, now time.Time) error {
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		return s.dues.Update(ctx, d, expectedVersion)
	})
	if err != nil {
		if s.logger != nil && !errors.Is(err, sentinel.ErrVersionMismatch) {
			s.logger.WarnContext(ctx, "overdue transition failed",
				"due_id", d.ID, "status", d.Status, "error", err)
		}
		return err
	}
	s.publish(ctx, events.TypeContributionOverdue, d.FundID, d.ID.String(), now, events.ContributionOverdue{
		DueID:  d.ID,
		FundID: d.FundID,
		UserID: d.UserID,
		Month:  d.Month,
		Status: string(d.Status),
	})
	s.emitAudit(ctx, audit.Event{
		FundID:     d.FundID,
		Action:     audit.ActionContributionOverdue,
		EntityType: "contribution_due",
		EntityID:   d.ID.String(),
		After:      audit.Snapshot(d),
		Timestamp:  now,
	})
	return nil
}

// GetDue returns one due.
func (s *Service) GetDue(ctx context.Context, fundID id.FundID, dueID id.DueID) (*models.ContributionDue, error) {
	return s.loadDue(ctx, fundID, dueID)
}

// ListCycle returns all dues of a fund's cycle.
func (s *Service) ListCycle(ctx context.Context, fundID id.FundID, month id.Month) ([]*models.ContributionDue, error) {
	dues, err := s.dues.ListByFundAndMonth(ctx, fundID, month)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list contribution dues")
	}
	return dues, nil
}

func (s *Service) loadDue(ctx context.Context, fundID id.FundID, dueID id.DueID) (*models.ContributionDue, error) {
	d, err := s.dues.Get(ctx, dueID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "contribution due not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load contribution due")
	}
	if d.FundID != fundID {
		return nil, dErrors.New(dErrors.CodeNotFound, "contribution due not found")
	}
	return d, nil
}

func validatePayment(in PaymentInput) error {
	if in.FundID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "fund_id is required")
	}
	if in.DueID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "due_id is required")
	}
	if !money.ValidAmount(in.Amount) || in.Amount.IsZero() {
		return dErrors.New(dErrors.CodeValidation, "amount must be positive with at most 2 decimals")
	}
	if in.IdempotencyKey == "" {
		return dErrors.New(dErrors.CodeValidation, "idempotency key is required")
	}
	if in.ExpectedVersion <= 0 {
		return dErrors.New(dErrors.CodeValidation, "expected version must be positive")
	}
	return nil
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
