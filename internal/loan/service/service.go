// Package service implements loan disbursement, repayment recording, and
// interest accrual.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	ledgermodels "fundpool/internal/ledger/models"
	ledger "fundpool/internal/ledger/service"
	"fundpool/internal/loan/models"
	"fundpool/internal/loan/store"
	id "fundpool/pkg/domain"
	dErrors "fundpool/pkg/domain-errors"
	"fundpool/pkg/money"
	"fundpool/pkg/platform/audit"
	"fundpool/pkg/platform/events"
	"fundpool/pkg/platform/sentinel"
	platformtx "fundpool/pkg/platform/tx"
	"fundpool/pkg/requestcontext"
)

// DefaultAccrualBatch caps how many loans one accrual pass touches.
const DefaultAccrualBatch = 500

// Service owns loan money movement.
type Service struct {
	loans        store.Store
	ledger       *ledger.Service
	tx           platformtx.Runner
	events       events.Publisher
	audit        *audit.Publisher
	logger       *slog.Logger
	accrualBatch int
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

func WithAccrualBatch(n int) Option {
	return func(s *Service) { s.accrualBatch = n }
}

// WithTxRunner sets the transactional boundary for the repayment write path.
// Postgres deployments pass a SQL runner so the loan update and both ledger
// appends commit together.
func WithTxRunner(r platformtx.Runner) Option {
	return func(s *Service) { s.tx = r }
}

func New(loans store.Store, ledgerSvc *ledger.Service, opts ...Option) (*Service, error) {
	if loans == nil {
		return nil, errors.New("loan store is required")
	}
	if ledgerSvc == nil {
		return nil, errors.New("ledger service is required")
	}
	svc := &Service{
		loans:        loans,
		ledger:       ledgerSvc,
		tx:           platformtx.NewMemory(),
		accrualBatch: DefaultAccrualBatch,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// DisburseInput describes one loan disbursement.
type DisburseInput struct {
	FundID               id.FundID
	UserID               id.UserID
	Principal            decimal.Decimal
	MonthlyRate          decimal.Decimal
	MinimumPrincipal     decimal.Decimal
	ScheduledInstallment decimal.Decimal
	IdempotencyKey       string
	RecordedBy           id.UserID
	Description          string
}

// Disburse creates an active loan and records the outgoing principal in the
// ledger. A replayed idempotency key returns the previously created loan.
func (s *Service) Disburse(ctx context.Context, in DisburseInput) (*models.Loan, error) {
	if in.IdempotencyKey == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "idempotency key is required")
	}
	existing, err := s.ledger.FindByIdempotencyKey(ctx, in.FundID, in.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return s.replayLoan(ctx, existing)
	}

	now := requestcontext.Now(ctx)
	l, err := models.NewLoan(in.FundID, in.UserID, in.Principal, in.MonthlyRate,
		in.MinimumPrincipal, in.ScheduledInstallment, now)
	if err != nil {
		return nil, err
	}
	// The loan row and its disbursement commit together; a fault leaves
	// neither, so the retry creates exactly one loan. The append goes first
	// because the in-memory runner has no rollback.
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := s.ledger.Record(ctx, ledger.RecordInput{
			FundID:         in.FundID,
			UserID:         in.UserID,
			Kind:           ledgermodels.KindDisbursement,
			Amount:         in.Principal,
			IdempotencyKey: in.IdempotencyKey,
			SourceRef:      l.ID.String(),
			RecordedBy:     in.RecordedBy,
			Description:    in.Description,
		}, now); err != nil {
			return err
		}
		if err := s.loans.Create(ctx, l); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create loan")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.TypeLoanDisbursed, in.FundID, l.ID.String(), now, events.LoanDisbursed{
		LoanID:      l.ID,
		FundID:      in.FundID,
		UserID:      in.UserID,
		Principal:   in.Principal,
		MonthlyRate: in.MonthlyRate,
	})
	s.emitAudit(ctx, audit.Event{
		FundID:     in.FundID,
		ActorID:    in.RecordedBy,
		Action:     audit.ActionLoanDisbursed,
		EntityType: "loan",
		EntityID:   l.ID.String(),
		After:      audit.Snapshot(l),
		Timestamp:  now,
	})
	if s.logger != nil {
		s.logger.InfoContext(ctx, "loan disbursed",
			"fund_id", in.FundID, "loan_id", l.ID, "principal", in.Principal)
	}
	return l, nil
}

// RepaymentInput is one repayment-recording request.
type RepaymentInput struct {
	FundID          id.FundID
	LoanID          id.LoanID
	Amount          decimal.Decimal
	IdempotencyKey  string
	ExpectedVersion int64
	RecordedBy      id.UserID
	Description     string
}

// RepaymentResult is what the caller gets back, replayed or fresh.
type RepaymentResult struct {
	LoanID               id.LoanID       `json:"loan_id"`
	InterestPaid         decimal.Decimal `json:"interest_paid"`
	PrincipalPaid        decimal.Decimal `json:"principal_paid"`
	ExcessApplied        decimal.Decimal `json:"excess_applied"`
	OutstandingPrincipal decimal.Decimal `json:"outstanding_principal"`
	UnpaidInterest       decimal.Decimal `json:"unpaid_interest"`
	Status               models.Status   `json:"status"`
	Version              int64           `json:"version"`
}

// RecordRepayment applies a repayment against one loan exactly once, with
// the same replay and compare-and-swap discipline as contribution payments.
// The allocation runs interest first, then scheduled principal, then excess
// to principal; interest actually collected lands in the ledger as fund
// income.
func (s *Service) RecordRepayment(ctx context.Context, in RepaymentInput) (*RepaymentResult, error) {
	if err := validateRepayment(in); err != nil {
		return nil, err
	}

	existing, err := s.ledger.FindByIdempotencyKey(ctx, in.FundID, in.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return s.replayRepayment(ctx, existing)
	}

	now := requestcontext.Now(ctx)
	var (
		l          *models.Loan
		before     models.Loan
		allocation money.Allocation
	)
	// Both ledger rows and the loan update commit together, so a fault
	// part-way through leaves the key unburned and the loan untouched; the
	// retry applies cleanly and the replay path never sees a repayment whose
	// interest row or events went missing. Appends go first because the
	// in-memory runner has no rollback.
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		l, err = s.loadLoan(ctx, in.FundID, in.LoanID)
		if err != nil {
			return err
		}
		if l.Version != in.ExpectedVersion {
			return dErrors.New(dErrors.CodeConcurrencyConflict,
				"loan was modified concurrently; refetch and retry with the current version").
				WithDetails(map[string]any{"current_version": l.Version})
		}
		if err := l.CanReceiveRepayment(); err != nil {
			return err
		}

		before = *l
		allocation = l.ApplyRepayment(in.Amount, now)

		applied := money.Round(allocation.InterestPaid.Add(allocation.PrincipalPaid).Add(allocation.ExcessApplied))
		if _, err := s.ledger.Record(ctx, ledger.RecordInput{
			FundID:         in.FundID,
			UserID:         l.UserID,
			Kind:           ledgermodels.KindRepayment,
			Amount:         applied,
			IdempotencyKey: in.IdempotencyKey,
			SourceRef:      l.ID.String(),
			RecordedBy:     in.RecordedBy,
			Description:    in.Description,
		}, now); err != nil {
			return err
		}
		if allocation.InterestPaid.IsPositive() {
			// Interest collected is fund income, tracked separately from the
			// principal flow so the settlement pool can be derived from the
			// ledger alone.
			if _, err := s.ledger.Record(ctx, ledger.RecordInput{
				FundID:         in.FundID,
				UserID:         l.UserID,
				Kind:           ledgermodels.KindInterestIncome,
				Amount:         allocation.InterestPaid,
				IdempotencyKey: in.IdempotencyKey + ":interest",
				SourceRef:      l.ID.String(),
				RecordedBy:     in.RecordedBy,
				Description:    "interest portion of repayment",
			}, now); err != nil {
				return err
			}
		}
		if err := s.loans.Update(ctx, l, in.ExpectedVersion); err != nil {
			if errors.Is(err, sentinel.ErrVersionMismatch) {
				return dErrors.New(dErrors.CodeConcurrencyConflict,
					"loan was modified concurrently; refetch and retry with the current version")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update loan")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result := &RepaymentResult{
		LoanID:               l.ID,
		InterestPaid:         allocation.InterestPaid,
		PrincipalPaid:        allocation.PrincipalPaid,
		ExcessApplied:        allocation.ExcessApplied,
		OutstandingPrincipal: l.OutstandingPrincipal,
		UnpaidInterest:       l.UnpaidInterest,
		Status:               l.Status,
		Version:              l.Version,
	}
	s.publish(ctx, events.TypeRepaymentRecorded, in.FundID, l.ID.String(), now, events.RepaymentRecorded{
		LoanID:               l.ID,
		FundID:               in.FundID,
		UserID:               l.UserID,
		InterestPaid:         allocation.InterestPaid,
		PrincipalPaid:        money.Round(allocation.PrincipalPaid.Add(allocation.ExcessApplied)),
		OutstandingPrincipal: l.OutstandingPrincipal,
		UnpaidInterest:       l.UnpaidInterest,
	})
	if l.Status == models.StatusClosed {
		s.publish(ctx, events.TypeLoanClosed, in.FundID, l.ID.String(), now, events.LoanClosed{
			LoanID: l.ID,
			FundID: in.FundID,
			UserID: l.UserID,
		})
	}
	s.emitAudit(ctx, audit.Event{
		FundID:     in.FundID,
		ActorID:    in.RecordedBy,
		Action:     audit.ActionRepaymentRecorded,
		EntityType: "loan",
		EntityID:   l.ID.String(),
		Before:     audit.Snapshot(before),
		After:      audit.Snapshot(l),
		Timestamp:  now,
	})
	if s.logger != nil {
		s.logger.InfoContext(ctx, "loan repayment recorded",
			"fund_id", in.FundID,
			"loan_id", l.ID,
			"interest_paid", allocation.InterestPaid,
			"principal_paid", allocation.PrincipalPaid,
			"excess_applied", allocation.ExcessApplied,
			"status", l.Status,
		)
	}
	return result, nil
}

// AccrueInterest adds one cycle's interest to every active loan, paging
// through the book in ID order so funds larger than one batch are fully
// covered. Safe to re-run within a cycle only if the caller guards
// scheduling; each pass accrues again.
func (s *Service) AccrueInterest(ctx context.Context) (int, error) {
	now := requestcontext.Now(ctx)
	accrued := 0
	var after id.LoanID
	for {
		loans, err := s.loans.ListActive(ctx, after, s.accrualBatch)
		if err != nil {
			return accrued, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list active loans")
		}
		for _, l := range loans {
			if err := ctx.Err(); err != nil {
				return accrued, err
			}
			expected := l.Version
			l.AccrueInterest(now)
			err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
				return s.loans.Update(ctx, l, expected)
			})
			if err != nil {
				continue
			}
			accrued++
		}
		if len(loans) < s.accrualBatch {
			return accrued, nil
		}
		after = loans[len(loans)-1].ID
	}
}

// GetLoan returns one loan.
func (s *Service) GetLoan(ctx context.Context, fundID id.FundID, loanID id.LoanID) (*models.Loan, error) {
	return s.loadLoan(ctx, fundID, loanID)
}

// ListByFund returns a fund's loans.
func (s *Service) ListByFund(ctx context.Context, fundID id.FundID) ([]*models.Loan, error) {
	loans, err := s.loans.ListByFund(ctx, fundID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list loans")
	}
	return loans, nil
}

func (s *Service) replayLoan(ctx context.Context, tx *ledgermodels.Transaction) (*models.Loan, error) {
	loanID, err := id.ParseLoanID(tx.SourceRef)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "ledger transaction has no usable loan reference")
	}
	return s.loadLoan(ctx, tx.FundID, loanID)
}

func (s *Service) replayRepayment(ctx context.Context, tx *ledgermodels.Transaction) (*RepaymentResult, error) {
	loanID, err := id.ParseLoanID(tx.SourceRef)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "ledger transaction has no usable loan reference")
	}
	l, err := s.loadLoan(ctx, tx.FundID, loanID)
	if err != nil {
		return nil, err
	}
	if s.logger != nil {
		s.logger.InfoContext(ctx, "repayment replay detected",
			"fund_id", tx.FundID, "loan_id", loanID, "idempotency_key", tx.IdempotencyKey)
	}
	// The split across buckets is not re-derivable from the single ledger
	// row; replays return the applied total and current loan state.
	return &RepaymentResult{
		LoanID:               l.ID,
		PrincipalPaid:        tx.Amount,
		OutstandingPrincipal: l.OutstandingPrincipal,
		UnpaidInterest:       l.UnpaidInterest,
		Status:               l.Status,
		Version:              l.Version,
	}, nil
}

func (s *Service) loadLoan(ctx context.Context, fundID id.FundID, loanID id.LoanID) (*models.Loan, error) {
	l, err := s.loans.Get(ctx, loanID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "loan not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load loan")
	}
	if l.FundID != fundID {
		return nil, dErrors.New(dErrors.CodeNotFound, "loan not found")
	}
	return l, nil
}

func validateRepayment(in RepaymentInput) error {
	if in.FundID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "fund_id is required")
	}
	if in.LoanID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "loan_id is required")
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
