// Package worker schedules the monthly interest accrual pass.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"fundpool/internal/loan/service"
	id "fundpool/pkg/domain"
	"fundpool/pkg/requestcontext"
)

// DefaultCheckInterval is how often the accruer checks for a cycle rollover.
const DefaultCheckInterval = time.Hour

// Accruer runs one interest accrual per contribution cycle. The service
// accrues on every call, so the accruer is the scheduling guard: it fires
// once when the month rolls over.
//
// TODO: persist the last accrued cycle per loan so a process restart inside
// a cycle cannot accrue twice.
type Accruer struct {
	svc      *service.Service
	interval time.Duration
	logger   *slog.Logger

	lastAccrued id.Month
}

type Option func(*Accruer)

func WithCheckInterval(interval time.Duration) Option {
	return func(a *Accruer) { a.interval = interval }
}

func WithLogger(logger *slog.Logger) Option {
	return func(a *Accruer) { a.logger = logger }
}

func New(svc *service.Service, opts ...Option) (*Accruer, error) {
	if svc == nil {
		return nil, errors.New("loan service is required")
	}
	a := &Accruer{svc: svc, interval: DefaultCheckInterval, lastAccrued: id.MonthOf(time.Now().UTC())}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Run checks for cycle rollovers until the context is cancelled.
func (a *Accruer) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			a.maybeAccrue(ctx)
		}
	}
}

func (a *Accruer) maybeAccrue(ctx context.Context) {
	now := time.Now().UTC()
	month := id.MonthOf(now)
	if month == a.lastAccrued {
		return
	}

	accrued, err := a.svc.AccrueInterest(requestcontext.WithTime(ctx, now))
	if err != nil {
		if a.logger != nil {
			a.logger.ErrorContext(ctx, "interest accrual failed", "month", month, "error", err)
		}
		return
	}
	a.lastAccrued = month
	if a.logger != nil {
		a.logger.InfoContext(ctx, "interest accrued", "month", month, "loans", accrued)
	}
}
