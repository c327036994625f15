// Package worker runs the overdue-detection sweeps on a fixed interval.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"fundpool/internal/contribution/metrics"
	"fundpool/internal/contribution/models"
	"fundpool/internal/contribution/service"
	"fundpool/pkg/requestcontext"
)

// DefaultInterval is the time between sweep passes.
const DefaultInterval = time.Hour

// Sweeper periodically marks dues Late and Missed. Every pass is idempotent,
// so a missed or doubled tick changes nothing.
type Sweeper struct {
	svc      *service.Service
	interval time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

type Option func(*Sweeper)

func WithInterval(interval time.Duration) Option {
	return func(s *Sweeper) { s.interval = interval }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Sweeper) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Sweeper) { s.metrics = m }
}

func New(svc *service.Service, opts ...Option) (*Sweeper, error) {
	if svc == nil {
		return nil, errors.New("contribution service is required")
	}
	s := &Sweeper{svc: svc, interval: DefaultInterval}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Run sweeps until the context is cancelled. A failing pass is logged and
// retried on the next tick; sweeps commit per row, so partial progress is
// kept.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	ctx = requestcontext.WithTime(ctx, time.Now())

	late, err := s.svc.MarkLate(ctx)
	if err != nil {
		s.log(ctx, "late sweep failed", err)
	} else if late.Transitioned > 0 {
		s.metrics.IncrementOverdueTransitions(string(models.StatusLate), late.Transitioned)
		if s.logger != nil {
			s.logger.InfoContext(ctx, "late sweep completed",
				"examined", late.Examined, "transitioned", late.Transitioned)
		}
	}

	missed, err := s.svc.MarkMissed(ctx)
	if err != nil {
		s.log(ctx, "missed sweep failed", err)
	} else if missed.Transitioned > 0 {
		s.metrics.IncrementOverdueTransitions(string(models.StatusMissed), missed.Transitioned)
		if s.logger != nil {
			s.logger.InfoContext(ctx, "missed sweep completed",
				"examined", missed.Examined, "transitioned", missed.Transitioned)
		}
	}
}

func (s *Sweeper) log(ctx context.Context, msg string, err error) {
	if s.logger == nil || errors.Is(err, context.Canceled) {
		return
	}
	s.logger.ErrorContext(ctx, msg, "error", err)
}
