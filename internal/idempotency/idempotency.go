// Package idempotency deduplicates externally-retried mutating requests.
//
// A record is keyed by (fund, key, endpoint): the same caller key replayed
// against a different endpoint is a different operation. Replays within the
// retention window return the cached status and body without re-running any
// domain logic.
package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	id "fundpool/pkg/domain"
	dErrors "fundpool/pkg/domain-errors"
	"fundpool/pkg/platform/sentinel"
	"fundpool/pkg/requestcontext"
)

// DefaultTTL is how long cached responses are retained.
const DefaultTTL = 90 * 24 * time.Hour

// Record is one cached response.
type Record struct {
	FundID     id.FundID `json:"fund_id"`
	Key        string    `json:"key"`
	Endpoint   string    `json:"endpoint"`
	StatusCode int       `json:"status_code"`
	Body       []byte    `json:"body"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Store persists idempotency records. Records are write-once; Put for an
// existing (fund, key, endpoint) returns sentinel.ErrAlreadyUsed.
type Store interface {
	Get(ctx context.Context, fundID id.FundID, key, endpoint string) (*Record, error)
	Put(ctx context.Context, record Record, ttl time.Duration) error
}

// Result is what an operation produced, replayed or fresh.
type Result struct {
	StatusCode int
	Body       []byte
	Replayed   bool
}

// Operation runs the actual domain mutation and returns the response to
// cache on success. A non-nil error is never cached: retries re-attempt the
// operation, so state-dependent rejections are always judged against current
// state. Callers encode a rejection into status and body only when it must
// replay identically.
type Operation func(ctx context.Context) (status int, body any, err error)

// Guard wraps mutating operations with replay detection.
type Guard struct {
	store  Store
	ttl    time.Duration
	logger *slog.Logger
}

type Option func(*Guard)

func WithTTL(ttl time.Duration) Option {
	return func(g *Guard) { g.ttl = ttl }
}

func WithLogger(logger *slog.Logger) Option {
	return func(g *Guard) { g.logger = logger }
}

func NewGuard(store Store, opts ...Option) (*Guard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	g := &Guard{store: store, ttl: DefaultTTL}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Execute returns the cached response when the key was seen before, and runs
// op otherwise. Infrastructure faults from op are never cached: a retry must
// re-attempt the operation.
func (g *Guard) Execute(ctx context.Context, fundID id.FundID, key, endpoint string, op Operation) (Result, error) {
	if key == "" {
		return Result{}, dErrors.New(dErrors.CodeValidation, "idempotency key is required")
	}

	cached, err := g.store.Get(ctx, fundID, key, endpoint)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return Result{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read idempotency record")
	}
	if cached != nil {
		if g.logger != nil {
			g.logger.InfoContext(ctx, "idempotent replay served from cache",
				"fund_id", fundID, "endpoint", endpoint, "key", key)
		}
		return Result{StatusCode: cached.StatusCode, Body: cached.Body, Replayed: true}, nil
	}

	status, body, opErr := op(ctx)
	if opErr != nil {
		return Result{}, opErr
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return Result{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode response for caching")
	}
	record := Record{
		FundID:     fundID,
		Key:        key,
		Endpoint:   endpoint,
		StatusCode: status,
		Body:       raw,
		ExpiresAt:  requestcontext.Now(ctx).Add(g.ttl),
	}
	if putErr := g.store.Put(ctx, record, g.ttl); putErr != nil && !errors.Is(putErr, sentinel.ErrAlreadyUsed) {
		// The mutation already happened; losing the cache entry only costs
		// a future replay hitting the domain-level replay path.
		if g.logger != nil {
			g.logger.WarnContext(ctx, "failed to store idempotency record",
				"fund_id", fundID, "endpoint", endpoint, "key", key, "error", putErr)
		}
	}
	return Result{StatusCode: status, Body: raw}, nil
}
