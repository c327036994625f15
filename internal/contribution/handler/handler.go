// Package handler wires contribution endpoints to the contribution service.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"fundpool/internal/contribution/metrics"
	"fundpool/internal/contribution/service"
	"fundpool/internal/idempotency"
	id "fundpool/pkg/domain"
	dErrors "fundpool/pkg/domain-errors"
	"fundpool/pkg/platform/httputil"
	"fundpool/pkg/platform/middleware/precondition"
	"fundpool/pkg/requestcontext"
)

// endpointRecordPayment scopes idempotency records to the payment endpoint.
const endpointRecordPayment = "record_payment"

// Handler exposes contribution cycle and payment endpoints.
type Handler struct {
	service *service.Service
	guard   *idempotency.Guard
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// New constructs a contribution handler with its dependencies.
func New(svc *service.Service, guard *idempotency.Guard, logger *slog.Logger, m *metrics.Metrics) *Handler {
	return &Handler{
		service: svc,
		guard:   guard,
		logger:  logger,
		metrics: m,
	}
}

// Register mounts contribution endpoints on the router. The caller is
// expected to have applied authentication; generation additionally requires
// the fund-admin role and payments the precondition headers.
func (h *Handler) Register(r chi.Router) {
	r.Post("/funds/{fundID}/cycles/{month}/dues", h.HandleGenerateDues)
	r.Get("/funds/{fundID}/cycles/{month}/dues", h.HandleListCycle)
	r.Get("/funds/{fundID}/dues/{dueID}", h.HandleGetDue)
	r.With(precondition.Require).Post("/funds/{fundID}/dues/{dueID}/payments", h.HandleRecordPayment)
}

// HandleGenerateDues handles POST /funds/{fundID}/cycles/{month}/dues.
func (h *Handler) HandleGenerateDues(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	if !requestcontext.IsFundAdmin(ctx) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "fund administrator role required"))
		return
	}
	fundID, err := id.ParseFundID(chi.URLParam(r, "fundID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	month, err := id.ParseMonth(chi.URLParam(r, "month"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	result, err := h.service.GenerateDues(ctx, fundID, month)
	if err != nil {
		h.logger.ErrorContext(ctx, "cycle generation failed",
			"request_id", requestID,
			"fund_id", fundID,
			"month", month,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.metrics.AddDuesGenerated(result.Generated)
	h.logger.InfoContext(ctx, "cycle generation completed",
		"request_id", requestID,
		"fund_id", fundID,
		"month", month,
		"generated", result.Generated,
		"skipped", result.Skipped,
	)
	status := http.StatusCreated
	if result.Generated == 0 {
		status = http.StatusOK
	}
	httputil.WriteJSON(w, status, result)
}

// HandleRecordPayment handles POST /funds/{fundID}/dues/{dueID}/payments.
//
// The idempotency guard serves HTTP-level replays from cache; the service's
// ledger lookup covers replays that race the cache write.
func (h *Handler) HandleRecordPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	userID := requestcontext.UserID(ctx)
	if userID == (id.UserID{}) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}
	fundID, err := id.ParseFundID(chi.URLParam(r, "fundID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	dueID, err := id.ParseDueID(chi.URLParam(r, "dueID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[RecordPaymentRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	key := precondition.IdempotencyKey(ctx)
	result, err := h.guard.Execute(ctx, fundID, key, endpointRecordPayment, func(ctx context.Context) (int, any, error) {
		res, err := h.service.RecordPayment(ctx, service.PaymentInput{
			FundID:          fundID,
			DueID:           dueID,
			Amount:          req.ParsedAmount(),
			IdempotencyKey:  key,
			ExpectedVersion: precondition.ExpectedVersion(ctx),
			RecordedBy:      userID,
			Description:     req.Description,
		})
		if err != nil {
			return 0, nil, err
		}
		return http.StatusOK, FromPaymentResult(res), nil
	})
	if err != nil {
		h.metrics.IncrementPaymentOutcome("rejected")
		h.logger.ErrorContext(ctx, "payment recording failed",
			"request_id", requestID,
			"fund_id", fundID,
			"due_id", dueID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	outcome := "recorded"
	if result.Replayed {
		outcome = "replayed"
	}
	h.metrics.IncrementPaymentOutcome(outcome)
	h.metrics.ObservePaymentLatency(time.Since(start))
	h.logger.InfoContext(ctx, "payment recorded",
		"request_id", requestID,
		"fund_id", fundID,
		"due_id", dueID,
		"replayed", result.Replayed,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(result.StatusCode)
	_, _ = w.Write(result.Body)
}

// HandleGetDue handles GET /funds/{fundID}/dues/{dueID}. The response carries
// the current version in an ETag for use as the next If-Match value.
func (h *Handler) HandleGetDue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	fundID, err := id.ParseFundID(chi.URLParam(r, "fundID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	dueID, err := id.ParseDueID(chi.URLParam(r, "dueID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	d, err := h.service.GetDue(ctx, fundID, dueID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.Header().Set("ETag", strconv.FormatInt(d.Version, 10))
	httputil.WriteJSON(w, http.StatusOK, FromDue(d))
}

// HandleListCycle handles GET /funds/{fundID}/cycles/{month}/dues.
func (h *Handler) HandleListCycle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	fundID, err := id.ParseFundID(chi.URLParam(r, "fundID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	month, err := id.ParseMonth(chi.URLParam(r, "month"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	dues, err := h.service.ListCycle(ctx, fundID, month)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromDues(dues))
}
