// Package handler wires loan endpoints to the loan service.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"fundpool/internal/idempotency"
	"fundpool/internal/loan/service"
	id "fundpool/pkg/domain"
	dErrors "fundpool/pkg/domain-errors"
	"fundpool/pkg/platform/httputil"
	"fundpool/pkg/platform/middleware/precondition"
	"fundpool/pkg/requestcontext"
)

const endpointRecordRepayment = "record_repayment"

// Handler exposes loan endpoints.
type Handler struct {
	service *service.Service
	guard   *idempotency.Guard
	logger  *slog.Logger
}

// New constructs a loan handler with its dependencies.
func New(svc *service.Service, guard *idempotency.Guard, logger *slog.Logger) *Handler {
	return &Handler{service: svc, guard: guard, logger: logger}
}

// Register mounts loan endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/funds/{fundID}/loans", h.HandleDisburse)
	r.Get("/funds/{fundID}/loans", h.HandleList)
	r.Get("/funds/{fundID}/loans/{loanID}", h.HandleGet)
	r.With(precondition.Require).Post("/funds/{fundID}/loans/{loanID}/repayments", h.HandleRecordRepayment)
}

// HandleDisburse handles POST /funds/{fundID}/loans. Disbursement moves
// pool money, so it requires the fund-admin role and an Idempotency-Key.
func (h *Handler) HandleDisburse(w http.ResponseWriter, r *http.Request) {
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
	key := strings.TrimSpace(r.Header.Get(precondition.HeaderIdempotencyKey))
	if key == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "Idempotency-Key header is required"))
		return
	}
	req, ok := httputil.DecodeAndPrepare[DisburseRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	l, err := h.service.Disburse(ctx, service.DisburseInput{
		FundID:               fundID,
		UserID:               req.parsedUserID,
		Principal:            req.parsedPrincipal,
		MonthlyRate:          req.parsedMonthlyRate,
		MinimumPrincipal:     req.parsedMinimumPrincipal,
		ScheduledInstallment: req.parsedScheduledInstallment,
		IdempotencyKey:       key,
		RecordedBy:           requestcontext.UserID(ctx),
		Description:          req.Description,
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "loan disbursement failed",
			"request_id", requestID, "fund_id", fundID, "error", err)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "loan disbursed",
		"request_id", requestID, "fund_id", fundID, "loan_id", l.ID)
	httputil.WriteJSON(w, http.StatusCreated, FromLoan(l))
}

// HandleRecordRepayment handles POST /funds/{fundID}/loans/{loanID}/repayments.
func (h *Handler) HandleRecordRepayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

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
	loanID, err := id.ParseLoanID(chi.URLParam(r, "loanID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[RepaymentRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	key := precondition.IdempotencyKey(ctx)
	result, err := h.guard.Execute(ctx, fundID, key, endpointRecordRepayment, func(ctx context.Context) (int, any, error) {
		res, err := h.service.RecordRepayment(ctx, service.RepaymentInput{
			FundID:          fundID,
			LoanID:          loanID,
			Amount:          req.ParsedAmount(),
			IdempotencyKey:  key,
			ExpectedVersion: precondition.ExpectedVersion(ctx),
			RecordedBy:      userID,
			Description:     req.Description,
		})
		if err != nil {
			return 0, nil, err
		}
		return http.StatusOK, FromRepaymentResult(res), nil
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "repayment recording failed",
			"request_id", requestID, "fund_id", fundID, "loan_id", loanID, "error", err)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "repayment recorded",
		"request_id", requestID, "fund_id", fundID, "loan_id", loanID, "replayed", result.Replayed)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(result.StatusCode)
	_, _ = w.Write(result.Body)
}

// HandleGet handles GET /funds/{fundID}/loans/{loanID}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	fundID, err := id.ParseFundID(chi.URLParam(r, "fundID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	loanID, err := id.ParseLoanID(chi.URLParam(r, "loanID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	l, err := h.service.GetLoan(ctx, fundID, loanID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.Header().Set("ETag", strconv.FormatInt(l.Version, 10))
	httputil.WriteJSON(w, http.StatusOK, FromLoan(l))
}

// HandleList handles GET /funds/{fundID}/loans.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	fundID, err := id.ParseFundID(chi.URLParam(r, "fundID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	loans, err := h.service.ListByFund(ctx, fundID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromLoans(loans))
}
