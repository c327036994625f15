// Package handler wires dissolution endpoints to the settlement engine.
package handler

import (
	"encoding/csv"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"fundpool/internal/dissolution/metrics"
	"fundpool/internal/dissolution/service"
	id "fundpool/pkg/domain"
	dErrors "fundpool/pkg/domain-errors"
	"fundpool/pkg/platform/httputil"
	"fundpool/pkg/requestcontext"
)

// Handler exposes the settlement lifecycle and report endpoints.
type Handler struct {
	service *service.Service
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func New(svc *service.Service, logger *slog.Logger, m *metrics.Metrics) *Handler {
	return &Handler{service: svc, logger: logger, metrics: m}
}

// Register mounts dissolution endpoints. Lifecycle mutations require the
// fund-admin role; the report is open to any authenticated member.
func (h *Handler) Register(r chi.Router) {
	r.Post("/funds/{fundID}/dissolution", h.HandleInitiate)
	r.Post("/funds/{fundID}/dissolution/recalculate", h.HandleRecalculate)
	r.Post("/funds/{fundID}/dissolution/confirm", h.HandleConfirm)
	r.Get("/funds/{fundID}/dissolution", h.HandleGetReport)
	r.Get("/funds/{fundID}/dissolution/report.csv", h.HandleExportCSV)
}

// HandleInitiate handles POST /funds/{fundID}/dissolution.
func (h *Handler) HandleInitiate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	fundID, ok := h.requireAdmin(w, r)
	if !ok {
		return
	}
	settlement, err := h.service.Initiate(ctx, fundID, requestcontext.UserID(ctx))
	if err != nil {
		h.logger.ErrorContext(ctx, "dissolution initiation failed",
			"request_id", requestcontext.RequestID(ctx),
			"fund_id", fundID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	h.metrics.IncrementLifecycle("initiated")
	httputil.WriteJSON(w, http.StatusCreated, FromSettlement(settlement))
}

// HandleRecalculate handles POST /funds/{fundID}/dissolution/recalculate.
func (h *Handler) HandleRecalculate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	fundID, ok := h.requireAdmin(w, r)
	if !ok {
		return
	}
	start := time.Now()
	settlement, items, err := h.service.Recalculate(ctx, fundID)
	if err != nil {
		h.logger.ErrorContext(ctx, "settlement recalculation failed",
			"request_id", requestcontext.RequestID(ctx),
			"fund_id", fundID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	h.metrics.IncrementLifecycle("calculated")
	h.metrics.ObserveCalculation(len(items), time.Since(start).Seconds())
	httputil.WriteJSON(w, http.StatusOK, ReportResponse{
		Settlement: FromSettlement(settlement),
		LineItems:  FromLineItems(items),
	})
}

// HandleConfirm handles POST /funds/{fundID}/dissolution/confirm.
func (h *Handler) HandleConfirm(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	fundID, ok := h.requireAdmin(w, r)
	if !ok {
		return
	}
	settlement, err := h.service.Confirm(ctx, fundID, requestcontext.UserID(ctx))
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeConflict) {
			h.metrics.IncrementLifecycle("blocked")
		}
		h.logger.ErrorContext(ctx, "settlement confirmation failed",
			"request_id", requestcontext.RequestID(ctx),
			"fund_id", fundID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	h.metrics.IncrementLifecycle("confirmed")
	httputil.WriteJSON(w, http.StatusOK, FromSettlement(settlement))
}

// HandleGetReport handles GET /funds/{fundID}/dissolution. The ETag carries
// the settlement version.
func (h *Handler) HandleGetReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	fundID, err := id.ParseFundID(chi.URLParam(r, "fundID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	report, err := h.service.GetReport(ctx, fundID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.Header().Set("ETag", strconv.FormatInt(report.Settlement.Version, 10))
	httputil.WriteJSON(w, http.StatusOK, FromReport(report))
}

// HandleExportCSV handles GET /funds/{fundID}/dissolution/report.csv,
// streaming the line items as a spreadsheet for member review.
func (h *Handler) HandleExportCSV(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	fundID, err := id.ParseFundID(chi.URLParam(r, "fundID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	report, err := h.service.GetReport(ctx, fundID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="settlement-report.csv"`)

	writer := csv.NewWriter(w)
	_ = writer.Write([]string{
		"user_id", "weight", "contributions", "interest_share", "gross_payout",
		"outstanding_principal", "unpaid_interest", "unpaid_dues", "net_payout",
	})
	for _, item := range report.LineItems {
		resp := FromLineItem(item)
		_ = writer.Write([]string{
			resp.UserID, resp.Weight, resp.Contributions, resp.InterestShare,
			resp.GrossPayout, resp.OutstandingPrincipal, resp.UnpaidInterest,
			resp.UnpaidDues, resp.NetPayout,
		})
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		h.logger.ErrorContext(ctx, "csv export failed",
			"request_id", requestcontext.RequestID(ctx),
			"fund_id", fundID,
			"error", err,
		)
	}
}

func (h *Handler) requireAdmin(w http.ResponseWriter, r *http.Request) (id.FundID, bool) {
	ctx := r.Context()
	if !requestcontext.IsFundAdmin(ctx) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "fund administrator role required"))
		return id.FundID{}, false
	}
	fundID, err := id.ParseFundID(chi.URLParam(r, "fundID"))
	if err != nil {
		httputil.WriteError(w, err)
		return id.FundID{}, false
	}
	return fundID, true
}
