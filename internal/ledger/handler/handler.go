// Package handler exposes read-only ledger queries.
package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"fundpool/internal/ledger/models"
	"fundpool/internal/ledger/service"
	id "fundpool/pkg/domain"
	"fundpool/pkg/platform/httputil"
)

// Handler serves the fund transaction history. The ledger is append-only, so
// there are no mutation endpoints; writes happen inside the owning domains.
type Handler struct {
	service *service.Service
}

func New(svc *service.Service) *Handler {
	return &Handler{service: svc}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/funds/{fundID}/transactions", h.HandleList)
}

// TransactionResponse is the wire shape of one ledger entry.
type TransactionResponse struct {
	ID          string    `json:"id"`
	FundID      string    `json:"fund_id"`
	UserID      string    `json:"user_id"`
	Kind        string    `json:"kind"`
	Amount      string    `json:"amount"`
	SourceRef   string    `json:"source_ref,omitempty"`
	RecordedBy  string    `json:"recorded_by"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func fromTransaction(tx *models.Transaction) TransactionResponse {
	return TransactionResponse{
		ID:          tx.ID.String(),
		FundID:      tx.FundID.String(),
		UserID:      tx.UserID.String(),
		Kind:        string(tx.Kind),
		Amount:      tx.Amount.StringFixed(2),
		SourceRef:   tx.SourceRef,
		RecordedBy:  tx.RecordedBy.String(),
		Description: tx.Description,
		CreatedAt:   tx.CreatedAt,
	}
}

// HandleList handles GET /funds/{fundID}/transactions. An optional user_id
// query parameter narrows the history to one member.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	fundID, err := id.ParseFundID(chi.URLParam(r, "fundID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var txs []*models.Transaction
	if raw := r.URL.Query().Get("user_id"); raw != "" {
		userID, err := id.ParseUserID(raw)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		txs, err = h.service.ListByFundAndUser(ctx, fundID, userID)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
	} else {
		txs, err = h.service.ListByFund(ctx, fundID)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
	}

	out := make([]TransactionResponse, 0, len(txs))
	for _, tx := range txs {
		out = append(out, fromTransaction(tx))
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}
