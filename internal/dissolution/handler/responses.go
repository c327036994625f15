package handler

import (
	"time"

	"fundpool/internal/dissolution/models"
	"fundpool/internal/dissolution/service"
)

// SettlementResponse is the wire shape of a settlement. Amounts are fixed to
// two decimal places.
type SettlementResponse struct {
	ID                 string     `json:"id"`
	FundID             string     `json:"fund_id"`
	Status             string     `json:"status"`
	TotalInterestPool  string     `json:"total_interest_pool"`
	TotalContributions string     `json:"total_contributions"`
	TotalWeight        string     `json:"total_weight"`
	InitiatedBy        string     `json:"initiated_by"`
	ConfirmedBy        *string    `json:"confirmed_by,omitempty"`
	SettlementDate     *time.Time `json:"settlement_date,omitempty"`
	Version            int64      `json:"version"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

type LineItemResponse struct {
	UserID               string `json:"user_id"`
	Weight               string `json:"weight"`
	Contributions        string `json:"contributions"`
	InterestShare        string `json:"interest_share"`
	GrossPayout          string `json:"gross_payout"`
	OutstandingPrincipal string `json:"outstanding_principal"`
	UnpaidInterest       string `json:"unpaid_interest"`
	UnpaidDues           string `json:"unpaid_dues"`
	NetPayout            string `json:"net_payout"`
}

type ReportResponse struct {
	Settlement SettlementResponse `json:"settlement"`
	LineItems  []LineItemResponse `json:"line_items"`
	CanConfirm bool               `json:"can_confirm"`
	Blockers   []LineItemResponse `json:"blockers,omitempty"`
}

func FromSettlement(s *models.Settlement) SettlementResponse {
	resp := SettlementResponse{
		ID:                 s.ID.String(),
		FundID:             s.FundID.String(),
		Status:             string(s.Status),
		TotalInterestPool:  s.TotalInterestPool.StringFixed(2),
		TotalContributions: s.TotalContributions.StringFixed(2),
		TotalWeight:        s.TotalWeight.StringFixed(2),
		InitiatedBy:        s.InitiatedBy.String(),
		SettlementDate:     s.SettlementDate,
		Version:            s.Version,
		CreatedAt:          s.CreatedAt,
		UpdatedAt:          s.UpdatedAt,
	}
	if s.ConfirmedBy != nil {
		confirmedBy := s.ConfirmedBy.String()
		resp.ConfirmedBy = &confirmedBy
	}
	return resp
}

func FromLineItem(item models.LineItem) LineItemResponse {
	return LineItemResponse{
		UserID:               item.UserID.String(),
		Weight:               item.Weight.StringFixed(2),
		Contributions:        item.Contributions.StringFixed(2),
		InterestShare:        item.InterestShare.StringFixed(2),
		GrossPayout:          item.GrossPayout.StringFixed(2),
		OutstandingPrincipal: item.OutstandingPrincipal.StringFixed(2),
		UnpaidInterest:       item.UnpaidInterest.StringFixed(2),
		UnpaidDues:           item.UnpaidDues.StringFixed(2),
		NetPayout:            item.NetPayout.StringFixed(2),
	}
}

func FromLineItems(items []models.LineItem) []LineItemResponse {
	out := make([]LineItemResponse, 0, len(items))
	for _, item := range items {
		out = append(out, FromLineItem(item))
	}
	return out
}

func FromReport(report *service.Report) ReportResponse {
	return ReportResponse{
		Settlement: FromSettlement(report.Settlement),
		LineItems:  FromLineItems(report.LineItems),
		CanConfirm: report.CanConfirm,
		Blockers:   FromLineItems(report.Blockers),
	}
}
