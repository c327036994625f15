package models

import (
	"time"

	"github.com/shopspring/decimal"

	id "fundpool/pkg/domain"
)

// Member is the contribution domain's local mirror of membership facts,
// maintained from member events. It exists so cycle generation never calls
// the membership domain synchronously.
type Member struct {
	FundID                    id.FundID       `json:"fund_id"`
	UserID                    id.UserID       `json:"user_id"`
	MonthlyContributionAmount decimal.Decimal `json:"monthly_contribution_amount"`
	Active                    bool            `json:"active"`
	JoinedAt                  time.Time       `json:"joined_at"`
}
