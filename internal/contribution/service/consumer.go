package service

import (
	"context"

	"fundpool/internal/contribution/models"
	"fundpool/pkg/platform/events"
)

// HandleMemberEvent folds membership events into the roster projection.
// Upserts are idempotent so duplicate delivery is harmless; a member_joined
// for a previously removed member reactivates them with the amount the event
// carries.
func (s *Service) HandleMemberEvent(ctx context.Context, envelope events.Envelope) error {
	switch envelope.Type {
	case events.TypeMemberJoined:
		var payload events.MemberJoined
		if err := envelope.Decode(&payload); err != nil {
			return err
		}
		return s.roster.Upsert(ctx, models.Member{
			FundID:                    payload.FundID,
			UserID:                    payload.UserID,
			MonthlyContributionAmount: payload.MonthlyContributionAmount,
			Active:                    true,
			JoinedAt:                  envelope.OccurredAt,
		})
	case events.TypeMemberRemoved:
		var payload events.MemberRemoved
		if err := envelope.Decode(&payload); err != nil {
			return err
		}
		return s.roster.Deactivate(ctx, payload.FundID, payload.UserID)
	default:
		return nil
	}
}
