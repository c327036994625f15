package audit

import (
	"context"
	"time"

	id "fundpool/pkg/domain"
	"fundpool/pkg/platform/events"
	"fundpool/pkg/requestcontext"
)

// Store persists audit events. Append-only; there is no update or delete.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByFund(ctx context.Context, fundID id.FundID) ([]Event, error)
}

// Publisher records audit events durably and forwards them to the audit
// topic. Persistence uses the store so tests can swap sinks easily.
type Publisher struct {
	store   Store
	events  events.Publisher
	service string
}

// NewPublisher builds a publisher. The events publisher is optional; when nil
// the audit trail is store-only.
func NewPublisher(store Store, eventPublisher events.Publisher, service string) *Publisher {
	return &Publisher{store: store, events: eventPublisher, service: service}
}

// Emit persists the event and forwards it to the audit topic. The request ID
// and timestamp are filled from context when absent.
func (p *Publisher) Emit(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}
	event.Service = p.service

	if err := p.store.Append(ctx, event); err != nil {
		return err
	}
	if p.events == nil {
		return nil
	}
	envelope, err := events.New(events.TypeAuditLogged, event.FundID, event.EntityID, event.Timestamp, event)
	if err != nil {
		return err
	}
	return p.events.Publish(ctx, envelope)
}

// ListByFund returns the fund's audit trail, newest first where the store
// orders it so.
func (p *Publisher) ListByFund(ctx context.Context, fundID id.FundID) ([]Event, error) {
	return p.store.ListByFund(ctx, fundID)
}
