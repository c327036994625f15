package audit

import (
	"context"

	id "fundpool/pkg/domain"
)

// ChannelStore decouples audit emission from storage latency: Append places
// the event on a buffered channel and a background worker drains it into the
// durable store. Reads go straight to the durable store, so recent events may
// not be visible until the worker catches up.
type ChannelStore struct {
	durable Store
	inbox   chan Event
}

func NewChannelStore(durable Store, buffer int) *ChannelStore {
	return &ChannelStore{
		durable: durable,
		inbox:   make(chan Event, buffer),
	}
}

// Inbox is consumed by the worker.
func (s *ChannelStore) Inbox() <-chan Event { return s.inbox }

// Append enqueues the event. Blocks when the buffer is full so audit events
// are never dropped under load.
func (s *ChannelStore) Append(ctx context.Context, event Event) error {
	select {
	case s.inbox <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *ChannelStore) ListByFund(ctx context.Context, fundID id.FundID) ([]Event, error) {
	return s.durable.ListByFund(ctx, fundID)
}
