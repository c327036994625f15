package worker

import (
	"context"

	audit "fundpool/pkg/platform/audit"
)

// Worker drains audit events from a channel and persists them, decoupling
// hot request paths from audit storage latency.
type Worker struct {
	store audit.Store
	inbox <-chan audit.Event
}

func New(store audit.Store, inbox <-chan audit.Event) *Worker {
	return &Worker{store: store, inbox: inbox}
}

// Run consumes until the context is cancelled. A store failure stops the
// worker; the supervisor decides whether to restart.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-w.inbox:
			if err := w.store.Append(ctx, event); err != nil {
				return err
			}
		}
	}
}
