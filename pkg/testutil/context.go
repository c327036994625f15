package testutil

import (
	"context"
	"testing"
	"time"

	id "fundpool/pkg/domain"
	"fundpool/pkg/requestcontext"
)

// Context returns a request-like context with a fixed time and request ID so
// service assertions are deterministic.
func Context(t *testing.T, now time.Time) context.Context {
	t.Helper()
	ctx := requestcontext.WithTime(context.Background(), now)
	return requestcontext.WithRequestID(ctx, "test-"+t.Name())
}

// ContextAs adds an acting user on top of Context.
func ContextAs(t *testing.T, now time.Time, userID id.UserID, admin bool) context.Context {
	t.Helper()
	ctx := requestcontext.WithUserID(Context(t, now), userID)
	return requestcontext.WithFundAdmin(ctx, admin)
}
