// Package precondition enforces the idempotency and optimistic-concurrency
// headers on mutating endpoints. Missing or malformed preconditions are
// rejected here, before any domain logic runs.
package precondition

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	dErrors "fundpool/pkg/domain-errors"
	"fundpool/pkg/platform/httputil"
)

const (
	// HeaderIdempotencyKey deduplicates retried mutating requests.
	HeaderIdempotencyKey = "Idempotency-Key"

	// HeaderIfMatch carries the caller's expected aggregate version.
	HeaderIfMatch = "If-Match"

	maxKeyLength = 128
)

type (
	idempotencyKeyKey  struct{}
	expectedVersionKey struct{}
)

// IdempotencyKey retrieves the validated idempotency key from the context.
func IdempotencyKey(ctx context.Context) string {
	if key, ok := ctx.Value(idempotencyKeyKey{}).(string); ok {
		return key
	}
	return ""
}

// ExpectedVersion retrieves the validated expected version from the context.
func ExpectedVersion(ctx context.Context) int64 {
	if v, ok := ctx.Value(expectedVersionKey{}).(int64); ok {
		return v
	}
	return 0
}

// WithIdempotencyKey injects a key directly; test helper.
func WithIdempotencyKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, idempotencyKeyKey{}, key)
}

// WithExpectedVersion injects a version directly; test helper.
func WithExpectedVersion(ctx context.Context, version int64) context.Context {
	return context.WithValue(ctx, expectedVersionKey{}, version)
}

// Require validates both precondition headers and stashes the parsed values
// in the request context.
func Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimSpace(r.Header.Get(HeaderIdempotencyKey))
		if key == "" {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "Idempotency-Key header is required"))
			return
		}
		if len(key) > maxKeyLength {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "Idempotency-Key must be at most 128 characters"))
			return
		}

		rawVersion := strings.TrimSpace(strings.Trim(r.Header.Get(HeaderIfMatch), `"`))
		if rawVersion == "" {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "If-Match header with the expected version is required"))
			return
		}
		version, err := strconv.ParseInt(rawVersion, 10, 64)
		if err != nil || version < 1 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "If-Match must be a positive integer version"))
			return
		}

		ctx := WithIdempotencyKey(r.Context(), key)
		ctx = WithExpectedVersion(ctx, version)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
