// Package metadata assigns each request a correlation ID, reusing the
// caller's X-Request-ID when present.
package metadata

import (
	"net/http"

	"github.com/google/uuid"

	"fundpool/pkg/requestcontext"
)

const HeaderRequestID = "X-Request-ID"

func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, requestID)
		ctx := requestcontext.WithRequestID(r.Context(), requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
