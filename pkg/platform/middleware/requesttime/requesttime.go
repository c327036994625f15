// Package requesttime pins one wall-clock reading per request so every
// timestamp written during the request agrees.
package requesttime

import (
	"net/http"
	"time"

	"fundpool/pkg/requestcontext"
)

func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithTime(r.Context(), time.Now().UTC())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
