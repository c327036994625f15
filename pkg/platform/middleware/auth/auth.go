// Package auth provides bearer-token identity extraction. Token issuance is
// owned by an external identity service; this middleware only verifies the
// signature and injects the caller's identity into the request context.
package auth

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	id "fundpool/pkg/domain"
	dErrors "fundpool/pkg/domain-errors"
	"fundpool/pkg/platform/httputil"
	"fundpool/pkg/requestcontext"
)

// Claims are the token claims this service consumes. `sub` carries the user
// ID; `fund_admin` marks fund administrators.
type Claims struct {
	FundAdmin bool `json:"fund_admin"`
	jwt.RegisteredClaims
}

// RequireUser validates the bearer token and injects the user identity.
// Requests without a valid token never reach domain logic.
func RequireUser(signingKey []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "bearer token required"))
				return
			}
			raw := strings.TrimPrefix(header, "Bearer ")

			claims := &Claims{}
			token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return signingKey, nil
			})
			if err != nil || !token.Valid {
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "invalid token"))
				return
			}

			userID, err := id.ParseUserID(claims.Subject)
			if err != nil {
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "token subject is not a user id"))
				return
			}

			ctx := requestcontext.WithUserID(r.Context(), userID)
			ctx = requestcontext.WithFundAdmin(ctx, claims.FundAdmin)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireFundAdmin gates settlement lifecycle endpoints. Must run after
// RequireUser.
func RequireFundAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !requestcontext.IsFundAdmin(r.Context()) {
			httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "fund administrator role required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
