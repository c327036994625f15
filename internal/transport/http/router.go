// Package http assembles the service's HTTP surface: middleware chain,
// domain handlers, and operational endpoints.
package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	contributionhandler "fundpool/internal/contribution/handler"
	dissolutionhandler "fundpool/internal/dissolution/handler"
	ledgerhandler "fundpool/internal/ledger/handler"
	loanhandler "fundpool/internal/loan/handler"
	"fundpool/pkg/platform/middleware/auth"
	"fundpool/pkg/platform/middleware/metadata"
	"fundpool/pkg/platform/middleware/requesttime"
)

// Deps are the wired handlers the router mounts.
type Deps struct {
	JWTSigningKey []byte

	Contribution *contributionhandler.Handler
	Loan         *loanhandler.Handler
	Dissolution  *dissolutionhandler.Handler
	Ledger       *ledgerhandler.Handler
}

// NewRouter builds the full router. Operational endpoints are unauthenticated;
// everything under /api/v1 requires a bearer token.
func NewRouter(deps Deps) chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(metadata.Middleware)
	r.Use(requesttime.Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(auth.RequireUser(deps.JWTSigningKey))
		deps.Contribution.Register(api)
		deps.Loan.Register(api)
		deps.Dissolution.Register(api)
		deps.Ledger.Register(api)
	})

	return r
}
