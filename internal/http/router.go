package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	ledgerhttp "github.com/agave/factoring-ledger/internal/http/ledger"
)

func New(ledgerV1 *ledgerhttp.Handler, jwtSecret string) http.Handler {
	router := chi.NewRouter()

	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(Auth(jwtSecret))

		r.Route("/companies", func(r chi.Router) {
			r.Use(middleware.AllowContentType("application/json"))
			ledgerV1.CompanyRoutes(r)
		})

		r.Route("/transactions", func(r chi.Router) {
			r.Use(middleware.AllowContentType("application/json"))
			ledgerV1.TransactionRoutes(r, RequireRole(RoleApprover))
		})
	})

	return router
}
