package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Router wires the loopback API surface for the UI shell.
func (a *API) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		a.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/cart", func(r chi.Router) {
			r.Get("/", a.getCart)
			r.Delete("/", a.clearCart)
			r.Post("/lines", a.addLine)
			r.Put("/lines/{itemCode}", a.updateLine)
			r.Delete("/lines/{itemCode}", a.removeLine)
		})

		r.Route("/catalog", func(r chi.Router) {
			r.Post("/browse", a.browseCatalog)
			r.Post("/more", a.loadMoreCatalog)
			r.Post("/refresh", a.refreshCatalog)
			r.Post("/search", a.searchCatalog)
			r.Post("/search/keystroke", a.searchKeystroke)
			r.Get("/state", a.catalogState)
			r.Get("/categories", a.getCategories)
		})

		r.Delete("/cache", a.clearCache)

		r.Post("/orders", a.submitOrder)
		r.Post("/consignments", a.submitConsignment)
	})

	return r
}
