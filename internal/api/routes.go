// Package api exposes search and analytics over the listings store.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"car-market/internal/db"
)

// NewRouter creates and configures the Chi router
func NewRouter(database *db.DB, trigger TriggerFunc, log zerolog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestLogger(log))
	r.Use(CORS)

	h := NewHandlers(database, trigger, log)

	r.Route("/api", func(r chi.Router) {
		r.Post("/search", h.Search)
		r.Get("/listings/{id}", h.GetListing)
		r.Get("/popular/brands", h.PopularBrands)
		r.Get("/popular/models", h.PopularModels)
		r.Get("/price-history", h.PriceHistory)
		r.Post("/estimate", h.Estimate)
		r.Get("/status", h.Status)
		r.Post("/scrape/trigger", h.TriggerScrape)
	})

	return r
}
