package controller

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
)

// ConfirmRateLimit bounds transfer confirmations per user, since each one
// drives platform calls through a receiver identity.
const ConfirmRateLimit = 10

func NewRouter(campaigns *CampaignController, listings *ListingController) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	// Campaign routes
	r.Get("/campaigns", campaigns.ListCampaigns)
	r.Get("/campaigns/{id}", campaigns.GetCampaignDetails)

	// Listing routes
	r.Post("/listings", listings.SubmitListing)
	r.Get("/listings/{id}/status", listings.QueryStatus)
	r.With(confirmLimiter()).Post("/listings/{id}/transfer", listings.ConfirmTransfer)
	return r
}

func confirmLimiter() func(http.Handler) http.Handler {
	window := time.Minute
	return httprate.Limit(
		ConfirmRateLimit,
		window,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			if id := r.Header.Get(UserHeader); id != "" {
				return "user:" + id, nil
			}
			return httprate.KeyByIP(r)
		}),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(window.Seconds())))
			writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "rate_limit_exceeded"})
		}),
	)
}
