/**
 * @description
 * This file sets up the HTTP router for the credit service. It defines the API
 * endpoints, associates them with their corresponding handlers, and applies the
 * middleware for logging, recovery, CORS and authentication.
 *
 * @dependencies
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 * - github.com/go-chi/cors: CORS handling for browser clients.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// CreditRoutes creates and returns a new router for the credit service.
func CreditRoutes(h *Handlers, jwtSecret string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	// The gateway cannot authenticate; callbacks are checked by token in the handler.
	r.Post("/payments/mpesa/callback", h.MpesaCallbackHandler)
	r.Get("/payments/instructions", h.PaymentInstructionsHandler)

	r.Group(func(r chi.Router) {
		r.Use(JWTAuthMiddleware(jwtSecret))

		r.Post("/payments/mpesa/initiate", h.InitiatePaymentHandler)
		r.Post("/payments/mpesa/query", h.QueryPaymentStatusHandler)
		r.Get("/payments/history", h.PaymentHistoryHandler)
		r.Get("/payments/{paymentID}", h.GetPaymentHandler)
		r.Post("/payments/{paymentID}/cancel", h.CancelPaymentHandler)

		r.Post("/predictions/access", h.AccessPredictionHandler)
		r.Get("/predictions/status", h.AccessStatusHandler)
		r.Get("/predictions/history", h.AccessHistoryHandler)
	})

	return r
}
