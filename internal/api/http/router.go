package http

import (
	"net/http"
	"time"

	"toolrent-backend/internal/security"

	"github.com/gorilla/mux"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// limiterIdleTTL is how long a client address keeps its rate limiter after
// its last request.
const limiterIdleTTL = 10 * time.Minute

type RouterOptions struct {
	RequestsPerSecond float64
	Burst             int
	IdempotencyTTL    time.Duration
}

// NewRouter registers every booking route under its security route name.
func NewRouter(h *Handler, tm security.TokenManager, opts RouterOptions) *mux.Router {
	if opts.IdempotencyTTL <= 0 {
		opts.IdempotencyTTL = time.Hour
	}

	router := mux.NewRouter()
	router.HandleFunc("/healthz", h.Health).Methods(http.MethodGet).Name("health")

	api := router.PathPrefix("/api/v1").Subrouter()

	// Availability
	api.HandleFunc("/availability", h.CheckAvailability).Methods(http.MethodPost).Name("availability.check")
	api.HandleFunc("/tools/available", h.ListAvailableTools).Methods(http.MethodGet).Name("availability.listTools")

	// Reservations
	api.HandleFunc("/reservations", h.CreateReservation).Methods(http.MethodPost).Name("reservations.create")
	api.HandleFunc("/reservations/{id}", h.GetReservation).Methods(http.MethodGet).Name("reservations.get")
	api.HandleFunc("/reservations/{id}/cancel", h.CancelReservation).Methods(http.MethodPost).Name("reservations.cancel")
	api.HandleFunc("/reservations/{id}/checkout", h.CheckoutReservation).Methods(http.MethodPost).Name("reservations.checkout")
	api.HandleFunc("/my/reservations", h.MyReservations).Methods(http.MethodGet).Name("reservations.mine")
	api.HandleFunc("/my/reservations/history", h.MyReservationHistory).Methods(http.MethodGet).Name("reservations.history")

	// Loans
	api.HandleFunc("/loans/checkout", h.CheckoutLoans).Methods(http.MethodPost).Name("loans.checkout")
	api.HandleFunc("/loans/{id}", h.GetLoan).Methods(http.MethodGet).Name("loans.get")
	api.HandleFunc("/loans/{id}/return", h.ReturnLoan).Methods(http.MethodPost).Name("loans.return")

	// Admin
	api.HandleFunc("/admin/reservations", h.SearchReservations).Methods(http.MethodGet).Name("admin.reservations.search")
	api.HandleFunc("/admin/loans", h.SearchLoans).Methods(http.MethodGet).Name("admin.loans.search")
	api.HandleFunc("/admin/loans/overdue", h.ListOverdueLoans).Methods(http.MethodGet).Name("admin.loans.overdue")

	router.Use(RequestID, Logging)
	if opts.RequestsPerSecond > 0 {
		router.Use(NewIPRateLimiter(rate.Limit(opts.RequestsPerSecond), opts.Burst, limiterIdleTTL).Middleware)
	}
	router.Use(Auth(tm))
	router.Use(Idempotency(cache.New(opts.IdempotencyTTL, 2*opts.IdempotencyTTL), opts.IdempotencyTTL))

	return router
}
