package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/billingd/internal/handler"
	"github.com/dukerupert/billingd/internal/middleware"
	"github.com/dukerupert/billingd/internal/store"
	billingstripe "github.com/dukerupert/billingd/internal/stripe"
)

type Config struct {
	Stripe  billingstripe.Config
	BaseURL string
}

type Server struct {
	db            *sql.DB
	users         *store.UserStore
	sessions      *store.SessionStore
	subscriptions *store.SubscriptionStore
	webhookH      *handler.WebhookHandler
	checkoutH     *handler.CheckoutHandler
	subscriptionH *handler.SubscriptionHandler
	catalogH      *handler.CatalogHandler
	rateLimiter   *middleware.RateLimiter
	logger        *slog.Logger
}

func New(db *sql.DB, cfg Config, logger *slog.Logger) *Server {
	users := store.NewUserStore(db)
	sessions := store.NewSessionStore(db)
	products := store.NewProductStore(db)
	prices := store.NewPriceStore(db)
	subscriptions := store.NewSubscriptionStore(db)
	events := store.NewWebhookEventStore(db)

	stripeClient := billingstripe.NewClient(cfg.Stripe)

	webhookH := handler.NewWebhookHandler(
		stripeClient, products, prices, subscriptions, users, events,
		logger.With("component", "webhook"),
	)
	checkoutH := handler.NewCheckoutHandler(
		stripeClient, users, cfg.BaseURL,
		logger.With("component", "checkout"),
	)
	subscriptionH := handler.NewSubscriptionHandler(subscriptions, logger.With("component", "subscription"))
	catalogH := handler.NewCatalogHandler(products, prices, logger.With("component", "catalog"))

	return &Server{
		db:            db,
		users:         users,
		sessions:      sessions,
		subscriptions: subscriptions,
		webhookH:      webhookH,
		checkoutH:     checkoutH,
		subscriptionH: subscriptionH,
		catalogH:      catalogH,
		rateLimiter:   middleware.NewRateLimiter(),
		logger:        logger,
	}
}

// SessionStore returns the session store for cleanup tasks.
func (s *Server) SessionStore() *store.SessionStore {
	return s.sessions
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthCheck)

	// Provider webhook (public, signature-verified, never rate limited)
	mux.HandleFunc("POST /webhook", s.webhookH.HandleWebhook)

	// Public catalog (rate limited)
	rateLimitMw := middleware.RateLimit(s.rateLimiter, middleware.RealIP, 60, time.Minute)
	mux.Handle("GET /products", rateLimitMw(http.HandlerFunc(s.catalogH.ListProducts)))
	mux.Handle("GET /prices", rateLimitMw(http.HandlerFunc(s.catalogH.ListPrices)))

	// Subscription CRUD
	mux.HandleFunc("GET /subscriptions", s.subscriptionH.List)
	mux.HandleFunc("GET /subscription/{id}", s.subscriptionH.Get)
	mux.HandleFunc("POST /subscriptions", s.subscriptionH.Create)
	mux.HandleFunc("PATCH /subscriptions/{id}", s.subscriptionH.Patch)
	mux.HandleFunc("DELETE /subscriptions/{id}", s.subscriptionH.Delete)

	// Checkout and portal require the current user
	authMw := middleware.RequireAuth(s.sessions)
	mux.Handle("POST /checkout", authMw(http.HandlerFunc(s.checkoutH.CreateCheckoutSession)))
	mux.Handle("POST /portal", authMw(http.HandlerFunc(s.checkoutH.BillingPortal)))

	return middleware.RequestLogger(s.logger)(mux)
}

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
