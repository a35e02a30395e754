package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/dukerupert/billingd/internal/redirect"
	"github.com/dukerupert/billingd/internal/store"
)

const (
	defaultRedirectPath = "/settings/billing"
	errorSuggestion     = "Please try again later or contact a system administrator."
)

// CheckoutResponse is the body of POST /checkout. Failures never use an
// HTTP error status: errorRedirect carries the error back to the
// browser flow instead.
type CheckoutResponse struct {
	SessionID     string `json:"sessionId,omitempty"`
	SessionURL    string `json:"sessionUrl,omitempty"`
	ErrorRedirect string `json:"errorRedirect,omitempty"`
}

type CheckoutHandler struct {
	provider Provider
	users    *store.UserStore
	baseURL  string
	logger   *slog.Logger
}

func NewCheckoutHandler(provider Provider, users *store.UserStore, baseURL string, logger *slog.Logger) *CheckoutHandler {
	return &CheckoutHandler{
		provider: provider,
		users:    users,
		baseURL:  baseURL,
		logger:   logger,
	}
}

// CreateCheckoutSession creates a subscription-mode hosted checkout
// session for the authenticated user.
func (h *CheckoutHandler) CreateCheckoutSession(w http.ResponseWriter, r *http.Request) {
	userID := UserIDFromContext(r.Context())
	if userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		PriceID      string `json:"price_id"`
		RedirectPath string `json:"redirect_path"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.PriceID == "" {
		req.PriceID = r.URL.Query().Get("price_id")
	}
	if req.RedirectPath == "" {
		req.RedirectPath = r.URL.Query().Get("redirect_path")
	}
	if req.RedirectPath == "" {
		req.RedirectPath = defaultRedirectPath
	}

	customerID, err := h.resolveOrCreateCustomer(userID)
	if err != nil {
		h.logger.Warn("checkout: resolve customer", "user_id", userID, "error", err)
		h.writeCheckoutError(w, req.RedirectPath, err)
		return
	}

	returnURL := h.baseURL + req.RedirectPath
	sessionID, sessionURL, err := h.provider.CreateCheckoutSession(customerID, req.PriceID, userID, returnURL, returnURL)
	if err != nil {
		h.logger.Warn("checkout: create session", "user_id", userID, "price_id", req.PriceID, "error", err)
		h.writeCheckoutError(w, req.RedirectPath, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(CheckoutResponse{SessionID: sessionID, SessionURL: sessionURL})
}

func (h *CheckoutHandler) writeCheckoutError(w http.ResponseWriter, redirectPath string, err error) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(CheckoutResponse{
		ErrorRedirect: redirect.ErrorURL(redirectPath, err.Error(), errorSuggestion),
	})
}

// BillingPortal creates a billing portal session and returns its URL as
// a JSON string, or an error redirect URL string on failure.
func (h *CheckoutHandler) BillingPortal(w http.ResponseWriter, r *http.Request) {
	userID := UserIDFromContext(r.Context())
	if userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		ReturnPath string `json:"return_path"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.ReturnPath == "" {
		req.ReturnPath = r.URL.Query().Get("return_path")
	}
	if req.ReturnPath == "" {
		req.ReturnPath = defaultRedirectPath
	}

	w.Header().Set("Content-Type", "application/json")

	customerID, err := h.resolveOrCreateCustomer(userID)
	if err != nil {
		h.logger.Warn("portal: resolve customer", "user_id", userID, "error", err)
		json.NewEncoder(w).Encode(redirect.ErrorURL(req.ReturnPath, err.Error(), errorSuggestion))
		return
	}

	url, err := h.provider.CreateBillingPortalSession(customerID, h.baseURL+req.ReturnPath)
	if err != nil {
		h.logger.Warn("portal: create session", "user_id", userID, "error", err)
		json.NewEncoder(w).Encode(redirect.ErrorURL(req.ReturnPath, err.Error(), errorSuggestion))
		return
	}

	json.NewEncoder(w).Encode(url)
}

// resolveOrCreateCustomer returns the user's provider customer ID,
// creating and persisting one when the user has none or the stored
// reference no longer resolves with the provider.
func (h *CheckoutHandler) resolveOrCreateCustomer(userID string) (string, error) {
	user, err := h.users.GetByID(userID)
	if err != nil {
		return "", err
	}
	if user == nil {
		return "", fmt.Errorf("user not found")
	}

	if user.StripeCustomerID != nil {
		customer, err := h.provider.GetCustomer(*user.StripeCustomerID)
		if err != nil {
			return "", err
		}
		if customer != nil && !customer.Deleted {
			return customer.ID, nil
		}
		// Stale reference; fall through and create a fresh customer.
	}

	customerID, err := h.provider.CreateCustomer(user.Email, user.ID)
	if err != nil {
		return "", err
	}
	if err := h.users.UpdateStripeCustomerID(user.ID, customerID); err != nil {
		return "", err
	}
	return customerID, nil
}
