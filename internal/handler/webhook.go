package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dukerupert/billingd/internal/model"
	"github.com/dukerupert/billingd/internal/store"
	billingstripe "github.com/dukerupert/billingd/internal/stripe"
)

// eventCategory is the closed set of webhook event families this layer
// reacts to. Classification happens once, up front, so the dispatch
// switch below stays exhaustive.
type eventCategory int

const (
	eventUnrecognized eventCategory = iota
	eventProduct
	eventPrice
	eventSubscription
	eventCheckoutCompleted
	eventInvoicePaid
	eventInvoicePaymentFailed
)

func classifyEvent(eventType string) eventCategory {
	switch {
	case strings.HasPrefix(eventType, "product."):
		return eventProduct
	case strings.HasPrefix(eventType, "price."):
		return eventPrice
	case strings.HasPrefix(eventType, "customer.subscription."):
		return eventSubscription
	case eventType == "checkout.session.completed":
		return eventCheckoutCompleted
	case eventType == "invoice.paid":
		return eventInvoicePaid
	case eventType == "invoice.payment_failed":
		return eventInvoicePaymentFailed
	default:
		return eventUnrecognized
	}
}

type WebhookHandler struct {
	provider      Provider
	products      *store.ProductStore
	prices        *store.PriceStore
	subscriptions *store.SubscriptionStore
	users         *store.UserStore
	events        *store.WebhookEventStore
	logger        *slog.Logger
}

func NewWebhookHandler(
	provider Provider,
	products *store.ProductStore,
	prices *store.PriceStore,
	subscriptions *store.SubscriptionStore,
	users *store.UserStore,
	events *store.WebhookEventStore,
	logger *slog.Logger,
) *WebhookHandler {
	return &WebhookHandler{
		provider:      provider,
		products:      products,
		prices:        prices,
		subscriptions: subscriptions,
		users:         users,
		events:        events,
		logger:        logger,
	}
}

// HandleWebhook processes a provider event delivery. The signature is
// verified before the payload is trusted, and each event ID is applied
// at most once; a redelivered event is acknowledged without effect.
func (h *WebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 65536))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}

	event, err := h.provider.ConstructWebhookEvent(body, r.Header.Get("Stripe-Signature"))
	if err != nil {
		h.logger.Warn("webhook rejected", "error", err)
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	eventType := string(event.Type)

	if event.ID != "" {
		seen, err := h.events.Seen(event.ID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if seen {
			h.logger.Info("webhook redelivery ignored", "event_id", event.ID, "type", eventType)
			w.WriteHeader(http.StatusOK)
			return
		}
	}

	var handleErr error
	switch classifyEvent(eventType) {
	case eventProduct:
		handleErr = h.handleProductEvent(eventType, event.Data.Raw)
	case eventPrice:
		handleErr = h.handlePriceEvent(eventType, event.Data.Raw)
	case eventSubscription:
		handleErr = h.handleSubscriptionEventRaw(eventType, event.Data.Raw)
	case eventCheckoutCompleted:
		handleErr = h.handleCheckoutCompleted(event.Data.Raw)
	case eventInvoicePaid:
		handleErr = h.handleInvoiceEvent(event.Data.Raw, model.SubscriptionStatusActive)
	case eventInvoicePaymentFailed:
		handleErr = h.handleInvoiceEvent(event.Data.Raw, model.SubscriptionStatusPastDue)
	case eventUnrecognized:
		h.logger.Info("unhandled webhook event", "type", eventType)
		w.WriteHeader(http.StatusOK)
		return
	}

	if handleErr != nil {
		h.logger.Error("webhook handler failed", "event_id", event.ID, "type", eventType, "error", handleErr)
		http.Error(w, handleErr.Error(), http.StatusInternalServerError)
		return
	}

	if event.ID != "" {
		if _, err := h.events.MarkProcessed(event.ID, eventType); err != nil {
			h.logger.Error("record webhook event", "event_id", event.ID, "error", err)
		}
	}
	h.logger.Info("webhook processed", "event_id", event.ID, "type", eventType)
	w.WriteHeader(http.StatusOK)
}

func (h *WebhookHandler) handleProductEvent(eventType string, raw json.RawMessage) error {
	var payload billingstripe.ProductPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("unmarshal product: %w", err)
	}

	if eventType == "product.deleted" {
		return h.products.Delete(payload.ID)
	}

	product := &model.Product{
		ID:          payload.ID,
		Name:        payload.Name,
		Description: payload.Description,
		ProductType: productTypeFromMetadata(payload.Metadata),
		IsActive:    payload.Active,
		Metadata:    payload.Metadata,
	}
	if eventType == "product.created" {
		_, err := h.products.Create(product)
		return err
	}
	_, err := h.products.Update(product)
	return err
}

func productTypeFromMetadata(metadata map[string]string) model.ProductType {
	if t := metadata["type"]; t != "" {
		return model.ProductType(t)
	}
	return model.ProductTypeBasic
}

func (h *WebhookHandler) handlePriceEvent(eventType string, raw json.RawMessage) error {
	var payload billingstripe.PricePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("unmarshal price: %w", err)
	}

	if eventType == "price.deleted" {
		return h.prices.Delete(payload.ID)
	}

	price := &model.Price{
		ID:         payload.ID,
		ProductID:  payload.Product,
		Name:       payload.Nickname,
		PriceType:  model.PriceType(payload.Type),
		UnitAmount: payload.UnitAmount,
		Currency:   payload.Currency,
		IsActive:   payload.Active,
		Metadata:   payload.Metadata,
	}
	if payload.Recurring != nil {
		interval := model.PriceInterval(payload.Recurring.Interval)
		price.Interval = &interval
		price.IntervalCount = &payload.Recurring.IntervalCount
		if payload.Recurring.TrialPeriodDays > 0 {
			price.TrialPeriodDays = &payload.Recurring.TrialPeriodDays
		}
	}
	_, err := h.prices.Upsert(price)
	return err
}

func (h *WebhookHandler) handleSubscriptionEventRaw(eventType string, raw json.RawMessage) error {
	var payload billingstripe.SubscriptionPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("unmarshal subscription: %w", err)
	}
	return h.handleSubscriptionEvent(eventType, &payload)
}

func (h *WebhookHandler) handleSubscriptionEvent(eventType string, payload *billingstripe.SubscriptionPayload) error {
	start, end := payload.PeriodBounds()
	sub := &model.Subscription{
		ExternalSubscriptionID: &payload.ID,
		Status:                 model.SubscriptionStatus(payload.Status),
		CurrentPeriodStart:     time.Unix(start, 0).UTC(),
		CurrentPeriodEnd:       time.Unix(end, 0).UTC(),
		CancelAtPeriodEnd:      payload.CancelAtPeriodEnd,
		CancelAt:               unixTimePtr(payload.CancelAt),
		CanceledAt:             unixTimePtr(payload.CanceledAt),
		TrialStart:             unixTimePtr(payload.TrialStart),
		TrialEnd:               unixTimePtr(payload.TrialEnd),
		Metadata:               payload.Metadata,
	}
	if productID := payload.ProductID(); productID != "" {
		sub.ProductID = &productID
	}

	user, err := h.resolveUser(payload)
	if err != nil {
		return err
	}
	if user != nil {
		sub.UserID = &user.ID
		if user.StripeCustomerID == nil && payload.Customer != "" {
			if err := h.users.UpdateStripeCustomerID(user.ID, payload.Customer); err != nil {
				return err
			}
		}
	}

	if eventType == "customer.subscription.created" {
		_, err := h.subscriptions.Create(sub)
		return err
	}
	_, err = h.subscriptions.UpdateByExternalID(payload.ID, sub)
	return err
}

// resolveUser links a provider subscription back to a local user, first
// by the stored customer reference, then by the user_id metadata stamped
// onto subscriptions created through this layer's checkout sessions.
func (h *WebhookHandler) resolveUser(payload *billingstripe.SubscriptionPayload) (*model.User, error) {
	if payload.Customer != "" {
		user, err := h.users.GetByCustomerID(payload.Customer)
		if err != nil {
			return nil, err
		}
		if user != nil {
			return user, nil
		}
	}
	if userID := payload.Metadata["user_id"]; userID != "" {
		return h.users.GetByID(userID)
	}
	return nil, nil
}

func (h *WebhookHandler) handleCheckoutCompleted(raw json.RawMessage) error {
	var payload billingstripe.CheckoutSessionPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("unmarshal checkout session: %w", err)
	}
	if payload.Mode != "subscription" || payload.Subscription == "" {
		return nil
	}

	sub, err := h.provider.GetSubscription(payload.Subscription)
	if err != nil {
		return err
	}
	return h.handleSubscriptionEvent("customer.subscription.created", sub)
}

func (h *WebhookHandler) handleInvoiceEvent(raw json.RawMessage, status model.SubscriptionStatus) error {
	var payload billingstripe.InvoicePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("unmarshal invoice: %w", err)
	}

	subID := payload.SubscriptionID()
	if subID == "" {
		return nil
	}
	sub, err := h.subscriptions.GetByExternalID(subID)
	if err != nil {
		return err
	}
	if sub == nil {
		h.logger.Warn("invoice for unknown subscription", "external_id", subID)
		return nil
	}

	if err := h.subscriptions.UpdateStatus(sub.ID, status); err != nil {
		return err
	}
	if status == model.SubscriptionStatusActive && payload.PeriodEnd > 0 {
		return h.subscriptions.UpdatePeriodEnd(sub.ID, time.Unix(payload.PeriodEnd, 0).UTC())
	}
	return nil
}

func unixTimePtr(sec int64) *time.Time {
	if sec == 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}
