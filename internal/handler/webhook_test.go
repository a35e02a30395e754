package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	stripesdk "github.com/stripe/stripe-go/v82"

	"github.com/dukerupert/billingd/internal/database"
	"github.com/dukerupert/billingd/internal/model"
	"github.com/dukerupert/billingd/internal/store"
	billingstripe "github.com/dukerupert/billingd/internal/stripe"
)

// fakeProvider parses webhook payloads without signature checks and
// serves canned customers and subscriptions.
type fakeProvider struct {
	rejectPayload bool
	customers     map[string]*billingstripe.Customer
	subscriptions map[string]*billingstripe.SubscriptionPayload

	createCustomerCalls int
	checkoutErr         error
	portalErr           error
}

func (f *fakeProvider) ConstructWebhookEvent(payload []byte, sigHeader string) (stripesdk.Event, error) {
	if f.rejectPayload {
		return stripesdk.Event{}, errors.New("signature verification failed")
	}
	var event stripesdk.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return stripesdk.Event{}, err
	}
	return event, nil
}

func (f *fakeProvider) GetCustomer(id string) (*billingstripe.Customer, error) {
	return f.customers[id], nil
}

func (f *fakeProvider) CreateCustomer(email, userID string) (string, error) {
	f.createCustomerCalls++
	id := fmt.Sprintf("cus_fake_%d", f.createCustomerCalls)
	if f.customers == nil {
		f.customers = map[string]*billingstripe.Customer{}
	}
	f.customers[id] = &billingstripe.Customer{ID: id, Email: email}
	return id, nil
}

func (f *fakeProvider) GetSubscription(id string) (*billingstripe.SubscriptionPayload, error) {
	sub, ok := f.subscriptions[id]
	if !ok {
		return nil, fmt.Errorf("no such subscription: %s", id)
	}
	return sub, nil
}

func (f *fakeProvider) CreateCheckoutSession(customerID, priceID, userID, successURL, cancelURL string) (string, string, error) {
	if f.checkoutErr != nil {
		return "", "", f.checkoutErr
	}
	return "cs_test_1", "https://checkout.example.com/cs_test_1", nil
}

func (f *fakeProvider) CreateBillingPortalSession(customerID, returnURL string) (string, error) {
	if f.portalErr != nil {
		return "", f.portalErr
	}
	return "https://portal.example.com/session", nil
}

type webhookTestEnv struct {
	handler       *WebhookHandler
	provider      *fakeProvider
	products      *store.ProductStore
	prices        *store.PriceStore
	subscriptions *store.SubscriptionStore
	users         *store.UserStore
}

func setupWebhookTest(t *testing.T) *webhookTestEnv {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	provider := &fakeProvider{
		customers:     map[string]*billingstripe.Customer{},
		subscriptions: map[string]*billingstripe.SubscriptionPayload{},
	}
	env := &webhookTestEnv{
		provider:      provider,
		products:      store.NewProductStore(db),
		prices:        store.NewPriceStore(db),
		subscriptions: store.NewSubscriptionStore(db),
		users:         store.NewUserStore(db),
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	env.handler = NewWebhookHandler(
		provider, env.products, env.prices, env.subscriptions, env.users,
		store.NewWebhookEventStore(db), logger,
	)
	return env
}

func deliver(t *testing.T, env *webhookTestEnv, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	rec := httptest.NewRecorder()
	env.handler.HandleWebhook(rec, req)
	return rec
}

func eventBody(id, eventType, object string) string {
	return fmt.Sprintf(`{"id":%q,"type":%q,"data":{"object":%s}}`, id, eventType, object)
}

func TestClassifyEvent(t *testing.T) {
	tests := []struct {
		eventType string
		want      eventCategory
	}{
		{"product.created", eventProduct},
		{"product.updated", eventProduct},
		{"product.deleted", eventProduct},
		{"price.created", eventPrice},
		{"customer.subscription.created", eventSubscription},
		{"customer.subscription.deleted", eventSubscription},
		{"checkout.session.completed", eventCheckoutCompleted},
		{"invoice.paid", eventInvoicePaid},
		{"invoice.payment_failed", eventInvoicePaymentFailed},
		{"customer.created", eventUnrecognized},
		{"charge.refunded", eventUnrecognized},
	}
	for _, tt := range tests {
		if got := classifyEvent(tt.eventType); got != tt.want {
			t.Errorf("classifyEvent(%q) = %d, want %d", tt.eventType, got, tt.want)
		}
	}
}

func TestWebhookProductCreated(t *testing.T) {
	env := setupWebhookTest(t)

	rec := deliver(t, env, eventBody("evt_1", "product.created",
		`{"id":"prod_1","name":"Pro Plan","description":"Full access","active":true,"metadata":{"type":"pro"}}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	p, err := env.products.GetByID("prod_1")
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if p == nil {
		t.Fatal("expected stored product")
	}
	if p.Name != "Pro Plan" {
		t.Errorf("name = %q, want Pro Plan", p.Name)
	}
	if p.ProductType != model.ProductTypePro {
		t.Errorf("product_type = %q, want pro", p.ProductType)
	}
}

func TestWebhookProductCreatedDefaultsType(t *testing.T) {
	env := setupWebhookTest(t)

	deliver(t, env, eventBody("evt_1", "product.created",
		`{"id":"prod_1","name":"Plan","active":true,"metadata":{}}`))

	p, _ := env.products.GetByID("prod_1")
	if p == nil || p.ProductType != model.ProductTypeBasic {
		t.Errorf("expected basic type for missing metadata, got %v", p)
	}
}

func TestWebhookProductUpdatedMissing(t *testing.T) {
	env := setupWebhookTest(t)

	rec := deliver(t, env, eventBody("evt_1", "product.updated",
		`{"id":"prod_missing","name":"Plan","active":true}`))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestWebhookProductDeleted(t *testing.T) {
	env := setupWebhookTest(t)

	deliver(t, env, eventBody("evt_1", "product.created",
		`{"id":"prod_1","name":"Plan","active":true}`))
	rec := deliver(t, env, eventBody("evt_2", "product.deleted", `{"id":"prod_1"}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	p, _ := env.products.GetByID("prod_1")
	if p != nil {
		t.Error("expected product removed")
	}

	// Deleting what is already gone still acknowledges
	rec = deliver(t, env, eventBody("evt_3", "product.deleted", `{"id":"prod_1"}`))
	if rec.Code != http.StatusOK {
		t.Errorf("repeat delete status = %d, want 200", rec.Code)
	}
}

func TestWebhookPriceUpsert(t *testing.T) {
	env := setupWebhookTest(t)

	deliver(t, env, eventBody("evt_1", "product.created",
		`{"id":"prod_1","name":"Plan","active":true}`))

	price := `{"id":"price_1","nickname":"Monthly","unit_amount":1900,"currency":"usd","type":"recurring","active":true,"product":"prod_1","recurring":{"interval":"month","interval_count":1,"trial_period_days":14}}`
	rec := deliver(t, env, eventBody("evt_2", "price.created", price))
	if rec.Code != http.StatusOK {
		t.Fatalf("create status = %d: %s", rec.Code, rec.Body.String())
	}

	updated := strings.Replace(price, `"unit_amount":1900`, `"unit_amount":2900`, 1)
	rec = deliver(t, env, eventBody("evt_3", "price.updated", updated))
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d: %s", rec.Code, rec.Body.String())
	}

	all, _ := env.prices.List()
	if len(all) != 1 {
		t.Fatalf("len = %d, want 1", len(all))
	}
	if all[0].UnitAmount != 2900 {
		t.Errorf("unit_amount = %d, want 2900", all[0].UnitAmount)
	}
	if all[0].TrialPeriodDays == nil || *all[0].TrialPeriodDays != 14 {
		t.Errorf("trial_period_days = %v, want 14", all[0].TrialPeriodDays)
	}
}

func TestWebhookSubscriptionCreated(t *testing.T) {
	env := setupWebhookTest(t)

	user, _ := env.users.Create("alice@example.com")

	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC).Unix()
	end := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC).Unix()
	object := fmt.Sprintf(
		`{"id":"sub_1","customer":"cus_1","status":"active","metadata":{"user_id":%q},"items":{"data":[{"current_period_start":%d,"current_period_end":%d,"price":{"id":"price_1","product":"prod_1"}}]}}`,
		user.ID, start, end,
	)
	rec := deliver(t, env, eventBody("evt_1", "customer.subscription.created", object))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	sub, err := env.subscriptions.GetByExternalID("sub_1")
	if err != nil {
		t.Fatalf("get subscription: %v", err)
	}
	if sub == nil {
		t.Fatal("expected stored subscription")
	}
	if sub.UserID == nil || *sub.UserID != user.ID {
		t.Errorf("user_id = %v, want %q", sub.UserID, user.ID)
	}
	if sub.ProductID == nil || *sub.ProductID != "prod_1" {
		t.Errorf("product_id = %v, want prod_1", sub.ProductID)
	}
	if sub.CurrentPeriodEnd.Unix() != end {
		t.Errorf("period end = %v, want unix %d", sub.CurrentPeriodEnd, end)
	}

	// The customer reference learned from the event is persisted
	u, _ := env.users.GetByID(user.ID)
	if u.StripeCustomerID == nil || *u.StripeCustomerID != "cus_1" {
		t.Errorf("stripe_customer_id = %v, want cus_1", u.StripeCustomerID)
	}
}

func TestWebhookSubscriptionUpdated(t *testing.T) {
	env := setupWebhookTest(t)

	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC).Unix()
	end := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC).Unix()
	object := func(status string) string {
		return fmt.Sprintf(
			`{"id":"sub_1","status":%q,"current_period_start":%d,"current_period_end":%d,"cancel_at_period_end":true}`,
			status, start, end,
		)
	}

	deliver(t, env, eventBody("evt_1", "customer.subscription.created", object("active")))
	rec := deliver(t, env, eventBody("evt_2", "customer.subscription.updated", object("past_due")))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	sub, _ := env.subscriptions.GetByExternalID("sub_1")
	if sub.Status != model.SubscriptionStatusPastDue {
		t.Errorf("status = %q, want past_due", sub.Status)
	}
	if !sub.CancelAtPeriodEnd {
		t.Error("expected cancel_at_period_end = true")
	}
}

func TestWebhookSubscriptionUpdatedMissing(t *testing.T) {
	env := setupWebhookTest(t)

	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC).Unix()
	rec := deliver(t, env, eventBody("evt_1", "customer.subscription.updated",
		fmt.Sprintf(`{"id":"sub_missing","status":"active","current_period_start":%d,"current_period_end":%d}`,
			start, start+86400)))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestWebhookRedelivery(t *testing.T) {
	env := setupWebhookTest(t)

	body := eventBody("evt_1", "product.created", `{"id":"prod_1","name":"Plan","active":true}`)
	if rec := deliver(t, env, body); rec.Code != http.StatusOK {
		t.Fatalf("first delivery status = %d", rec.Code)
	}
	// Same event ID again: acknowledged, not reapplied
	if rec := deliver(t, env, body); rec.Code != http.StatusOK {
		t.Fatalf("redelivery status = %d", rec.Code)
	}

	products, _ := env.products.List()
	if len(products) != 1 {
		t.Errorf("len = %d, want 1", len(products))
	}
}

func TestWebhookFailureLeavesEventUnclaimed(t *testing.T) {
	env := setupWebhookTest(t)

	// product.updated for a missing product fails with 500
	body := eventBody("evt_1", "product.updated", `{"id":"prod_1","name":"Plan","active":true}`)
	if rec := deliver(t, env, body); rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}

	// After the product appears, the redelivered event succeeds
	deliver(t, env, eventBody("evt_2", "product.created", `{"id":"prod_1","name":"Plan","active":true}`))
	if rec := deliver(t, env, body); rec.Code != http.StatusOK {
		t.Errorf("redelivery status = %d, want 200", rec.Code)
	}
}

func TestWebhookMalformedPayload(t *testing.T) {
	env := setupWebhookTest(t)

	rec := deliver(t, env, `{not json`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestWebhookRejectedSignature(t *testing.T) {
	env := setupWebhookTest(t)
	env.provider.rejectPayload = true

	rec := deliver(t, env, eventBody("evt_1", "product.created", `{"id":"prod_1"}`))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestWebhookUnrecognizedType(t *testing.T) {
	env := setupWebhookTest(t)

	rec := deliver(t, env, eventBody("evt_1", "charge.refunded", `{"id":"ch_1"}`))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestWebhookCheckoutCompleted(t *testing.T) {
	env := setupWebhookTest(t)

	user, _ := env.users.Create("alice@example.com")
	env.users.UpdateStripeCustomerID(user.ID, "cus_1")

	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC).Unix()
	env.provider.subscriptions["sub_1"] = &billingstripe.SubscriptionPayload{
		ID:                 "sub_1",
		Customer:           "cus_1",
		Status:             "active",
		CurrentPeriodStart: start,
		CurrentPeriodEnd:   start + 30*86400,
	}

	rec := deliver(t, env, eventBody("evt_1", "checkout.session.completed",
		`{"id":"cs_1","mode":"subscription","customer":"cus_1","subscription":"sub_1"}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	sub, _ := env.subscriptions.GetByExternalID("sub_1")
	if sub == nil {
		t.Fatal("expected subscription from checkout completion")
	}
	if sub.UserID == nil || *sub.UserID != user.ID {
		t.Errorf("user_id = %v, want %q", sub.UserID, user.ID)
	}
}

func TestWebhookCheckoutCompletedPaymentMode(t *testing.T) {
	env := setupWebhookTest(t)

	// One-time payment sessions carry no subscription and are ignored
	rec := deliver(t, env, eventBody("evt_1", "checkout.session.completed",
		`{"id":"cs_1","mode":"payment","customer":"cus_1"}`))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	subs, _ := env.subscriptions.List()
	if len(subs) != 0 {
		t.Errorf("len = %d, want 0", len(subs))
	}
}

func TestWebhookInvoicePaid(t *testing.T) {
	env := setupWebhookTest(t)

	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC).Unix()
	deliver(t, env, eventBody("evt_1", "customer.subscription.created",
		fmt.Sprintf(`{"id":"sub_1","status":"past_due","current_period_start":%d,"current_period_end":%d}`,
			start, start+30*86400)))

	newEnd := start + 60*86400
	rec := deliver(t, env, eventBody("evt_2", "invoice.paid",
		fmt.Sprintf(`{"id":"in_1","subscription":"sub_1","period_end":%d}`, newEnd)))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	sub, _ := env.subscriptions.GetByExternalID("sub_1")
	if sub.Status != model.SubscriptionStatusActive {
		t.Errorf("status = %q, want active", sub.Status)
	}
	if sub.CurrentPeriodEnd.Unix() != newEnd {
		t.Errorf("period end = %v, want unix %d", sub.CurrentPeriodEnd, newEnd)
	}
}

func TestWebhookInvoicePaymentFailed(t *testing.T) {
	env := setupWebhookTest(t)

	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC).Unix()
	deliver(t, env, eventBody("evt_1", "customer.subscription.created",
		fmt.Sprintf(`{"id":"sub_1","status":"active","current_period_start":%d,"current_period_end":%d}`,
			start, start+30*86400)))

	rec := deliver(t, env, eventBody("evt_2", "invoice.payment_failed",
		`{"id":"in_1","parent":{"subscription_details":{"subscription":"sub_1"}}}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	sub, _ := env.subscriptions.GetByExternalID("sub_1")
	if sub.Status != model.SubscriptionStatusPastDue {
		t.Errorf("status = %q, want past_due", sub.Status)
	}
}

func TestWebhookInvoiceUnknownSubscription(t *testing.T) {
	env := setupWebhookTest(t)

	rec := deliver(t, env, eventBody("evt_1", "invoice.paid",
		`{"id":"in_1","subscription":"sub_missing","period_end":1}`))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}
