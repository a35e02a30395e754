package handler

import (
	stripesdk "github.com/stripe/stripe-go/v82"

	billingstripe "github.com/dukerupert/billingd/internal/stripe"
)

// Provider is the slice of the payment provider client the handlers
// consume. *stripe.Client satisfies it; tests substitute a fake.
type Provider interface {
	ConstructWebhookEvent(payload []byte, sigHeader string) (stripesdk.Event, error)
	GetCustomer(id string) (*billingstripe.Customer, error)
	CreateCustomer(email, userID string) (string, error)
	GetSubscription(id string) (*billingstripe.SubscriptionPayload, error)
	CreateCheckoutSession(customerID, priceID, userID, successURL, cancelURL string) (string, string, error)
	CreateBillingPortalSession(customerID, returnURL string) (string, error)
}
