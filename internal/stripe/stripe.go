package stripe

import (
	"encoding/json"
	"errors"
	"fmt"

	stripe "github.com/stripe/stripe-go/v82"
	portalsession "github.com/stripe/stripe-go/v82/billingportal/session"
	checksession "github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/customer"
	"github.com/stripe/stripe-go/v82/subscription"
	"github.com/stripe/stripe-go/v82/webhook"
)

type Config struct {
	SecretKey     string
	WebhookSecret string
}

type Client struct {
	cfg Config
}

func NewClient(cfg Config) *Client {
	stripe.Key = cfg.SecretKey
	return &Client{cfg: cfg}
}

// Customer is the slice of a provider customer this layer cares about.
type Customer struct {
	ID      string
	Email   string
	Deleted bool
}

// ConstructWebhookEvent verifies the signature and returns the parsed event.
// When no webhook secret is configured the payload is parsed unverified;
// that mode exists for local development only.
func (c *Client) ConstructWebhookEvent(payload []byte, sigHeader string) (stripe.Event, error) {
	if c.cfg.WebhookSecret == "" {
		var event stripe.Event
		if err := json.Unmarshal(payload, &event); err != nil {
			return stripe.Event{}, fmt.Errorf("parse event: %w", err)
		}
		return event, nil
	}
	return webhook.ConstructEventWithOptions(payload, sigHeader, c.cfg.WebhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
}

// GetCustomer retrieves a customer by ID. Returns (nil, nil) when the
// provider no longer knows the ID.
func (c *Client) GetCustomer(id string) (*Customer, error) {
	cust, err := customer.Get(id, nil)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Code == stripe.ErrorCodeResourceMissing {
			return nil, nil
		}
		return nil, fmt.Errorf("get stripe customer: %w", err)
	}
	return &Customer{ID: cust.ID, Email: cust.Email, Deleted: cust.Deleted}, nil
}

// CreateCustomer creates a provider customer keyed by email, tagged with
// the local user ID so webhook events can be linked back.
func (c *Client) CreateCustomer(email, userID string) (string, error) {
	params := &stripe.CustomerParams{
		Email: stripe.String(email),
	}
	params.AddMetadata("user_id", userID)
	cust, err := customer.New(params)
	if err != nil {
		return "", fmt.Errorf("create stripe customer: %w", err)
	}
	return cust.ID, nil
}

// GetSubscription retrieves a subscription and projects it into the same
// payload shape webhook deliveries use.
func (c *Client) GetSubscription(id string) (*SubscriptionPayload, error) {
	sub, err := subscription.Get(id, nil)
	if err != nil {
		return nil, fmt.Errorf("get stripe subscription: %w", err)
	}
	return subscriptionPayload(sub), nil
}

// CreateCheckoutSession creates a subscription-mode hosted checkout
// session and returns its ID and URL.
func (c *Client) CreateCheckoutSession(customerID, priceID, userID, successURL, cancelURL string) (string, string, error) {
	params := &stripe.CheckoutSessionParams{
		Customer: stripe.String(customerID),
		Mode:     stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
		AllowPromotionCodes:      stripe.Bool(true),
		BillingAddressCollection: stripe.String(string(stripe.CheckoutSessionBillingAddressCollectionRequired)),
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{"user_id": userID},
		},
		SuccessURL: stripe.String(successURL),
		CancelURL:  stripe.String(cancelURL),
	}
	sess, err := checksession.New(params)
	if err != nil {
		return "", "", fmt.Errorf("create checkout session: %w", err)
	}
	return sess.ID, sess.URL, nil
}

// CreateBillingPortalSession creates a billing portal session and returns the URL.
func (c *Client) CreateBillingPortalSession(customerID, returnURL string) (string, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	sess, err := portalsession.New(params)
	if err != nil {
		return "", fmt.Errorf("create billing portal session: %w", err)
	}
	return sess.URL, nil
}

func subscriptionPayload(sub *stripe.Subscription) *SubscriptionPayload {
	p := &SubscriptionPayload{
		ID:                sub.ID,
		Status:            string(sub.Status),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		CancelAt:          sub.CancelAt,
		CanceledAt:        sub.CanceledAt,
		TrialStart:        sub.TrialStart,
		TrialEnd:          sub.TrialEnd,
		Metadata:          sub.Metadata,
	}
	if sub.Customer != nil {
		p.Customer = sub.Customer.ID
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		itemPayload := SubscriptionItemPayload{
			CurrentPeriodStart: item.CurrentPeriodStart,
			CurrentPeriodEnd:   item.CurrentPeriodEnd,
		}
		if item.Price != nil {
			itemPayload.Price = &PricePayload{ID: item.Price.ID}
			if item.Price.Product != nil {
				itemPayload.Price.Product = item.Price.Product.ID
			}
		}
		p.Items.Data = append(p.Items.Data, itemPayload)
		p.CurrentPeriodStart = item.CurrentPeriodStart
		p.CurrentPeriodEnd = item.CurrentPeriodEnd
	}
	return p
}
