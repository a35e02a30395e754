package model

import "time"

// ProductType is the plan tier a product belongs to, carried in the
// provider's product metadata under the "type" key.
type ProductType string

const (
	ProductTypeFree       ProductType = "free"
	ProductTypeBasic      ProductType = "basic"
	ProductTypePro        ProductType = "pro"
	ProductTypeEnterprise ProductType = "enterprise"
)

type PriceType string

const (
	PriceTypeOneTime   PriceType = "one_time"
	PriceTypeRecurring PriceType = "recurring"
)

type PriceInterval string

const (
	PriceIntervalDay   PriceInterval = "day"
	PriceIntervalWeek  PriceInterval = "week"
	PriceIntervalMonth PriceInterval = "month"
	PriceIntervalYear  PriceInterval = "year"
)

type SubscriptionStatus string

const (
	SubscriptionStatusTrialing          SubscriptionStatus = "trialing"
	SubscriptionStatusActive            SubscriptionStatus = "active"
	SubscriptionStatusCanceled          SubscriptionStatus = "canceled"
	SubscriptionStatusIncomplete        SubscriptionStatus = "incomplete"
	SubscriptionStatusIncompleteExpired SubscriptionStatus = "incomplete_expired"
	SubscriptionStatusPastDue           SubscriptionStatus = "past_due"
	SubscriptionStatusUnpaid            SubscriptionStatus = "unpaid"
	SubscriptionStatusPaused            SubscriptionStatus = "paused"
)

// Product is a plan offered for purchase. The ID is assigned by the
// payment provider.
type Product struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	ProductType ProductType       `json:"product_type"`
	IsActive    bool              `json:"is_active"`
	Metadata    map[string]string `json:"metadata"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	Prices      []*Price          `json:"prices,omitempty"`
}

// Price belongs to exactly one Product. Recurrence fields are set only
// for recurring prices.
type Price struct {
	ID              string            `json:"id"`
	ProductID       string            `json:"product_id"`
	Name            string            `json:"name"`
	PriceType       PriceType         `json:"type"`
	UnitAmount      int64             `json:"unit_amount"`
	Currency        string            `json:"currency"`
	Interval        *PriceInterval    `json:"interval"`
	IntervalCount   *int64            `json:"interval_count"`
	TrialPeriodDays *int64            `json:"trial_period_days"`
	IsActive        bool              `json:"is_active"`
	Metadata        map[string]string `json:"metadata"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// Subscription is keyed by an internal UUID; the provider's own
// subscription ID is tracked separately in ExternalSubscriptionID.
type Subscription struct {
	ID                     string             `json:"id"`
	ExternalSubscriptionID *string            `json:"external_subscription_id"`
	UserID                 *string            `json:"user_id"`
	ProductID              *string            `json:"product_id"`
	Status                 SubscriptionStatus `json:"status"`
	CurrentPeriodStart     time.Time          `json:"current_period_start"`
	CurrentPeriodEnd       time.Time          `json:"current_period_end"`
	CancelAtPeriodEnd      bool               `json:"cancel_at_period_end"`
	CancelAt               *time.Time         `json:"cancel_at"`
	CanceledAt             *time.Time         `json:"canceled_at"`
	TrialStart             *time.Time         `json:"trial_start"`
	TrialEnd               *time.Time         `json:"trial_end"`
	APICallsUsed           int64              `json:"api_calls_used"`
	StorageUsed            int64              `json:"storage_used"`
	Metadata               map[string]string  `json:"metadata"`
	CreatedAt              time.Time          `json:"created_at"`
	UpdatedAt              time.Time          `json:"updated_at"`
}

// IsActive reports whether the subscription currently grants access:
// status active or trialing, and the current period has not ended.
func (s *Subscription) IsActive() bool {
	return s.IsActiveAt(time.Now().UTC())
}

// IsActiveAt is IsActive evaluated at a fixed instant. A subscription
// whose period ends exactly at now is no longer active.
func (s *Subscription) IsActiveAt(now time.Time) bool {
	if s.Status != SubscriptionStatusActive && s.Status != SubscriptionStatusTrialing {
		return false
	}
	return now.Before(s.CurrentPeriodEnd)
}

// User holds the provider's customer reference for a local account.
type User struct {
	ID               string    `json:"id"`
	Email            string    `json:"email"`
	StripeCustomerID *string   `json:"stripe_customer_id"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

type Session struct {
	ID        int64     `json:"id"`
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// WebhookEvent records a processed provider event ID so redelivery of
// the same event is acknowledged without being re-applied.
type WebhookEvent struct {
	ID          string    `json:"id"`
	EventType   string    `json:"event_type"`
	ProcessedAt time.Time `json:"processed_at"`
}
