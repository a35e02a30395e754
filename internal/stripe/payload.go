package stripe

// Wire projections of the provider's event payloads. Webhook deliveries
// are decoded into these instead of the SDK's structs so the handler
// depends only on the fields it reads, and so subscription period bounds
// can be taken from either the top level (older API versions deliver
// them there) or the first subscription item (current API versions).

type ProductPayload struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Active      bool              `json:"active"`
	Metadata    map[string]string `json:"metadata"`
}

type RecurringPayload struct {
	Interval        string `json:"interval"`
	IntervalCount   int64  `json:"interval_count"`
	TrialPeriodDays int64  `json:"trial_period_days"`
}

type PricePayload struct {
	ID         string            `json:"id"`
	Nickname   string            `json:"nickname"`
	UnitAmount int64             `json:"unit_amount"`
	Currency   string            `json:"currency"`
	Type       string            `json:"type"`
	Recurring  *RecurringPayload `json:"recurring"`
	Active     bool              `json:"active"`
	Metadata   map[string]string `json:"metadata"`
	Product    string            `json:"product"`
}

type SubscriptionItemPayload struct {
	CurrentPeriodStart int64         `json:"current_period_start"`
	CurrentPeriodEnd   int64         `json:"current_period_end"`
	Price              *PricePayload `json:"price"`
}

type SubscriptionItemsPayload struct {
	Data []SubscriptionItemPayload `json:"data"`
}

type SubscriptionPayload struct {
	ID                 string                   `json:"id"`
	Customer           string                   `json:"customer"`
	Status             string                   `json:"status"`
	CurrentPeriodStart int64                    `json:"current_period_start"`
	CurrentPeriodEnd   int64                    `json:"current_period_end"`
	CancelAtPeriodEnd  bool                     `json:"cancel_at_period_end"`
	CancelAt           int64                    `json:"cancel_at"`
	CanceledAt         int64                    `json:"canceled_at"`
	TrialStart         int64                    `json:"trial_start"`
	TrialEnd           int64                    `json:"trial_end"`
	Metadata           map[string]string        `json:"metadata"`
	Items              SubscriptionItemsPayload `json:"items"`
}

// PeriodBounds returns the current period start and end as unix
// seconds, preferring the top-level fields and falling back to the
// first subscription item.
func (p *SubscriptionPayload) PeriodBounds() (start, end int64) {
	start, end = p.CurrentPeriodStart, p.CurrentPeriodEnd
	if (start == 0 || end == 0) && len(p.Items.Data) > 0 {
		item := p.Items.Data[0]
		if start == 0 {
			start = item.CurrentPeriodStart
		}
		if end == 0 {
			end = item.CurrentPeriodEnd
		}
	}
	return start, end
}

// ProductID returns the product the subscription's first item is priced
// against, or "" when the payload does not carry one.
func (p *SubscriptionPayload) ProductID() string {
	if len(p.Items.Data) > 0 && p.Items.Data[0].Price != nil {
		return p.Items.Data[0].Price.Product
	}
	return ""
}

type CheckoutSessionPayload struct {
	ID           string `json:"id"`
	Mode         string `json:"mode"`
	Customer     string `json:"customer"`
	Subscription string `json:"subscription"`
}

type InvoicePayload struct {
	ID           string `json:"id"`
	PeriodEnd    int64  `json:"period_end"`
	Subscription string `json:"subscription"`
	Parent       *struct {
		SubscriptionDetails *struct {
			Subscription string `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`
}

// SubscriptionID extracts the subscription reference from either the
// legacy top-level field or the parent details newer API versions use.
func (p *InvoicePayload) SubscriptionID() string {
	if p.Subscription != "" {
		return p.Subscription
	}
	if p.Parent != nil && p.Parent.SubscriptionDetails != nil {
		return p.Parent.SubscriptionDetails.Subscription
	}
	return ""
}
