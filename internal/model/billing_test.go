package model

import (
	"testing"
	"time"
)

func TestSubscriptionIsActiveAt(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		status    SubscriptionStatus
		periodEnd time.Time
		want      bool
	}{
		{"active within period", SubscriptionStatusActive, now.Add(time.Hour), true},
		{"trialing within period", SubscriptionStatusTrialing, now.Add(time.Hour), true},
		{"active at exact period end", SubscriptionStatusActive, now, false},
		{"active past period end", SubscriptionStatusActive, now.Add(-time.Second), false},
		{"canceled within period", SubscriptionStatusCanceled, now.Add(time.Hour), false},
		{"past_due within period", SubscriptionStatusPastDue, now.Add(time.Hour), false},
		{"paused within period", SubscriptionStatusPaused, now.Add(time.Hour), false},
		{"unpaid within period", SubscriptionStatusUnpaid, now.Add(time.Hour), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := &Subscription{
				Status:             tt.status,
				CurrentPeriodStart: now.Add(-24 * time.Hour),
				CurrentPeriodEnd:   tt.periodEnd,
			}
			if got := sub.IsActiveAt(now); got != tt.want {
				t.Errorf("IsActiveAt = %v, want %v", got, tt.want)
			}
		})
	}
}
