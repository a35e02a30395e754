package store

import (
	"testing"

	"github.com/dukerupert/billingd/internal/database"
)

func setupWebhookEventTestDB(t *testing.T) *WebhookEventStore {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewWebhookEventStore(db)
}

func TestWebhookEventMarkProcessed(t *testing.T) {
	ws := setupWebhookEventTestDB(t)

	already, err := ws.MarkProcessed("evt_1", "product.created")
	if err != nil {
		t.Fatalf("mark processed: %v", err)
	}
	if already {
		t.Error("first mark should not report already processed")
	}

	seen, err := ws.Seen("evt_1")
	if err != nil {
		t.Fatalf("seen: %v", err)
	}
	if !seen {
		t.Error("expected event to be seen after mark")
	}
}

func TestWebhookEventRedeliveryDetected(t *testing.T) {
	ws := setupWebhookEventTestDB(t)

	ws.MarkProcessed("evt_1", "product.created")
	already, err := ws.MarkProcessed("evt_1", "product.created")
	if err != nil {
		t.Fatalf("second mark: %v", err)
	}
	if !already {
		t.Error("redelivered event should report already processed")
	}
}

func TestWebhookEventUnseen(t *testing.T) {
	ws := setupWebhookEventTestDB(t)

	seen, err := ws.Seen("evt_never")
	if err != nil {
		t.Fatalf("seen: %v", err)
	}
	if seen {
		t.Error("expected unseen event")
	}
}
