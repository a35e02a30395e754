package store

import (
	"database/sql"
	"fmt"

	"github.com/dukerupert/billingd/internal/model"
)

// WebhookEventStore is the idempotency seen-set for provider webhook
// deliveries. An event ID is recorded only after its handler succeeded,
// so a failed delivery stays unclaimed and the provider's redelivery
// gets another attempt.
type WebhookEventStore struct {
	db *sql.DB
}

func NewWebhookEventStore(db *sql.DB) *WebhookEventStore {
	return &WebhookEventStore{db: db}
}

// Seen reports whether the event ID has already been processed.
func (s *WebhookEventStore) Seen(id string) (bool, error) {
	var one int
	err := s.db.QueryRow(`SELECT 1 FROM webhook_events WHERE id = ?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check webhook event: %w", err)
	}
	return true, nil
}

// MarkProcessed records the event ID. The primary key makes the insert a
// no-op on redelivery; already reports whether the ID was present.
func (s *WebhookEventStore) MarkProcessed(id, eventType string) (already bool, err error) {
	result, err := s.db.Exec(
		`INSERT OR IGNORE INTO webhook_events (id, event_type) VALUES (?, ?)`,
		id, eventType,
	)
	if err != nil {
		return false, fmt.Errorf("insert webhook event: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 0, nil
}

func (s *WebhookEventStore) GetByID(id string) (*model.WebhookEvent, error) {
	var e model.WebhookEvent
	err := s.db.QueryRow(
		`SELECT id, event_type, processed_at FROM webhook_events WHERE id = ?`, id,
	).Scan(&e.ID, &e.EventType, &e.ProcessedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get webhook event: %w", err)
	}
	return &e, nil
}
