package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/billingd/internal/model"
)

type SubscriptionStore struct {
	db *sql.DB
}

func NewSubscriptionStore(db *sql.DB) *SubscriptionStore {
	return &SubscriptionStore{db: db}
}

func scanSubscription(scanner interface{ Scan(...any) error }) (*model.Subscription, error) {
	var sub model.Subscription
	var extID, userID, productID sql.NullString
	var cancelAt, canceledAt, trialStart, trialEnd sql.NullTime
	var cancelAtPeriodEnd int
	var metadata string
	err := scanner.Scan(
		&sub.ID, &extID, &userID, &productID, &sub.Status,
		&sub.CurrentPeriodStart, &sub.CurrentPeriodEnd, &cancelAtPeriodEnd,
		&cancelAt, &canceledAt, &trialStart, &trialEnd,
		&sub.APICallsUsed, &sub.StorageUsed, &metadata,
		&sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if extID.Valid {
		sub.ExternalSubscriptionID = &extID.String
	}
	if userID.Valid {
		sub.UserID = &userID.String
	}
	if productID.Valid {
		sub.ProductID = &productID.String
	}
	sub.CancelAtPeriodEnd = cancelAtPeriodEnd != 0
	if cancelAt.Valid {
		sub.CancelAt = &cancelAt.Time
	}
	if canceledAt.Valid {
		sub.CanceledAt = &canceledAt.Time
	}
	if trialStart.Valid {
		sub.TrialStart = &trialStart.Time
	}
	if trialEnd.Valid {
		sub.TrialEnd = &trialEnd.Time
	}
	sub.Metadata, err = unmarshalMetadata(metadata)
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

const subscriptionCols = `id, external_subscription_id, user_id, product_id, status, current_period_start, current_period_end, cancel_at_period_end, cancel_at, canceled_at, trial_start, trial_end, api_calls_used, storage_used, metadata, created_at, updated_at`

// Create inserts a new subscription, generating an internal UUID when
// the caller did not supply one.
func (s *SubscriptionStore) Create(sub *model.Subscription) (*model.Subscription, error) {
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	if !sub.CurrentPeriodEnd.After(sub.CurrentPeriodStart) {
		return nil, fmt.Errorf("current_period_end must be after current_period_start")
	}
	meta, err := marshalMetadata(sub.Metadata)
	if err != nil {
		return nil, err
	}
	_, err = s.db.Exec(
		`INSERT INTO subscriptions (id, external_subscription_id, user_id, product_id, status, current_period_start, current_period_end, cancel_at_period_end, cancel_at, canceled_at, trial_start, trial_end, api_calls_used, storage_used, metadata)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.ID, sub.ExternalSubscriptionID, sub.UserID, sub.ProductID, sub.Status,
		sub.CurrentPeriodStart, sub.CurrentPeriodEnd, boolToInt(sub.CancelAtPeriodEnd),
		sub.CancelAt, sub.CanceledAt, sub.TrialStart, sub.TrialEnd,
		sub.APICallsUsed, sub.StorageUsed, meta,
	)
	if err != nil {
		return nil, fmt.Errorf("insert subscription: %w", err)
	}
	return s.GetByID(sub.ID)
}

func (s *SubscriptionStore) GetByID(id string) (*model.Subscription, error) {
	row := s.db.QueryRow(`SELECT `+subscriptionCols+` FROM subscriptions WHERE id = ?`, id)
	sub, err := scanSubscription(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	return sub, nil
}

func (s *SubscriptionStore) GetByExternalID(externalID string) (*model.Subscription, error) {
	row := s.db.QueryRow(
		`SELECT `+subscriptionCols+` FROM subscriptions WHERE external_subscription_id = ?`,
		externalID,
	)
	sub, err := scanSubscription(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get subscription by external id: %w", err)
	}
	return sub, nil
}

func (s *SubscriptionStore) List() ([]*model.Subscription, error) {
	rows, err := s.db.Query(`SELECT ` + subscriptionCols + ` FROM subscriptions ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []*model.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// UpdateByExternalID applies the webhook projection of a provider
// subscription to the local row. Returns ErrNotFound when no row tracks
// the external ID.
func (s *SubscriptionStore) UpdateByExternalID(externalID string, sub *model.Subscription) (*model.Subscription, error) {
	meta, err := marshalMetadata(sub.Metadata)
	if err != nil {
		return nil, err
	}
	result, err := s.db.Exec(
		`UPDATE subscriptions SET status = ?, current_period_start = ?, current_period_end = ?, cancel_at_period_end = ?, cancel_at = ?, canceled_at = ?, trial_start = ?, trial_end = ?, metadata = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE external_subscription_id = ?`,
		sub.Status, sub.CurrentPeriodStart, sub.CurrentPeriodEnd, boolToInt(sub.CancelAtPeriodEnd),
		sub.CancelAt, sub.CanceledAt, sub.TrialStart, sub.TrialEnd, meta,
		externalID,
	)
	if err != nil {
		return nil, fmt.Errorf("update subscription by external id: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return nil, ErrNotFound
	}
	return s.GetByExternalID(externalID)
}

func (s *SubscriptionStore) UpdateStatus(id string, status model.SubscriptionStatus) error {
	result, err := s.db.Exec(
		`UPDATE subscriptions SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		status, id,
	)
	if err != nil {
		return fmt.Errorf("update subscription status: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SubscriptionStore) UpdatePeriodEnd(id string, periodEnd time.Time) error {
	_, err := s.db.Exec(
		`UPDATE subscriptions SET current_period_end = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		periodEnd, id,
	)
	if err != nil {
		return fmt.Errorf("update period end: %w", err)
	}
	return nil
}

// SubscriptionPatch is a partial update; nil fields are left untouched.
type SubscriptionPatch struct {
	Status            *model.SubscriptionStatus `json:"status"`
	CancelAtPeriodEnd *bool                     `json:"cancel_at_period_end"`
	CancelAt          *time.Time                `json:"cancel_at"`
	APICallsUsed      *int64                    `json:"api_calls_used"`
	StorageUsed       *int64                    `json:"storage_used"`
}

// Patch applies the non-nil fields to an existing subscription. Returns
// ErrNotFound when the row does not exist.
func (s *SubscriptionStore) Patch(id string, p SubscriptionPatch) (*model.Subscription, error) {
	sets := []string{"updated_at = CURRENT_TIMESTAMP"}
	var args []any
	if p.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, *p.Status)
	}
	if p.CancelAtPeriodEnd != nil {
		sets = append(sets, "cancel_at_period_end = ?")
		args = append(args, boolToInt(*p.CancelAtPeriodEnd))
	}
	if p.CancelAt != nil {
		sets = append(sets, "cancel_at = ?")
		args = append(args, *p.CancelAt)
	}
	if p.APICallsUsed != nil {
		sets = append(sets, "api_calls_used = ?")
		args = append(args, *p.APICallsUsed)
	}
	if p.StorageUsed != nil {
		sets = append(sets, "storage_used = ?")
		args = append(args, *p.StorageUsed)
	}
	args = append(args, id)

	result, err := s.db.Exec(
		`UPDATE subscriptions SET `+strings.Join(sets, ", ")+` WHERE id = ?`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("patch subscription: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return nil, ErrNotFound
	}
	return s.GetByID(id)
}

// Delete removes a subscription. Returns ErrNotFound when the row does
// not exist, so the CRUD surface can answer 404.
func (s *SubscriptionStore) Delete(id string) error {
	result, err := s.db.Exec(`DELETE FROM subscriptions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
